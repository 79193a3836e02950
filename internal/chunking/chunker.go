// Package chunking implements the Chunker (C2) and Metadata Extractor (C3):
// it turns one source file into an ordered sequence of pkg/types.Chunk
// values, parsing with tree-sitter where a grammar is available and falling
// back to fixed-line windowing otherwise.
package chunking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mnemolite/internal/logging"
	"mnemolite/pkg/types"
)

const defaultParseTimeout = 10 * time.Second

// Result pairs an emitted chunk with the tree-sitter node it was derived
// from, so the Metadata Extractor (C3) can walk the same sub-tree instead
// of re-parsing. Node is nil for chunks produced by the fallback windower.
type Result struct {
	Chunk types.Chunk
	Node  *Node
	Tree  *Tree
}

// languageChunker is the tagged-variant contract each supported language
// implements: walk an already-parsed tree and emit zero or more chunks.
type languageChunker interface {
	chunkTree(tree *Tree, filePath string) []Result
}

// Options configures the Chunker's parse deadline and fallback windowing.
type Options struct {
	ParseTimeout  time.Duration
	WindowLines   int
	OverlapLines  int
}

// DefaultOptions matches spec defaults: 10s AST parse deadline, 60-line
// fallback windows with 15-line overlap.
func DefaultOptions() Options {
	return Options{
		ParseTimeout: defaultParseTimeout,
		WindowLines:  60,
		OverlapLines: 15,
	}
}

// Chunker implements C2: parse-or-fall-back chunking of one source file.
type Chunker struct {
	opts     Options
	parser   *parser
	fallback *fallbackChunker
	variants map[types.Language]languageChunker
}

// New creates a Chunker. A Chunker is not safe for concurrent use — the
// indexing pipeline (C6) gives each worker its own instance, matching the
// "private embedding provider and DB connection per worker" rule for
// in-process state.
func New(opts Options) *Chunker {
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = defaultParseTimeout
	}
	if opts.WindowLines <= 0 {
		opts.WindowLines = 60
	}
	if opts.OverlapLines <= 0 {
		opts.OverlapLines = 15
	}
	return &Chunker{
		opts:     opts,
		parser:   newParser(),
		fallback: newFallbackChunker(opts.WindowLines, opts.OverlapLines),
		variants: map[types.Language]languageChunker{
			types.LanguageGo:         goChunker{},
			types.LanguageTypeScript: tsjsChunker{spec: mustSpec(types.LanguageTypeScript)},
			types.LanguageJavaScript: tsjsChunker{spec: mustSpec(types.LanguageJavaScript)},
			types.LanguagePython:    pythonChunker{},
		},
	}
}

// Close releases the underlying tree-sitter parser.
func (c *Chunker) Close() {
	c.parser.close()
}

// Chunk parses source (interpreted as the given language, from filePath)
// and returns the ordered chunk sequence. Empty or whitespace-only input
// yields zero chunks with no error. Parse failure or deadline expiry falls
// back to fixed-line windowing, marking metadata.fallback=true.
func (c *Chunker) Chunk(ctx context.Context, source []byte, language types.Language, filePath string) ([]Result, error) {
	if len(strings.TrimSpace(string(source))) == 0 {
		return nil, nil
	}

	variant, supported := c.variants[language]
	if !supported {
		logging.ChunkerLogger.Info("no AST chunker for language, using fallback",
			"language", string(language), "file_path", filePath)
		return c.fallback.chunk(source, filePath, "unsupported_language"), nil
	}

	deadline, cancel := context.WithTimeout(ctx, c.opts.ParseTimeout)
	defer cancel()

	tree, err := c.parser.parse(deadline, source, language)
	if err != nil {
		logging.ChunkerLogger.Warn("ast parse failed, falling back to fixed windows",
			"file_path", filePath, "error", err.Error())
		return c.fallback.chunk(source, filePath, "ast_parsing_failed"), nil
	}

	results := variant.chunkTree(tree, filePath)
	if results == nil {
		results = []Result{}
	}
	return results, nil
}

func mustSpec(lang types.Language) *LanguageSpec {
	s, ok := specFor(lang)
	if !ok {
		panic("chunking: missing language spec for " + string(lang))
	}
	return s
}

// isOneOf reports whether t is present in set. A nil/empty set never matches.
func isOneOf(t string, set []string) bool {
	for _, s := range set {
		if s == t {
			return true
		}
	}
	return false
}

// collector tracks name_path usage per chunk_type within one file so that
// duplicate names can be disambiguated by line range, per spec.md §4.2
// ("Names are unique only within (file_path, chunk_type); duplicates
// disambiguated by line range").
type collector struct {
	seen map[string]int
}

func newCollector() *collector {
	return &collector{seen: make(map[string]int)}
}

func (c *collector) namePath(chunkType types.ChunkType, namePath string, startLine, endLine int) string {
	key := string(chunkType) + "\x00" + namePath
	c.seen[key]++
	if c.seen[key] == 1 {
		return namePath
	}
	return fmt.Sprintf("%s:L%d-%d", namePath, startLine, endLine)
}

// buildResult assembles a types.Chunk from a matched tree-sitter node. The
// chunk's Repository is left empty for the caller (the indexing pipeline)
// to fill in; Metadata starts empty and is populated by the Metadata
// Extractor (C3) from the paired Node.
func buildResult(tree *Tree, node *Node, chunkType types.ChunkType, name, namePath, filePath string) Result {
	return Result{
		Chunk: types.Chunk{
			ID:         types.NewUUID(),
			FilePath:   filePath,
			Language:   tree.Language,
			ChunkType:  chunkType,
			Name:       name,
			NamePath:   namePath,
			SourceCode: node.Content(tree.Source),
			StartLine:  node.Line(),
			EndLine:    node.EndLineNumber(),
			Metadata:   map[string]interface{}{},
		},
		Node: node,
		Tree: tree,
	}
}
