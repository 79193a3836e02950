package chunking

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"mnemolite/pkg/types"
)

// Point is a zero-indexed row/column position within a source file.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a language-agnostic view over a tree-sitter parse node, converted
// once per parse so the rest of the package never touches the cgo-backed
// sitter.Node directly.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

// Tree is a parsed file: the converted root node plus the source it was
// parsed from and the language used.
type Tree struct {
	Root     *Node
	Source   []byte
	Language types.Language
}

// Content returns the source slice a node spans.
func (n *Node) Content(source []byte) string {
	if n == nil || n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// Line returns the 1-based source line a node starts on.
func (n *Node) Line() int {
	return int(n.StartPoint.Row) + 1
}

// EndLineNumber returns the 1-based source line a node ends on.
func (n *Node) EndLineNumber() int {
	return int(n.EndPoint.Row) + 1
}

// FirstChildOfType returns the first direct child with the given type.
func (n *Node) FirstChildOfType(nodeType string) *Node {
	for _, c := range n.Children {
		if c.Type == nodeType {
			return c
		}
	}
	return nil
}

// FindChildrenByType returns every direct child with the given type.
func (n *Node) FindChildrenByType(nodeType string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Type == nodeType {
			out = append(out, c)
		}
	}
	return out
}

// FindAll recursively collects every node (including n itself) whose type
// is in types.
func (n *Node) FindAll(nodeTypes ...string) []*Node {
	want := make(map[string]bool, len(nodeTypes))
	for _, t := range nodeTypes {
		want[t] = true
	}
	var out []*Node
	n.Walk(func(child *Node) bool {
		if want[child.Type] {
			out = append(out, child)
		}
		return true
	})
	return out
}

// Walk traverses the subtree depth-first, pre-order. fn returning false
// skips descending into that node's children (but sibling traversal
// continues).
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// parser wraps a tree-sitter parser for a single goroutine's use. It is not
// safe for concurrent use; C6's worker pool gives each worker its own parser.
type parser struct {
	ts *sitter.Parser
}

func newParser() *parser {
	return &parser{ts: sitter.NewParser()}
}

func (p *parser) close() {
	if p.ts != nil {
		p.ts.Close()
	}
}

// parse parses source under the given language, honoring ctx cancellation
// (the caller attaches the AST-parse deadline from Options.ParseTimeout).
func (p *parser) parse(ctx context.Context, source []byte, lang types.Language) (*Tree, error) {
	grammar, ok := grammarFor(lang)
	if !ok {
		return nil, fmt.Errorf("chunking: no tree-sitter grammar for language %q", lang)
	}
	p.ts.SetLanguage(grammar)

	tsTree, err := p.ts.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("chunking: parse failed: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("chunking: parse produced nil tree")
	}

	return &Tree{
		Root:     convert(tsTree.RootNode()),
		Source:   source,
		Language: lang,
	}, nil
}

func convert(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:       n.Type(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		EndPoint:   Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
		HasError:   n.HasError(),
		Children:   make([]*Node, 0, n.ChildCount()),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			out.Children = append(out.Children, convert(child))
		}
	}
	return out
}
