// Package indexing implements C6: the orchestrator that turns a repository
// root (or an in-memory file list) into committed chunks, then a graph.
// The worker pool is grounded on the teacher's internal/storage connection
// pool pattern in spirit — bounded concurrency over a shared resource — but
// adapted from checking out pooled connections to checking out a bounded
// queue slot per file, since *sql.DB already pools connections internally.
package indexing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mnemolite/internal/chunking"
	"mnemolite/internal/config"
	"mnemolite/internal/embeddings"
	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/internal/graph"
	"mnemolite/internal/kernel"
	"mnemolite/internal/logging"
	"mnemolite/internal/storage"
	"mnemolite/pkg/types"
)

// EmbeddingFactory builds one embedding service instance. The pipeline
// calls it once per worker so no embedding provider state (its LRU cache,
// its circuit breaker) is shared across goroutines, per spec.md §5's
// "embedding provider per worker (not shared)" rule.
type EmbeddingFactory func() embeddings.Service

// Pipeline implements IndexRepository / IndexFiles / DeleteRepository.
type Pipeline struct {
	gw          *storage.Gateway
	embedFac    EmbeddingFactory
	graphBuild  *graph.Builder
	workers     int
	queueCap    int
	chunkerOpts chunking.Options
	excludes    []string
	kernel      *kernel.Kernel
}

// New constructs a Pipeline. embedFactory is invoked once per worker
// goroutine; pass a closure over embeddings.NewFromConfig(cfg) or
// equivalent so each worker gets an independent instance. k supplies the
// per-operation deadlines for file processing, embedding batches, and
// graph construction; a nil k disables deadline enforcement (tests only).
func New(gw *storage.Gateway, embedFactory EmbeddingFactory, cfg config.IndexingConfig, k *kernel.Kernel) *Pipeline {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueCap := cfg.QueueCapacity
	if queueCap <= 0 {
		queueCap = 4 * workers
	}
	return &Pipeline{
		gw:          gw,
		embedFac:    embedFactory,
		graphBuild:  graph.New(graph.DefaultOptions()),
		workers:     workers,
		queueCap:    queueCap,
		chunkerOpts: chunking.DefaultOptions(),
		kernel:      k,
	}
}

// withDeadline runs fn under op's configured timeout when a kernel is
// configured, or runs it directly otherwise.
func (p *Pipeline) withDeadline(ctx context.Context, op kernel.Operation, fn func(context.Context) error) error {
	if p.kernel == nil {
		return fn(ctx)
	}
	return p.kernel.Do(ctx, op, fn)
}

// job is one unit of work consumed by a file worker.
type job struct {
	relPath  string
	language types.Language
	content  []byte
}

// fileOutcome is what a worker reports back for one file.
type fileOutcome struct {
	result types.FileResult
	nodes  int // unused here; graph phase reports its own counts
}

// IndexRepository walks root for files in known languages, then runs the
// four-phase pipeline described in spec.md §4.6: cleanup, parallel file
// processing, serial graph construction, serial metrics (folded into graph
// construction here since C5 computes metrics as part of Build).
func (p *Pipeline) IndexRepository(ctx context.Context, repository, root string, opts types.IndexOptions) (*types.Summary, error) {
	discovered, err := walk(root, p.excludes)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindInvalidArgument, "walk repository root", err)
	}
	discovered = filterByLanguage(discovered, opts.Languages)

	jobs := make([]job, 0, len(discovered))
	for _, f := range discovered {
		content, err := readFile(f.path)
		if err != nil {
			jobs = append(jobs, job{relPath: f.relPath, language: f.language, content: nil})
			continue
		}
		jobs = append(jobs, job{relPath: f.relPath, language: f.language, content: content})
	}

	return p.run(ctx, repository, jobs, opts)
}

// IndexFiles processes an explicit in-memory file set, skipping the
// filesystem walk. Used by callers (tests, editor integrations) that
// already hold file contents in memory.
func (p *Pipeline) IndexFiles(ctx context.Context, repository string, files []types.InputFile, opts types.IndexOptions) (*types.Summary, error) {
	jobs := make([]job, 0, len(files))
	for _, f := range files {
		lang := f.Language
		if lang == "" {
			lang = chunking.LanguageForExt(extOf(f.Path))
		}
		jobs = append(jobs, job{relPath: f.Path, language: lang, content: f.Content})
	}
	return p.run(ctx, repository, jobs, opts)
}

// DeleteRepository removes every row owned by a repository across chunks,
// nodes, edges, metrics, and indexing errors, in one transaction.
func (p *Pipeline) DeleteRepository(ctx context.Context, repository string) error {
	return p.gw.DeleteByRepository(ctx, repository)
}

func (p *Pipeline) run(ctx context.Context, repository string, jobs []job, opts types.IndexOptions) (*types.Summary, error) {
	start := time.Now()

	// Phase 1: cleanup, synchronous, one transaction.
	if err := p.gw.DeleteByRepository(ctx, repository); err != nil {
		return nil, err
	}

	// Phase 2: parallel file processing, bounded queue for backpressure.
	queue := make(chan job, p.queueCap)
	results := make(chan fileOutcome, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go p.worker(ctx, repository, opts, queue, results, &wg)
	}

	go func() {
		defer close(queue)
		for _, j := range jobs {
			select {
			case queue <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	summary := &types.Summary{}
	for outcome := range results {
		summary.Files++
		if outcome.result.Success {
			summary.Chunks += outcome.result.ChunksCreated
		} else {
			summary.Errors = append(summary.Errors, types.IndexingError{
				Repository: repository,
				FilePath:   outcome.result.FilePath,
				Stage:      "process_file",
				Message:    outcome.result.Error,
				OccurredAt: time.Now().UTC(),
			})
			_ = p.gw.InTransaction(ctx, func(tx *storage.Tx) error {
				return tx.InsertIndexingError(ctx, &types.IndexingError{
					Repository: repository,
					FilePath:   outcome.result.FilePath,
					Stage:      "process_file",
					Message:    outcome.result.Error,
				})
			})
		}
	}

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}

	// Phase 3/4: graph construction and metrics, single-writer, reads
	// committed chunks back from storage so it sees every file's final state
	// regardless of which worker committed it last.
	if opts.BuildGraph {
		nodeCount, edgeCount, err := p.buildGraph(ctx, repository)
		if err != nil {
			return summary, err
		}
		summary.Nodes = nodeCount
		summary.Edges = edgeCount
	}

	logging.PipelineLogger.Info("indexing complete",
		"repository", repository, "files", summary.Files, "chunks", summary.Chunks,
		"nodes", summary.Nodes, "edges", summary.Edges, "errors", len(summary.Errors),
		"duration_ms", time.Since(start).Milliseconds())

	return summary, nil
}

func (p *Pipeline) worker(ctx context.Context, repository string, opts types.IndexOptions, queue <-chan job, results chan<- fileOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	chunker := chunking.New(p.chunkerOpts)
	defer chunker.Close()
	extractor := chunking.NewExtractor()
	embedSvc := p.embedFac()

	for j := range queue {
		select {
		case <-ctx.Done():
			return
		default:
		}

		result := p.processFile(ctx, chunker, extractor, embedSvc, repository, j, opts)
		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

// processFile runs steps (a)-(e) of spec.md §4.6 atomically: chunk, extract
// metadata, embed, then commit inside one transaction that first deletes
// the file's prior chunks. A commit failure rolls back the whole
// transaction and nothing changes; any other failure is reported as a
// per-file error and processing continues.
func (p *Pipeline) processFile(ctx context.Context, chunker *chunking.Chunker, extractor *chunking.Extractor, embedSvc embeddings.Service, repository string, j job, opts types.IndexOptions) fileOutcome {
	if p.kernel != nil {
		var cancel context.CancelFunc
		ctx, cancel = p.kernel.WithTimeout(ctx, kernel.OpIndexFile)
		defer cancel()
	}

	if j.content == nil {
		return fileOutcome{result: types.FileResult{FilePath: j.relPath, Success: false, Error: "could not read file"}}
	}

	chunkResults, err := chunker.Chunk(ctx, j.content, j.language, j.relPath)
	if err != nil {
		return fileOutcome{result: types.FileResult{FilePath: j.relPath, Success: false, Error: err.Error()}}
	}

	chunks := make([]types.Chunk, len(chunkResults))
	for i, r := range chunkResults {
		c := r.Chunk
		c.Repository = repository
		if opts.ExtractMetadata {
			meta := extractor.Extract(r)
			if c.Metadata == nil {
				c.Metadata = meta
			} else {
				for k, v := range meta {
					c.Metadata[k] = v
				}
			}
		}
		chunks[i] = c
	}

	if opts.GenerateEmbeddings && len(chunks) > 0 {
		p.embedBatch(ctx, embedSvc, chunks)
	}

	err = p.gw.InTransaction(ctx, func(tx *storage.Tx) error {
		if err := tx.DeleteChunksByFile(ctx, repository, j.relPath); err != nil {
			return err
		}
		for i := range chunks {
			if err := tx.AddChunk(ctx, &chunks[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fileOutcome{result: types.FileResult{FilePath: j.relPath, Success: false, Error: err.Error()}}
	}

	return fileOutcome{result: types.FileResult{FilePath: j.relPath, Success: true, ChunksCreated: len(chunks)}}
}

// embedBatch generates TEXT and CODE domain embeddings for every chunk in
// one file, one provider call per domain. A batch failure leaves every
// chunk's embedding for that domain nil (per spec.md §4.6 step (c): "on
// embedding failure record null and proceed") rather than failing the file.
func (p *Pipeline) embedBatch(ctx context.Context, embedSvc embeddings.Service, chunks []types.Chunk) {
	textInputs := make([]string, len(chunks))
	codeInputs := make([]string, len(chunks))
	for i, c := range chunks {
		textInputs[i] = textDescription(c)
		codeInputs[i] = c.SourceCode
	}

	var textVecs, codeVecs [][]float32
	textErr := p.withDeadline(ctx, kernel.OpEmbeddingBatch, func(ctx context.Context) error {
		v, err := embedSvc.Embed(ctx, types.DomainText, textInputs)
		textVecs = v
		return err
	})
	if textErr == nil {
		for i := range chunks {
			if i < len(textVecs) {
				chunks[i].EmbeddingText = textVecs[i]
			}
		}
	} else {
		logging.EmbeddingLogger.Warn("text embedding batch failed", "error", textErr.Error())
	}

	codeErr := p.withDeadline(ctx, kernel.OpEmbeddingBatch, func(ctx context.Context) error {
		v, err := embedSvc.Embed(ctx, types.DomainCode, codeInputs)
		codeVecs = v
		return err
	})
	if codeErr == nil {
		for i := range chunks {
			if i < len(codeVecs) {
				chunks[i].EmbeddingCode = codeVecs[i]
			}
		}
	} else {
		logging.EmbeddingLogger.Warn("code embedding batch failed", "error", codeErr.Error())
	}
}

// textDescription builds the string embedded into the TEXT domain: a
// human-legible summary of what the chunk is, not its raw source, so
// lexical phrasing of a search query can match a function's purpose.
func textDescription(c types.Chunk) string {
	name := c.NamePath
	if name == "" {
		name = c.Name
	}
	return fmt.Sprintf("%s %s in %s", c.ChunkType, name, c.FilePath)
}

func (p *Pipeline) buildGraph(ctx context.Context, repository string) (int, int, error) {
	if p.kernel != nil {
		var cancel context.CancelFunc
		ctx, cancel = p.kernel.WithTimeout(ctx, kernel.OpGraphConstruction)
		defer cancel()
	}

	chunks, err := p.gw.GetChunks(ctx, repository)
	if err != nil {
		return 0, 0, err
	}

	result, err := p.graphBuild.Build(ctx, repository, chunks)
	if err != nil {
		return 0, 0, err
	}

	if _, err := result.Arena.Commit(ctx, p.gw, result.Metrics, result.Details); err != nil {
		return 0, 0, err
	}

	return len(result.Arena.Nodes), len(result.Arena.Edges), nil
}

func filterByLanguage(files []discoveredFile, languages []types.Language) []discoveredFile {
	if len(languages) == 0 {
		return files
	}
	allowed := make(map[types.Language]bool, len(languages))
	for _, l := range languages {
		allowed[l] = true
	}
	out := files[:0]
	for _, f := range files {
		if allowed[f.language] {
			out = append(out, f)
		}
	}
	return out
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}
