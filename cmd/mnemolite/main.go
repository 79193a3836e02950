// Package main provides the mnemolite CLI: a thin flag-driven wrapper over
// internal/engine for indexing a repository and issuing ad-hoc searches
// without standing up the (out-of-scope) HTTP/MCP layers.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"mnemolite/internal/config"
	"mnemolite/internal/engine"
	"mnemolite/internal/logging"
	"mnemolite/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	errColor  = color.New(color.FgRed)
	infoColor = color.New(color.FgYellow)
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		command    = flag.String("command", "health", "Command to execute: index, search-lexical, search-hybrid, flush-cache, health")
		repository = flag.String("repository", "", "Repository name")
		root       = flag.String("root", ".", "Filesystem path to index (command=index)")
		query      = flag.String("query", "", "Query text (command=search-lexical, search-hybrid)")
		limit      = flag.Int("limit", 20, "Result limit")
		offset     = flag.Int("offset", 0, "Result offset (command=search-hybrid)")
		scope      = flag.String("scope", "all", "Cache flush scope: all, repository, file (command=flush-cache)")
		target     = flag.String("target", "", "Flush target when scope=repository|file")
	)
	flag.Parse()

	logger := logging.NewEnhancedLogger("cli")

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", "error", err.Error())
		return 1
	}

	ctx := context.Background()
	eng, err := engine.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to start engine", "error", err.Error())
		return 1
	}
	defer func() {
		if err := eng.Close(); err != nil {
			logger.Warn("engine close failed", "error", err.Error())
		}
	}()

	switch *command {
	case "index":
		return runIndex(ctx, eng, logger, *repository, *root)
	case "search-lexical":
		return runSearchLexical(ctx, eng, logger, *query, *repository, *limit)
	case "search-hybrid":
		return runSearchHybrid(ctx, eng, logger, *query, *repository, *limit, *offset)
	case "flush-cache":
		return runFlushCache(ctx, eng, logger, *scope, *target)
	case "health":
		return runHealth(ctx, eng)
	default:
		logger.Fatal("unknown command", "command", *command)
		return 1
	}
}

func runIndex(ctx context.Context, eng *engine.Engine, logger *logging.EnhancedLogger, repository, root string) int {
	if repository == "" {
		logger.Fatal("-repository is required for command=index")
		return 1
	}

	summary, err := eng.IndexRepository(ctx, repository, root, types.IndexOptions{})
	if err != nil {
		logger.Error("index failed", "error", err.Error())
		return 1
	}

	printJSON(summary)
	return 0
}

func runSearchLexical(ctx context.Context, eng *engine.Engine, logger *logging.EnhancedLogger, query, repository string, limit int) int {
	if query == "" {
		logger.Fatal("-query is required for command=search-lexical")
		return 1
	}

	results, err := eng.SearchLexical(ctx, query, types.Filters{Repository: repository}, limit)
	if err != nil {
		logger.Error("lexical search failed", "error", err.Error())
		return 1
	}

	printJSON(results)
	return 0
}

func runSearchHybrid(ctx context.Context, eng *engine.Engine, logger *logging.EnhancedLogger, query, repository string, limit, offset int) int {
	if query == "" {
		logger.Fatal("-query is required for command=search-hybrid")
		return 1
	}

	result, err := eng.SearchHybrid(ctx, query, types.Filters{Repository: repository}, limit, offset, types.SearchFlags{})
	if err != nil {
		logger.Error("hybrid search failed", "error", err.Error())
		return 1
	}

	printJSON(result)
	return 0
}

func runFlushCache(ctx context.Context, eng *engine.Engine, logger *logging.EnhancedLogger, scope, target string) int {
	var flushScope types.CacheFlushScope
	switch scope {
	case "all":
		flushScope = types.FlushScopeAll
	case "repository":
		flushScope = types.FlushScopeRepository
	case "file":
		flushScope = types.FlushScopeFile
	default:
		logger.Fatal("unknown flush scope", "scope", scope)
		return 1
	}

	if err := eng.FlushCache(ctx, flushScope, target); err != nil {
		logger.Error("flush cache failed", "error", err.Error())
		return 1
	}

	okColor.Println("cache flushed")
	return 0
}

func runHealth(ctx context.Context, eng *engine.Engine) int {
	report := eng.Health(ctx)
	printJSON(report)
	if report.Status != "healthy" {
		errColor.Printf("status: %s\n", report.Status)
		return 1
	}
	infoColor.Printf("status: %s\n", report.Status)
	return 0
}

func printJSON(v interface{}) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		errColor.Println("failed to encode output:", err.Error())
		return
	}
	fmt.Println(string(out))
}
