package chunking

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"mnemolite/pkg/types"
)

// LanguageSpec describes the tree-sitter node types that identify chunkable
// declarations and decision points for one language.
type LanguageSpec struct {
	Language types.Language

	FunctionTypes  []string
	MethodTypes    []string
	ClassTypes     []string
	InterfaceTypes []string

	// DecisionTypes are node types counted as cyclomatic decision points
	// (if/for/while/case/catch). Boolean operators are matched separately
	// via BooleanOperators since tree-sitter represents them as leaf tokens.
	DecisionTypes    []string
	BooleanOperators []string

	CallTypes   []string // call-expression node types
	ImportTypes []string // import/require statement node types
}

// registry maps extensions and language names to LanguageSpec and the
// tree-sitter grammar needed to parse them.
type registry struct {
	mu         sync.RWMutex
	byLanguage map[types.Language]*LanguageSpec
	byExt      map[string]types.Language
	grammars   map[types.Language]*sitter.Language
}

var defaultRegistry = newRegistry()

func newRegistry() *registry {
	r := &registry{
		byLanguage: make(map[types.Language]*LanguageSpec),
		byExt:      make(map[string]types.Language),
		grammars:   make(map[types.Language]*sitter.Language),
	}
	r.register(goSpec(), golang.GetLanguage(), ".go")
	r.register(tsSpec(), typescript.GetLanguage(), ".ts", ".tsx")
	r.register(jsSpec(), javascript.GetLanguage(), ".js", ".jsx", ".mjs")
	r.register(pySpec(), python.GetLanguage(), ".py")
	return r
}

func (r *registry) register(spec *LanguageSpec, grammar *sitter.Language, exts ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLanguage[spec.Language] = spec
	r.grammars[spec.Language] = grammar
	for _, e := range exts {
		r.byExt[e] = spec.Language
	}
}

// LanguageForExt resolves a file extension (including the leading dot) to a
// known language, or LanguageUnknown if none matches.
func LanguageForExt(ext string) types.Language {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	if lang, ok := defaultRegistry.byExt[ext]; ok {
		return lang
	}
	return types.LanguageUnknown
}

func specFor(lang types.Language) (*LanguageSpec, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	s, ok := defaultRegistry.byLanguage[lang]
	return s, ok
}

func grammarFor(lang types.Language) (*sitter.Language, bool) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	g, ok := defaultRegistry.grammars[lang]
	return g, ok
}

func goSpec() *LanguageSpec {
	return &LanguageSpec{
		Language:         types.LanguageGo,
		FunctionTypes:    []string{"function_declaration"},
		MethodTypes:      []string{"method_declaration"},
		ClassTypes:       nil,
		InterfaceTypes:   []string{"interface_type"},
		DecisionTypes:    []string{"if_statement", "for_statement", "expression_case", "type_case", "communication_case", "default_case"},
		BooleanOperators: []string{"&&", "||"},
		CallTypes:        []string{"call_expression"},
		ImportTypes:      []string{"import_spec"},
	}
}

func tsSpec() *LanguageSpec {
	return &LanguageSpec{
		Language:         types.LanguageTypeScript,
		FunctionTypes:    []string{"function_declaration"},
		MethodTypes:      []string{"method_definition"},
		ClassTypes:       []string{"class_declaration"},
		InterfaceTypes:   []string{"interface_declaration"},
		DecisionTypes:    []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "switch_case", "catch_clause", "ternary_expression"},
		BooleanOperators: []string{"&&", "||"},
		CallTypes:        []string{"call_expression"},
		ImportTypes:      []string{"import_statement"},
	}
}

func jsSpec() *LanguageSpec {
	return &LanguageSpec{
		Language:         types.LanguageJavaScript,
		FunctionTypes:    []string{"function_declaration", "function"},
		MethodTypes:      []string{"method_definition"},
		ClassTypes:       []string{"class_declaration"},
		InterfaceTypes:   nil,
		DecisionTypes:    []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "switch_case", "catch_clause", "ternary_expression"},
		BooleanOperators: []string{"&&", "||"},
		CallTypes:        []string{"call_expression"},
		ImportTypes:      []string{"import_statement"},
	}
}

func pySpec() *LanguageSpec {
	return &LanguageSpec{
		Language:         types.LanguagePython,
		FunctionTypes:    []string{"function_definition"},
		MethodTypes:      nil, // methods are function_definition nested in a class_definition body
		ClassTypes:       []string{"class_definition"},
		InterfaceTypes:   nil,
		DecisionTypes:    []string{"if_statement", "for_statement", "while_statement", "except_clause", "conditional_expression"},
		BooleanOperators: []string{"and", "or"},
		CallTypes:        []string{"call"},
		ImportTypes:      []string{"import_statement", "import_from_statement"},
	}
}
