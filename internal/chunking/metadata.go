package chunking

import (
	"mnemolite/pkg/types"
)

// Extractor implements C3: given the tree-sitter node a chunk was derived
// from (the same parse produced by C2, never re-parsed), it walks the
// sub-tree and produces the metadata document described in spec.md §4.3.
//
// Extraction failures are localised per section: a broken section yields
// empty values plus an entry in extractor_warnings, never a failed chunk.
type Extractor struct{}

// NewExtractor constructs a Metadata Extractor. It is stateless and safe
// for concurrent use across workers.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract walks result.Node (nil for fallback chunks, in which case only
// complexity/lines_of_code over the raw source_code is produced) and
// returns the metadata fields to merge into the chunk's Metadata map.
func (e *Extractor) Extract(r Result) map[string]interface{} {
	lang := r.Chunk.Language
	spec, known := specFor(lang)

	var warnings []string
	meta := map[string]interface{}{}

	if r.Node == nil || !known {
		meta["complexity"] = map[string]interface{}{
			"cyclomatic":    1,
			"lines_of_code": r.Chunk.EndLine - r.Chunk.StartLine + 1,
		}
		return meta
	}

	source := r.Tree.Source

	sig, err := extractSignature(r.Node, lang, source)
	if err != nil {
		warnings = append(warnings, "signature: "+err.Error())
		sig = types.Signature{}
	}
	meta["signature"] = sig

	calls := extractCalls(r.Node, spec, source)
	meta["calls"] = calls

	imports := extractImports(r.Node, spec, source)
	meta["imports"] = imports

	meta["complexity"] = extractComplexity(r.Node, spec, r.Chunk.StartLine, r.Chunk.EndLine)

	if len(warnings) > 0 {
		meta["extractor_warnings"] = warnings
	}
	return meta
}

func extractSignature(n *Node, lang types.Language, source []byte) (types.Signature, error) {
	sig := types.Signature{}

	switch lang {
	case types.LanguageGo:
		sig.IsAsync = false // Go has no async keyword; goroutines are not part of the signature
		paramLists := n.FindChildrenByType("parameter_list")
		switch {
		case n.Type == "method_declaration" && len(paramLists) > 1:
			sig.Parameters = goParams(paramLists[1], source) // [0] is the receiver
		case len(paramLists) > 0:
			sig.Parameters = goParams(paramLists[0], source)
		}
		if tp := n.FirstChildOfType("type_parameter_list"); tp != nil {
			sig.IsGeneric = true
		}

	case types.LanguageTypeScript, types.LanguageJavaScript:
		for _, c := range n.Children {
			if c.Type == "async" {
				sig.IsAsync = true
			}
		}
		if params := n.FirstChildOfType("formal_parameters"); params != nil {
			sig.Parameters = tsjsParams(params, source)
		}
		if tp := n.FirstChildOfType("type_parameters"); tp != nil {
			sig.IsGeneric = true
		}
		if rt := n.FirstChildOfType("type_annotation"); rt != nil {
			sig.ReturnType = rt.Content(source)
		}

	case types.LanguagePython:
		for _, c := range n.Children {
			if c.Type == "async" {
				sig.IsAsync = true
			}
		}
		if params := n.FirstChildOfType("parameters"); params != nil {
			sig.Parameters = pyParams(params, source)
		}
		if rt := n.FirstChildOfType("type"); rt != nil {
			sig.ReturnType = rt.Content(source)
		}
		for _, c := range n.Children {
			if c.Type == "decorator" {
				sig.Decorators = append(sig.Decorators, c.Content(source))
			}
		}
	}

	return sig, nil
}

func goParams(list *Node, source []byte) []types.Parameter {
	var out []types.Parameter
	for _, decl := range list.Children {
		if decl.Type != "parameter_declaration" {
			continue
		}
		var typeName string
		if t := decl.FirstChildOfType("type_identifier"); t != nil {
			typeName = t.Content(source)
		} else if t := decl.FirstChildOfType("pointer_type"); t != nil {
			typeName = t.Content(source)
		}
		ids := decl.FindChildrenByType("identifier")
		if len(ids) == 0 {
			out = append(out, types.Parameter{Type: typeName})
			continue
		}
		for _, id := range ids {
			out = append(out, types.Parameter{Name: id.Content(source), Type: typeName})
		}
	}
	return out
}

func tsjsParams(list *Node, source []byte) []types.Parameter {
	var out []types.Parameter
	for _, p := range list.Children {
		switch p.Type {
		case "identifier":
			out = append(out, types.Parameter{Name: p.Content(source)})
		case "required_parameter", "optional_parameter":
			name := ""
			if id := p.FirstChildOfType("identifier"); id != nil {
				name = id.Content(source)
			}
			typ := ""
			if ta := p.FirstChildOfType("type_annotation"); ta != nil {
				typ = ta.Content(source)
			}
			out = append(out, types.Parameter{Name: name, Type: typ})
		}
	}
	return out
}

func pyParams(list *Node, source []byte) []types.Parameter {
	var out []types.Parameter
	for _, p := range list.Children {
		switch p.Type {
		case "identifier":
			out = append(out, types.Parameter{Name: p.Content(source)})
		case "typed_parameter":
			name := ""
			if id := p.FirstChildOfType("identifier"); id != nil {
				name = id.Content(source)
			}
			typ := ""
			if t := p.FirstChildOfType("type"); t != nil {
				typ = t.Content(source)
			}
			out = append(out, types.Parameter{Name: name, Type: typ})
		case "default_parameter":
			if id := p.FirstChildOfType("identifier"); id != nil {
				out = append(out, types.Parameter{Name: id.Content(source)})
			}
		}
	}
	return out
}

func extractCalls(n *Node, spec *LanguageSpec, source []byte) []types.CallRef {
	var out []types.CallRef
	for _, call := range n.FindAll(spec.CallTypes...) {
		callee := call.FirstChildOfType("identifier")
		isMethod := false
		name := ""
		if callee != nil {
			name = callee.Content(source)
		} else if sel := call.FirstChildOfType("selector_expression"); sel != nil {
			isMethod = true
			if field := sel.FirstChildOfType("field_identifier"); field != nil {
				name = field.Content(source)
			}
		} else if member := call.FirstChildOfType("member_expression"); member != nil {
			isMethod = true
			if prop := member.FirstChildOfType("property_identifier"); prop != nil {
				name = prop.Content(source)
			}
		} else if attr := call.FirstChildOfType("attribute"); attr != nil {
			isMethod = true
			if attrID := attr.FirstChildOfType("identifier"); attrID != nil {
				name = attrID.Content(source)
			}
		}
		if name == "" {
			continue
		}
		out = append(out, types.CallRef{
			CalleeName:   name,
			Line:         call.Line(),
			IsMethodCall: isMethod,
		})
	}
	return out
}

func extractImports(n *Node, spec *LanguageSpec, source []byte) []types.ImportRef {
	var out []types.ImportRef
	for _, imp := range n.FindAll(spec.ImportTypes...) {
		switch imp.Type {
		case "import_spec": // Go
			path := ""
			if p := imp.FirstChildOfType("interpreted_string_literal"); p != nil {
				path = trimQuotes(p.Content(source))
			}
			out = append(out, types.ImportRef{Module: path, ImportedName: path})

		case "import_statement": // TS/JS/Python
			module := ""
			if s := imp.FirstChildOfType("string"); s != nil {
				module = trimQuotes(s.Content(source))
			}
			rel := len(module) > 0 && (module[0] == '.' )
			names := imp.FindAll("import_specifier", "identifier", "dotted_name")
			if len(names) == 0 {
				out = append(out, types.ImportRef{Module: module, IsRelative: rel})
			}
			for _, nm := range names {
				out = append(out, types.ImportRef{ImportedName: nm.Content(source), Module: module, IsRelative: rel})
			}

		case "import_from_statement": // Python
			module := ""
			if m := imp.FirstChildOfType("dotted_name"); m != nil {
				module = m.Content(source)
			}
			rel := false
			for _, c := range imp.Children {
				if c.Type == "relative_import" || c.Type == "import_prefix" {
					rel = true
				}
			}
			for _, nm := range imp.FindAll("identifier") {
				out = append(out, types.ImportRef{ImportedName: nm.Content(source), Module: module, IsRelative: rel})
			}
		}
	}
	return out
}

func extractComplexity(n *Node, spec *LanguageSpec, startLine, endLine int) types.Complexity {
	cyclomatic := 1
	n.Walk(func(child *Node) bool {
		if isOneOf(child.Type, spec.DecisionTypes) {
			cyclomatic++
		}
		if isOneOf(child.Type, spec.BooleanOperators) {
			cyclomatic++
		}
		return true
	})
	return types.Complexity{
		Cyclomatic:  cyclomatic,
		LinesOfCode: endLine - startLine + 1,
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') {
		return s[1 : len(s)-1]
	}
	return s
}
