package chunking

import (
	"mnemolite/pkg/types"
)

// tsjsChunker implements languageChunker for TypeScript and JavaScript,
// which share enough grammar shape (export wrappers, class bodies, method
// definitions) to use one walker parameterised by LanguageSpec.
type tsjsChunker struct {
	spec *LanguageSpec
}

func (t tsjsChunker) chunkTree(tree *Tree, filePath string) []Result {
	col := newCollector()
	var out []Result
	source := tree.Source

	for _, child := range tree.Root.Children {
		target := unwrapExport(child)

		switch {
		case isOneOf(target.Type, t.spec.FunctionTypes):
			name := tsjsName(target, source)
			np := col.namePath(types.ChunkTypeFunction, name, target.Line(), target.EndLineNumber())
			out = append(out, buildResult(tree, target, types.ChunkTypeFunction, name, np, filePath))

		case isOneOf(target.Type, t.spec.ClassTypes):
			className := tsjsName(target, source)
			np := col.namePath(types.ChunkTypeClass, className, target.Line(), target.EndLineNumber())
			out = append(out, buildResult(tree, target, types.ChunkTypeClass, className, np, filePath))
			out = append(out, t.methodsOf(tree, target, className, col, filePath)...)

		case isOneOf(target.Type, t.spec.InterfaceTypes):
			name := tsjsName(target, source)
			np := col.namePath(types.ChunkTypeInterface, name, target.Line(), target.EndLineNumber())
			out = append(out, buildResult(tree, target, types.ChunkTypeInterface, name, np, filePath))
		}
	}
	return out
}

func (t tsjsChunker) methodsOf(tree *Tree, class *Node, className string, col *collector, filePath string) []Result {
	body := class.FirstChildOfType("class_body")
	if body == nil {
		return nil
	}
	var out []Result
	for _, member := range body.Children {
		if !isOneOf(member.Type, t.spec.MethodTypes) {
			continue
		}
		name := tsjsName(member, tree.Source)
		np := col.namePath(types.ChunkTypeMethod, className+"."+name, member.Line(), member.EndLineNumber())
		out = append(out, buildResult(tree, member, types.ChunkTypeMethod, name, np, filePath))
	}
	return out
}

// unwrapExport follows a single level of "export"/"export_statement"
// wrapping to reach the underlying declaration, or returns n unchanged.
func unwrapExport(n *Node) *Node {
	if n.Type != "export_statement" {
		return n
	}
	for _, c := range n.Children {
		switch c.Type {
		case "function_declaration", "function", "class_declaration", "interface_declaration":
			return c
		}
	}
	return n
}

// tsjsName extracts the declared identifier of a function/class/interface/
// method node. Method definitions name their identifier via "property_identifier".
func tsjsName(n *Node, source []byte) string {
	if id := n.FirstChildOfType("identifier"); id != nil {
		return id.Content(source)
	}
	if id := n.FirstChildOfType("type_identifier"); id != nil {
		return id.Content(source)
	}
	if id := n.FirstChildOfType("property_identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}
