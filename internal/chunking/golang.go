package chunking

import (
	"mnemolite/pkg/types"
)

// goChunker implements languageChunker for Go source: top-level function
// declarations, top-level method declarations (receiver methods, whose
// name_path is "<ReceiverType>.<methodName>"), and interface type
// declarations. Go has no class syntax, so struct type declarations are not
// chunked on their own — only the methods hung off them, matching the
// spec's function/method/interface/module chunk_type set.
type goChunker struct{}

func (goChunker) chunkTree(tree *Tree, filePath string) []Result {
	col := newCollector()
	var out []Result

	source := tree.Source

	for _, child := range tree.Root.Children {
		switch child.Type {
		case "function_declaration":
			name := identifierName(child, source)
			np := col.namePath(types.ChunkTypeFunction, name, child.Line(), child.EndLineNumber())
			out = append(out, buildResult(tree, child, types.ChunkTypeFunction, name, np, filePath))

		case "method_declaration":
			name := fieldIdentifierName(child, source)
			recv := goReceiverType(child, source)
			np := name
			if recv != "" {
				np = recv + "." + name
			}
			np = col.namePath(types.ChunkTypeMethod, np, child.Line(), child.EndLineNumber())
			out = append(out, buildResult(tree, child, types.ChunkTypeMethod, name, np, filePath))

		case "type_declaration":
			for _, spec := range child.Children {
				if spec.Type != "type_spec" {
					continue
				}
				nameNode := spec.FirstChildOfType("type_identifier")
				if nameNode == nil {
					continue
				}
				if iface := spec.FirstChildOfType("interface_type"); iface != nil {
					name := nameNode.Content(source)
					np := col.namePath(types.ChunkTypeInterface, name, child.Line(), child.EndLineNumber())
					out = append(out, buildResult(tree, child, types.ChunkTypeInterface, name, np, filePath))
				}
			}
		}
	}
	return out
}

func identifierName(n *Node, source []byte) string {
	if id := n.FirstChildOfType("identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

func fieldIdentifierName(n *Node, source []byte) string {
	if id := n.FirstChildOfType("field_identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}

// goReceiverType extracts the bare receiver type name from a
// method_declaration's parameter_list (the receiver), stripping a leading
// pointer "*" if present.
func goReceiverType(method *Node, source []byte) string {
	recv := method.FirstChildOfType("parameter_list")
	if recv == nil {
		return ""
	}
	var typeName string
	recv.Walk(func(n *Node) bool {
		switch n.Type {
		case "pointer_type":
			if id := n.FirstChildOfType("type_identifier"); id != nil {
				typeName = id.Content(source)
			}
			return false
		case "type_identifier":
			if typeName == "" {
				typeName = n.Content(source)
			}
			return false
		}
		return true
	})
	return typeName
}
