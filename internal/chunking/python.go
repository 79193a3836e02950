package chunking

import (
	"mnemolite/pkg/types"
)

// pythonChunker implements languageChunker for Python. Python has no
// distinct method node type — methods are plain function_definition nodes
// nested in a class_definition's body block — so top-level and nested
// function_definition nodes are distinguished structurally, not by node type.
type pythonChunker struct{}

func (pythonChunker) chunkTree(tree *Tree, filePath string) []Result {
	col := newCollector()
	var out []Result
	source := tree.Source

	for _, child := range tree.Root.Children {
		switch child.Type {
		case "function_definition":
			name := pyIdentifier(child, source)
			np := col.namePath(types.ChunkTypeFunction, name, child.Line(), child.EndLineNumber())
			out = append(out, buildResult(tree, child, types.ChunkTypeFunction, name, np, filePath))

		case "class_definition":
			className := pyIdentifier(child, source)
			np := col.namePath(types.ChunkTypeClass, className, child.Line(), child.EndLineNumber())
			out = append(out, buildResult(tree, child, types.ChunkTypeClass, className, np, filePath))

			body := child.FirstChildOfType("block")
			if body != nil {
				for _, member := range body.Children {
					if member.Type != "function_definition" {
						continue
					}
					name := pyIdentifier(member, source)
					mnp := col.namePath(types.ChunkTypeMethod, className+"."+name, member.Line(), member.EndLineNumber())
					out = append(out, buildResult(tree, member, types.ChunkTypeMethod, name, mnp, filePath))
				}
			}
		}
	}
	return out
}

func pyIdentifier(n *Node, source []byte) string {
	if id := n.FirstChildOfType("identifier"); id != nil {
		return id.Content(source)
	}
	return ""
}
