package chunking

import (
	"bufio"
	"bytes"
	"fmt"

	"mnemolite/pkg/types"
)

// fallbackChunker produces fixed-line-window chunks when AST parsing is
// unavailable or fails, per spec.md §4.2 step 3. Windows in this path may
// overlap, unlike the non-overlapping AST path.
type fallbackChunker struct {
	windowLines  int
	overlapLines int
}

func newFallbackChunker(windowLines, overlapLines int) *fallbackChunker {
	return &fallbackChunker{windowLines: windowLines, overlapLines: overlapLines}
}

func (f *fallbackChunker) chunk(source []byte, filePath, reason string) []Result {
	lines := splitLines(source)
	if len(lines) == 0 {
		return nil
	}

	stride := f.windowLines - f.overlapLines
	if stride <= 0 {
		stride = f.windowLines
	}

	var out []Result
	for start := 0; start < len(lines); start += stride {
		end := start + f.windowLines
		if end > len(lines) {
			end = len(lines)
		}
		body := joinLines(lines[start:end])
		out = append(out, Result{
			Chunk: types.Chunk{
				ID:         types.NewUUID(),
				FilePath:   filePath,
				ChunkType:  types.ChunkTypeFallbackBlock,
				Name:       fmt.Sprintf("block_%d_%d", start+1, end),
				NamePath:   fmt.Sprintf("%s:L%d-%d", filePath, start+1, end),
				SourceCode: body,
				StartLine:  start + 1,
				EndLine:    end,
				Metadata: map[string]interface{}{
					"fallback": true,
					"reason":   reason,
				},
			},
		})
		if end == len(lines) {
			break
		}
	}
	return out
}

func splitLines(source []byte) []string {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(source))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines
}

func joinLines(lines []string) string {
	var buf bytes.Buffer
	for i, l := range lines {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString(l)
	}
	return buf.String()
}
