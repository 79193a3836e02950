package graph

// symbolTable resolves call/import target names to arena node indices.
// Per spec.md §4.5: exact name_path match wins outright; otherwise a bare
// name may have several candidates (same function name in different
// files/classes), resolved by preferring a candidate in the caller's file,
// falling back to the first one seen during construction.
type symbolTable struct {
	arena      *Arena
	byNamePath map[string]int
	byName     map[string][]int
}

func newSymbolTable(a *Arena) *symbolTable {
	return &symbolTable{
		arena:      a,
		byNamePath: make(map[string]int),
		byName:     make(map[string][]int),
	}
}

// index registers a node under its name_path (exact) and bare name
// (candidate list), in first-seen order.
func (s *symbolTable) index(idx int, name, namePath string) {
	if namePath != "" {
		if _, exists := s.byNamePath[namePath]; !exists {
			s.byNamePath[namePath] = idx
		}
	}
	if name != "" {
		s.byName[name] = append(s.byName[name], idx)
	}
}

// resolve finds the best node index for ref, as seen from callerFile.
func (s *symbolTable) resolve(ref, callerFile string) (int, bool) {
	if idx, ok := s.byNamePath[ref]; ok {
		return idx, true
	}
	candidates := s.byName[ref]
	if len(candidates) == 0 {
		return 0, false
	}
	for _, idx := range candidates {
		if s.arena.Nodes[idx].FilePath == callerFile {
			return idx, true
		}
	}
	return candidates[0], true
}
