package verify

import "github.com/forgeworks/blockforge/block"

// boundaryValues returns the generated test values for a declared input
// type, always including the empty/zero/min/max boundaries.
func boundaryValues(t block.IOType) []any {
	switch t {
	case block.TypeString:
		return []any{
			"",
			"a",
			"hello world",
			"  padded  ",
			"héllo wörld ✓",
			"A man, a plan, a canal: Panama",
		}
	case block.TypeInt:
		return []any{0, 1, -1, 2147483647, -2147483648}
	case block.TypeFloat:
		return []any{0.0, 1.5, -2.75, 1e12, 1e-9}
	case block.TypeBool:
		return []any{true, false}
	case block.TypeList:
		return []any{
			[]any{},
			[]any{"b", "a", "c"},
			[]any{1.0, -2.5, 3.0, 0.0},
		}
	case block.TypeMap:
		return []any{
			map[string]any{},
			map[string]any{"key": "value", "n": 1.0},
		}
	default: // TypeAny and unknown
		return []any{nil, "x", 0.0, true}
	}
}

// generateCases builds the input sets for a block's declared interface.
// Each declared input cycles through its boundary values while the other
// inputs hold their first boundary value, so case count stays linear in
// interface width. A block with no inputs gets one empty case.
func generateCases(iface block.Interface) []map[string]any {
	if len(iface.Inputs) == 0 {
		return []map[string]any{{}}
	}

	base := make(map[string]any, len(iface.Inputs))
	for _, p := range iface.Inputs {
		base[p.Name] = boundaryValues(p.Type)[0]
	}

	var cases []map[string]any
	for _, p := range iface.Inputs {
		for _, v := range boundaryValues(p.Type) {
			c := make(map[string]any, len(base))
			for k, bv := range base {
				c[k] = bv
			}
			c[p.Name] = v
			cases = append(cases, c)
		}
	}
	return cases
}
