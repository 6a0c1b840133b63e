package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/errors"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// stringInput extracts a declared string input by name.
func stringInput(inputs map[string]any, name string) (string, error) {
	v, ok := inputs[name]
	if !ok {
		return "", errors.Newf("missing input: %s", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf("input %s: expected string, got %T", name, v)
	}
	return s, nil
}

// numberInput extracts a declared numeric input by name. JSON transports
// deliver numbers as float64; native callers may pass int or float64.
func numberInput(inputs map[string]any, name string) (float64, error) {
	v, ok := inputs[name]
	if !ok {
		return 0, errors.Newf("missing input: %s", name)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, errors.Newf("input %s: expected number, got %T", name, v)
	}
}

// listInput extracts a declared list input by name.
func listInput(inputs map[string]any, name string) ([]any, error) {
	v, ok := inputs[name]
	if !ok {
		return nil, errors.Newf("missing input: %s", name)
	}
	l, ok := v.([]any)
	if !ok {
		return nil, errors.Newf("input %s: expected list, got %T", name, v)
	}
	return l, nil
}

// RegisterBuiltins installs the built-in logic library into reg.
func RegisterBuiltins(reg *Registry) error {
	builtins := map[string]Logic{
		"reverse_string": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return map[string]any{"result": string(runes)}, nil
		},
		"to_upper_case": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": strings.ToUpper(s)}, nil
		},
		"to_lower_case": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": strings.ToLower(s)}, nil
		},
		"trim_whitespace": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": strings.TrimSpace(s)}, nil
		},
		"is_valid_email": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"valid": emailPattern.MatchString(s)}, nil
		},
		"mask_email": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			at := strings.Index(s, "@")
			if at <= 1 {
				return map[string]any{"result": s}, nil
			}
			return map[string]any{"result": s[:1] + strings.Repeat("*", at-1) + s[at:]}, nil
		},
		"is_palindrome": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			var letters []rune
			for _, r := range strings.ToLower(s) {
				if unicode.IsLetter(r) || unicode.IsDigit(r) {
					letters = append(letters, r)
				}
			}
			for i, j := 0, len(letters)-1; i < j; i, j = i+1, j-1 {
				if letters[i] != letters[j] {
					return map[string]any{"valid": false}, nil
				}
			}
			return map[string]any{"valid": true}, nil
		},
		"word_count": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": len(strings.Fields(s))}, nil
		},
		"count_vowels": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			count := 0
			for _, r := range strings.ToLower(s) {
				if strings.ContainsRune("aeiou", r) {
					count++
				}
			}
			return map[string]any{"count": count}, nil
		},
		"sha256_hex": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			sum := sha256.Sum256([]byte(s))
			return map[string]any{"result": hex.EncodeToString(sum[:])}, nil
		},
		"base64_encode": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": base64.StdEncoding.EncodeToString([]byte(s))}, nil
		},
		"sum_numbers": func(_ context.Context, in map[string]any) (map[string]any, error) {
			values, err := listInput(in, "values")
			if err != nil {
				return nil, err
			}
			total := 0.0
			for _, v := range values {
				n, err := numberInput(map[string]any{"v": v}, "v")
				if err != nil {
					// Non-numeric elements are dropped, per validation rules.
					continue
				}
				total += n
			}
			return map[string]any{"total": total}, nil
		},
		"filter_positive": func(_ context.Context, in map[string]any) (map[string]any, error) {
			values, err := listInput(in, "values")
			if err != nil {
				return nil, err
			}
			result := make([]any, 0, len(values))
			for _, v := range values {
				n, err := numberInput(map[string]any{"v": v}, "v")
				if err != nil {
					continue
				}
				if n > 0 {
					result = append(result, n)
				}
			}
			return map[string]any{"result": result}, nil
		},
		"sort_strings": func(_ context.Context, in map[string]any) (map[string]any, error) {
			values, err := listInput(in, "values")
			if err != nil {
				return nil, err
			}
			strs := make([]string, 0, len(values))
			for _, v := range values {
				s, ok := v.(string)
				if !ok {
					s = fmt.Sprint(v)
				}
				strs = append(strs, s)
			}
			sort.Strings(strs)
			result := make([]any, len(strs))
			for i, s := range strs {
				result[i] = s
			}
			return map[string]any{"result": result}, nil
		},
		"format_currency": func(_ context.Context, in map[string]any) (map[string]any, error) {
			amount, err := numberInput(in, "amount")
			if err != nil {
				return nil, err
			}
			return map[string]any{"result": fmt.Sprintf("$%.2f", amount)}, nil
		},
		"string_length": func(_ context.Context, in map[string]any) (map[string]any, error) {
			s, err := stringInput(in, "s")
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": len([]rune(s))}, nil
		},
		// current_timestamp is the one impure built-in: Tier B, opt-in only.
		"current_timestamp": func(_ context.Context, in map[string]any) (map[string]any, error) {
			return map[string]any{"result": time.Now().UTC().Format(time.RFC3339Nano)}, nil
		},
	}

	for ref, fn := range builtins {
		if err := reg.Register(ref, fn); err != nil {
			return err
		}
	}
	return nil
}

// pureContract is the shared constraint set for the pure built-ins.
var pureContract = block.Constraints{
	Purity:        block.Pure,
	Deterministic: true,
	ThreadSafe:    true,
}

func stringToString(name, desc, category, ref string, rules []string, comp block.Composition) block.Candidate {
	return block.Candidate{
		Name:          name,
		Description:   desc,
		Owner:         "blockforge",
		License:       "MIT",
		SchemaVersion: "1.0.0",
		Category:      category,
		Interface: block.Interface{
			Inputs:  []block.Param{{Name: "s", Type: block.TypeString}},
			Outputs: []block.Param{{Name: "result", Type: block.TypeString}},
		},
		Constraints:     pureContract,
		LogicRef:        ref,
		ValidationRules: rules,
		FailureModes:    []block.FailureMode{{Condition: "non_string_input", Retryable: false}},
		Composition:     comp,
	}
}

func stringToBool(name, desc, category, ref string, comp block.Composition) block.Candidate {
	return block.Candidate{
		Name:          name,
		Description:   desc,
		Owner:         "blockforge",
		License:       "MIT",
		SchemaVersion: "1.0.0",
		Category:      category,
		Interface: block.Interface{
			Inputs:  []block.Param{{Name: "s", Type: block.TypeString}},
			Outputs: []block.Param{{Name: "valid", Type: block.TypeBool}},
		},
		Constraints:     pureContract,
		LogicRef:        ref,
		ValidationRules: []string{"input must be a string"},
		FailureModes:    []block.FailureMode{{Condition: "non_string_input", Retryable: false}},
		Composition:     comp,
	}
}

func stringToCount(name, desc, category, ref string) block.Candidate {
	return block.Candidate{
		Name:          name,
		Description:   desc,
		Owner:         "blockforge",
		License:       "MIT",
		SchemaVersion: "1.0.0",
		Category:      category,
		Interface: block.Interface{
			Inputs:  []block.Param{{Name: "s", Type: block.TypeString}},
			Outputs: []block.Param{{Name: "count", Type: block.TypeInt}},
		},
		Constraints:     pureContract,
		LogicRef:        ref,
		ValidationRules: []string{"input must be a string"},
		FailureModes:    []block.FailureMode{{Condition: "non_string_input", Retryable: false}},
		Composition:     block.Composition{CanChainFrom: []string{"string", "transformation"}, CanChainTo: []string{"calculation", "comparison"}},
	}
}

// BuiltinCandidates returns the candidate payloads for the built-in library,
// in a stable order.
func BuiltinCandidates() []block.Candidate {
	chainStr := block.Composition{
		CanChainFrom: []string{"string", "transformation", "validation"},
		CanChainTo:   []string{"string", "transformation", "validation", "encoding", "hashing"},
	}
	chainValidate := block.Composition{
		CanChainFrom: []string{"string", "transformation"},
		CanChainTo:   []string{"validation", "filtering"},
	}

	candidates := []block.Candidate{
		stringToString("reverse_string", "Reverse a string rune-by-rune", "string", "reverse_string",
			[]string{"input must be a string"}, chainStr),
		stringToString("to_upper_case", "Uppercase a string", "string", "to_upper_case",
			[]string{"input must be a string"}, chainStr),
		stringToString("to_lower_case", "Lowercase a string", "string", "to_lower_case",
			[]string{"input must be a string"}, chainStr),
		stringToString("trim_whitespace", "Trim leading and trailing whitespace", "string", "trim_whitespace",
			[]string{"input must be a string"}, chainStr),
		stringToString("mask_email", "Mask the local part of an email address", "security", "mask_email",
			[]string{"input must be a string"}, chainStr),
		stringToString("sha256_hex", "SHA-256 digest of a string as hex", "hashing", "sha256_hex",
			[]string{"input must be a string"}, block.Composition{CanChainFrom: []string{"string", "transformation"}, CanChainTo: []string{"comparison"}}),
		stringToString("base64_encode", "Base64-encode a string", "encoding", "base64_encode",
			[]string{"input must be a string"}, block.Composition{CanChainFrom: []string{"string", "transformation"}, CanChainTo: []string{"io"}}),
		stringToBool("is_valid_email", "Validate an email address format", "validation", "is_valid_email", chainValidate),
		stringToBool("is_palindrome", "Check whether a string is a palindrome", "validation", "is_palindrome", chainValidate),
		stringToCount("word_count", "Count whitespace-separated words", "calculation", "word_count"),
		stringToCount("count_vowels", "Count vowels in a string", "calculation", "count_vowels"),
		stringToCount("string_length", "Count runes in a string", "calculation", "string_length"),
		{
			Name:          "sum_numbers",
			Description:   "Sum a list of numbers",
			Owner:         "blockforge",
			License:       "MIT",
			SchemaVersion: "1.0.0",
			Category:      "aggregation",
			Interface: block.Interface{
				Inputs:  []block.Param{{Name: "values", Type: block.TypeList}},
				Outputs: []block.Param{{Name: "total", Type: block.TypeFloat}},
			},
			Constraints:     pureContract,
			LogicRef:        "sum_numbers",
			ValidationRules: []string{"non-numeric elements are dropped"},
			FailureModes:    []block.FailureMode{{Condition: "non_numeric_element", Retryable: false}},
			Composition:     block.Composition{CanChainFrom: []string{"collection", "filtering"}, CanChainTo: []string{"calculation", "formatting"}},
		},
		{
			Name:          "filter_positive",
			Description:   "Keep only positive numbers from a list",
			Owner:         "blockforge",
			License:       "MIT",
			SchemaVersion: "1.0.0",
			Category:      "filtering",
			Interface: block.Interface{
				Inputs:  []block.Param{{Name: "values", Type: block.TypeList}},
				Outputs: []block.Param{{Name: "result", Type: block.TypeList}},
			},
			Constraints:     pureContract,
			LogicRef:        "filter_positive",
			ValidationRules: []string{"non-numeric elements are dropped"},
			FailureModes:    []block.FailureMode{{Condition: "non_list_input", Retryable: false}},
			Composition:     block.Composition{CanChainFrom: []string{"collection"}, CanChainTo: []string{"aggregation", "collection"}},
		},
		{
			Name:          "sort_strings",
			Description:   "Sort a list of strings ascending",
			Owner:         "blockforge",
			License:       "MIT",
			SchemaVersion: "1.0.0",
			Category:      "collection",
			Interface: block.Interface{
				Inputs:  []block.Param{{Name: "values", Type: block.TypeList}},
				Outputs: []block.Param{{Name: "result", Type: block.TypeList}},
			},
			Constraints:     pureContract,
			LogicRef:        "sort_strings",
			ValidationRules: []string{"non-string elements are stringified"},
			FailureModes:    []block.FailureMode{{Condition: "non_string_element", Retryable: false}},
			Composition:     block.Composition{CanChainFrom: []string{"collection", "filtering"}, CanChainTo: []string{"collection", "aggregation"}},
		},
		{
			Name:          "format_currency",
			Description:   "Format a number as a dollar amount",
			Owner:         "blockforge",
			License:       "MIT",
			SchemaVersion: "1.0.0",
			Category:      "calculation",
			Interface: block.Interface{
				Inputs:  []block.Param{{Name: "amount", Type: block.TypeFloat}},
				Outputs: []block.Param{{Name: "result", Type: block.TypeString}},
			},
			Constraints:     pureContract,
			LogicRef:        "format_currency",
			ValidationRules: []string{"input must be numeric"},
			FailureModes:    []block.FailureMode{{Condition: "non_numeric_input", Retryable: false}},
			Composition:     block.Composition{CanChainFrom: []string{"calculation", "aggregation"}, CanChainTo: []string{"string", "io"}},
		},
		{
			Name:          "current_timestamp",
			Description:   "Current UTC time in RFC 3339 format",
			Owner:         "blockforge",
			License:       "MIT",
			SchemaVersion: "1.0.0",
			Category:      "utility",
			Interface: block.Interface{
				Outputs: []block.Param{{Name: "result", Type: block.TypeString}},
			},
			Constraints: block.Constraints{
				Purity:        block.Impure,
				Deterministic: false,
				ThreadSafe:    true,
				SideEffects:   []string{"clock"},
			},
			LogicRef:        "current_timestamp",
			ValidationRules: []string{"no inputs"},
			FailureModes:    []block.FailureMode{{Condition: "clock_unavailable", Retryable: true}},
			Composition:     block.Composition{CanChainTo: []string{"string", "io"}},
		},
	}

	return candidates
}
