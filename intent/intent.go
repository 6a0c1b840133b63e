// Package intent is the boundary adapter that turns free-text queries into
// the canonical descriptor the composer consumes. Real deployments feed
// richer parsers (or an LLM) through the same compose.Intent contract;
// this keyword table covers the built-in library's vocabulary.
package intent

import (
	"sort"
	"strings"
	"sync"

	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/semindex"
)

// verbRule maps one query verb to a semantic stage plus the nouns that can
// narrow candidate selection within it. The first listed noun found in the
// query wins; otherwise defaultSubject applies.
type verbRule struct {
	stage          compose.Stage
	nouns          []string
	defaultSubject string
}

var verbRules = map[string]verbRule{
	"validate": {stage: compose.Stage{Domain: semindex.DomainValidation, Operation: semindex.OpValidate}, nouns: []string{"email", "palindrome"}},
	"check":    {stage: compose.Stage{Domain: semindex.DomainValidation, Operation: semindex.OpValidate}, nouns: []string{"email", "palindrome"}},
	"verify":   {stage: compose.Stage{Domain: semindex.DomainValidation, Operation: semindex.OpValidate}, nouns: []string{"email", "palindrome"}},

	"reverse":   {stage: compose.Stage{Domain: semindex.DomainString, Operation: semindex.OpTransform}, defaultSubject: "reverse"},
	"uppercase": {stage: compose.Stage{Domain: semindex.DomainString, Operation: semindex.OpTransform}, defaultSubject: "upper"},
	"lowercase": {stage: compose.Stage{Domain: semindex.DomainString, Operation: semindex.OpTransform}, defaultSubject: "lower"},
	"trim":      {stage: compose.Stage{Domain: semindex.DomainString, Operation: semindex.OpTransform}, defaultSubject: "whitespace"},

	"mask":     {stage: compose.Stage{Domain: semindex.DomainSecurity, Operation: semindex.OpTransform}, nouns: []string{"email"}, defaultSubject: "mask"},
	"sanitize": {stage: compose.Stage{Domain: semindex.DomainSecurity, Operation: semindex.OpTransform}},

	"hash":   {stage: compose.Stage{Domain: semindex.DomainHashing, Operation: semindex.OpHash}, defaultSubject: "sha256"},
	"digest": {stage: compose.Stage{Domain: semindex.DomainHashing, Operation: semindex.OpHash}, defaultSubject: "sha256"},
	"encode": {stage: compose.Stage{Domain: semindex.DomainEncoding, Operation: semindex.OpEncode}, defaultSubject: "base64"},

	"count":     {stage: compose.Stage{Domain: semindex.DomainCalculation, Operation: semindex.OpCalculate}, nouns: []string{"vowel", "word", "length"}},
	"calculate": {stage: compose.Stage{Domain: semindex.DomainCalculation, Operation: semindex.OpCalculate}, nouns: []string{"vowel", "word", "length", "currency"}},
	"format":    {stage: compose.Stage{Domain: semindex.DomainCalculation, Operation: semindex.OpCalculate}, nouns: []string{"currency"}, defaultSubject: "currency"},

	"sum":    {stage: compose.Stage{Domain: semindex.DomainAggregation, Operation: semindex.OpReduce}},
	"total":  {stage: compose.Stage{Domain: semindex.DomainAggregation, Operation: semindex.OpReduce}},
	"filter": {stage: compose.Stage{Domain: semindex.DomainFiltering, Operation: semindex.OpFilter}, nouns: []string{"positive"}},
	"sort":   {stage: compose.Stage{Domain: semindex.DomainCollection, Operation: semindex.OpSort}},
	"order":  {stage: compose.Stage{Domain: semindex.DomainCollection, Operation: semindex.OpSort}},

	"compare":   {stage: compose.Stage{Domain: semindex.DomainComparison, Operation: semindex.OpCompare}},
	"timestamp": {stage: compose.Stage{Domain: semindex.DomainUtility, Operation: semindex.OpTransform}, defaultSubject: "timestamp"},
}

// fallbackSubjects resolve noun-only queries ("email of the user") to a
// single narrowed utility stage.
var fallbackSubjects = []string{
	"email", "palindrome", "vowel", "word", "currency", "positive",
	"timestamp", "base64", "sha256", "whitespace",
}

// Parse maps a free-text query to a canonical intent descriptor. Stages
// appear in query order. Parsing is deterministic: the same query always
// yields the same descriptor.
func Parse(query string) compose.Intent {
	in := compose.Intent{Query: query}
	lower := strings.ToLower(query)

	var words []string
	for _, w := range strings.Fields(lower) {
		words = append(words, strings.Trim(w, ".,:;!?\"'()"))
	}

	for _, w := range words {
		rule, ok := verbRules[w]
		if !ok {
			// Stem forms: "validates", "sorted", "counting". Keys are
			// scanned in sorted order so stemming stays deterministic.
			for _, key := range sortedVerbs() {
				if strings.HasPrefix(w, key) {
					rule, ok = verbRules[key], true
					break
				}
			}
		}
		if !ok {
			continue
		}

		stage := rule.stage
		stage.Subject = rule.defaultSubject
		for _, noun := range rule.nouns {
			if strings.Contains(lower, noun) {
				stage.Subject = noun
				break
			}
		}
		in.Stages = append(in.Stages, stage)
	}

	if len(in.Stages) == 0 {
		for _, subj := range fallbackSubjects {
			if strings.Contains(lower, subj) {
				// Noun-only query: leave domain and operation open and
				// let subject relevance drive selection.
				in.Stages = append(in.Stages, compose.Stage{Subject: subj})
				break
			}
		}
	}
	return in
}

var verbsSorted []string
var verbsOnce sync.Once

func sortedVerbs() []string {
	verbsOnce.Do(func() {
		for key := range verbRules {
			verbsSorted = append(verbsSorted, key)
		}
		sort.Strings(verbsSorted)
	})
	return verbsSorted
}
