package semindex

// Domain is the semantic domain of a block.
type Domain string

const (
	DomainString         Domain = "string"
	DomainValidation     Domain = "validation"
	DomainCollection     Domain = "collection"
	DomainFiltering      Domain = "filtering"
	DomainCalculation    Domain = "calculation"
	DomainTransformation Domain = "transformation"
	DomainIO             Domain = "io"
	DomainUtility        Domain = "utility"
	DomainAggregation    Domain = "aggregation"
	DomainComparison     Domain = "comparison"
	DomainSecurity       Domain = "security"
	DomainEncoding       Domain = "encoding"
	DomainHashing        Domain = "hashing"
)

// Operation is the semantic operation a block performs.
type Operation string

const (
	OpTransform Operation = "transform"
	OpValidate  Operation = "validate"
	OpCalculate Operation = "calculate"
	OpFilter    Operation = "filter"
	OpSort      Operation = "sort"
	OpReduce    Operation = "reduce"
	OpCompare   Operation = "compare"
	OpEncode    Operation = "encode"
	OpHash      Operation = "hash"
	OpCheck     Operation = "check"
)

// DomainOp pairs a semantic domain with its characteristic operation.
type DomainOp struct {
	Domain    Domain
	Operation Operation
}

// categoryMapping is the explicit finite table from block category strings
// to semantic descriptors. Unmapped categories fall through to
// defaultDomainOp; the table is validated exhaustively in tests so a new
// category fails loudly there rather than silently misclassifying in
// production.
var categoryMapping = map[string]DomainOp{
	"string":         {DomainString, OpTransform},
	"text":           {DomainString, OpTransform},
	"validation":     {DomainValidation, OpValidate},
	"collection":     {DomainCollection, OpSort},
	"filtering":      {DomainFiltering, OpFilter},
	"calculation":    {DomainCalculation, OpCalculate},
	"transformation": {DomainTransformation, OpTransform},
	"io":             {DomainIO, OpTransform},
	"aggregation":    {DomainAggregation, OpReduce},
	"comparison":     {DomainComparison, OpCompare},
	"security":       {DomainSecurity, OpTransform},
	"encoding":       {DomainEncoding, OpEncode},
	"hashing":        {DomainHashing, OpHash},
	"utility":        {DomainUtility, OpTransform},
}

// defaultDomainOp is the declared fallback for unmapped categories.
var defaultDomainOp = DomainOp{DomainUtility, OpTransform}

// MapCategory resolves a block category string to its semantic descriptor.
func MapCategory(category string) DomainOp {
	if d, ok := categoryMapping[category]; ok {
		return d
	}
	return defaultDomainOp
}

// KnownCategories returns every category in the mapping table.
func KnownCategories() []string {
	cats := make([]string, 0, len(categoryMapping))
	for c := range categoryMapping {
		cats = append(cats, c)
	}
	return cats
}
