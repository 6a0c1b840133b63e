// Package block defines the core data model: the immutable, hash-identified
// unit of verified logic and the candidate payload it is admitted from.
package block

// IOType is the declared type of a named input or output.
type IOType string

const (
	TypeString IOType = "string"
	TypeInt    IOType = "int"
	TypeFloat  IOType = "float"
	TypeBool   IOType = "bool"
	TypeList   IOType = "list"
	TypeMap    IOType = "map"
	TypeAny    IOType = "any"
)

// KnownIOTypes lists every type the schema accepts for interface params.
var KnownIOTypes = []IOType{
	TypeString, TypeInt, TypeFloat, TypeBool, TypeList, TypeMap, TypeAny,
}

// Param is a typed, named input or output of a block interface.
type Param struct {
	Name string `json:"name"`
	Type IOType `json:"type"`
}

// Interface is the ordered, typed signature of a block.
type Interface struct {
	Inputs  []Param `json:"inputs"`
	Outputs []Param `json:"outputs"`
}

// Purity declares whether a block's logic observes or mutates anything
// outside its inputs.
type Purity string

const (
	Pure   Purity = "pure"
	Impure Purity = "impure"
)

// Constraints are the declared behavioral guarantees of a block.
type Constraints struct {
	Purity        Purity   `json:"purity"`
	Deterministic bool     `json:"deterministic"`
	ThreadSafe    bool     `json:"thread_safe"`
	SideEffects   []string `json:"side_effects,omitempty"`
}

// FailureMode is a declared error condition of a block. Retryable modes are
// treated as transient by the guarded executor.
type FailureMode struct {
	Condition string `json:"condition"`
	Retryable bool   `json:"retryable"`
}

// Composition declares which semantic domains a block can chain with.
type Composition struct {
	CanChainFrom []string `json:"can_chain_from"`
	CanChainTo   []string `json:"can_chain_to"`
}

// Tier is the safety classification of an admitted block.
// Tier A is unrestricted (pure, deterministic, no side effects);
// Tier B requires an explicit per-call opt-in.
type Tier string

const (
	TierA Tier = "A"
	TierB Tier = "B"
)

// DeriveTier computes the tier label from declared constraints. The tier is
// always derived, never hand-set.
func DeriveTier(c Constraints) Tier {
	if c.Purity == Pure && c.Deterministic && len(c.SideEffects) == 0 {
		return TierA
	}
	return TierB
}

// Candidate is the payload supplied by the ingestion/conversion step.
// Every section listed here is mandatory; the schema validator rejects a
// candidate missing any of them with no partial admission.
type Candidate struct {
	Name            string            `json:"name" yaml:"name"`
	Description     string            `json:"description" yaml:"description"`
	Owner           string            `json:"owner" yaml:"owner"`
	License         string            `json:"license" yaml:"license"`
	SchemaVersion   string            `json:"schema_version" yaml:"schema_version"`
	Category        string            `json:"category" yaml:"category"`
	Interface       Interface         `json:"interface" yaml:"interface"`
	Constraints     Constraints       `json:"constraints" yaml:"constraints"`
	LogicRef        string            `json:"logic_ref" yaml:"logic_ref"`
	ValidationRules []string          `json:"validation_rules" yaml:"validation_rules"`
	FailureModes    []FailureMode     `json:"failure_modes" yaml:"failure_modes"`
	Composition     Composition       `json:"composition" yaml:"composition"`
	Metadata        map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Block is an admitted, immutable unit of logic. Logic and interface never
// change after admission; any change produces a new ContentHash and is a
// distinct entity.
type Block struct {
	ContentHash  Hash          `json:"content_hash"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Owner        string        `json:"owner"`
	License      string        `json:"license"`
	Category     string        `json:"category"`
	Interface    Interface     `json:"interface"`
	Constraints  Constraints   `json:"constraints"`
	LogicRef     string        `json:"logic_ref"`
	FailureModes []FailureMode `json:"failure_modes"`
	Composition  Composition   `json:"composition"`
	TrustTier    Tier          `json:"trust_tier"`
	TrustScore   float64       `json:"trust_score"`
}

// FromCandidate builds a Block from a validated candidate. Trust score and
// tier are filled in by the scorer before admission.
func FromCandidate(c Candidate) Block {
	return Block{
		ContentHash:  ComputeHash(c.Interface, c.LogicRef),
		Name:         c.Name,
		Description:  c.Description,
		Owner:        c.Owner,
		License:      c.License,
		Category:     c.Category,
		Interface:    c.Interface,
		Constraints:  c.Constraints,
		LogicRef:     c.LogicRef,
		FailureModes: c.FailureModes,
		Composition:  c.Composition,
		TrustTier:    DeriveTier(c.Constraints),
	}
}

// IsRetryable reports whether the named failure condition was declared
// retryable by the block.
func (b *Block) IsRetryable(condition string) bool {
	for _, fm := range b.FailureModes {
		if fm.Condition == condition {
			return fm.Retryable
		}
	}
	return false
}
