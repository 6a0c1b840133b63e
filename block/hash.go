package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Hash is the content-derived identity of a block: 64 lowercase hex chars of
// a SHA-256 digest over the canonical serialization of logic + interface.
//
// Hash is the single identity value type shared by the registry, the
// semantic index, the executor's circuit breakers, and audit attribution,
// so equality and ordering semantics are defined exactly once.
type Hash string

// Less provides the stable ordering used for deterministic tie-breaks.
func (h Hash) Less(other Hash) bool {
	return h < other
}

// Short returns a truncated form for logs and display.
func (h Hash) Short() string {
	if len(h) <= 12 {
		return string(h)
	}
	return string(h[:12])
}

func (h Hash) String() string {
	return string(h)
}

// Valid reports whether h looks like a SHA-256 hex digest.
func (h Hash) Valid() bool {
	if len(h) != 64 {
		return false
	}
	_, err := hex.DecodeString(string(h))
	return err == nil
}

// ComputeHash derives a block's identity from its interface and logic
// reference. The serialization is canonical: encoding/json emits struct
// fields in declaration order and map keys sorted, so the same interface
// and logic always produce the same digest.
func ComputeHash(iface Interface, logicRef string) Hash {
	payload := struct {
		Interface Interface `json:"interface"`
		LogicRef  string    `json:"logic_ref"`
	}{iface, logicRef}

	// Marshal of a struct with no custom marshalers cannot fail.
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return Hash(hex.EncodeToString(sum[:]))
}
