// Package trust computes the composite trust score that gates a block's
// visibility to search and composition.
package trust

import (
	"time"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/validate"
	"github.com/forgeworks/blockforge/verify"
)

// Component weights. Static-analysis risk is inverted: lower risk yields a
// higher contribution.
const (
	WeightDeterminism = 0.25
	WeightCoverage    = 0.25
	WeightLicense     = 0.20
	WeightStaticRisk  = 0.30

	// AdmissionFloor is the minimum score for a block to enter the
	// semantic index. Blocks below the floor stay in the registry but are
	// invisible to composition and search.
	AdmissionFloor = 0.2
)

// Assessment is the result of scoring one block.
type Assessment struct {
	ContentHash block.Hash         `json:"content_hash"`
	Score       float64            `json:"score"`
	Components  map[string]float64 `json:"components"`
	Tier        block.Tier         `json:"tier"`
	Indexable   bool               `json:"indexable"`
	AssessedAt  time.Time          `json:"assessed_at"`
}

// Score computes the weighted trust score for a verified block.
//
// The tier label is re-derived here from the block's constraints; it is
// never hand-set and never read back from storage as authoritative.
func Score(b *block.Block, rec verify.Record, analysis validate.StaticAnalysis, license validate.LicenseResult) Assessment {
	components := map[string]float64{
		"determinism": determinismComponent(b, rec),
		"coverage":    rec.Coverage(),
		"license":     license.Score,
		"static_risk": 1.0 - analysis.Risk,
	}

	score := WeightDeterminism*components["determinism"] +
		WeightCoverage*components["coverage"] +
		WeightLicense*components["license"] +
		WeightStaticRisk*components["static_risk"]

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return Assessment{
		ContentHash: b.ContentHash,
		Score:       score,
		Components:  components,
		Tier:        block.DeriveTier(b.Constraints),
		Indexable:   rec.Passed && score >= AdmissionFloor,
		AssessedAt:  time.Now().UTC(),
	}
}

func determinismComponent(b *block.Block, rec verify.Record) float64 {
	switch {
	case !rec.Passed:
		return 0.0
	case b.Constraints.Deterministic && rec.Repeatable:
		return 1.0
	default:
		// Verified but not declared deterministic: partial credit only.
		return 0.4
	}
}
