package registry

import (
	"context"

	"go.uber.org/zap"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/catalog"
	"github.com/forgeworks/blockforge/errors"
	"github.com/forgeworks/blockforge/semindex"
	"github.com/forgeworks/blockforge/trust"
	"github.com/forgeworks/blockforge/validate"
	"github.com/forgeworks/blockforge/verify"
)

// Service drives the admission pipeline for candidate blocks:
// validate -> verify -> score -> admit or quarantine -> index.
type Service struct {
	registry *Registry
	verifier *verify.Verifier
	index    *semindex.Index
	store    *Store // optional persistence
	logger   *zap.SugaredLogger
}

// NewService wires the admission pipeline. store may be nil for in-memory
// operation.
func NewService(reg *Registry, verifier *verify.Verifier, index *semindex.Index, store *Store, logger *zap.SugaredLogger) *Service {
	return &Service{
		registry: reg,
		verifier: verifier,
		index:    index,
		store:    store,
		logger:   logger,
	}
}

// Registry exposes the underlying store for read paths.
func (s *Service) Registry() *Registry { return s.registry }

// Index exposes the semantic index for query paths.
func (s *Service) Index() *semindex.Index { return s.index }

// Submit runs one candidate through the full admission pipeline.
//
// Outcomes:
//   - schema rejection: ErrSchemaRejected, nothing stored
//   - verification failure: block stored quarantined (terminal), ErrQuarantined
//   - verified below the trust floor: admitted but not indexed
//   - verified at or above the floor: admitted and indexed
//
// Resubmitting an already-stored hash returns the existing record; a
// quarantined hash can only be retried by changing content, which produces
// a new hash.
func (s *Service) Submit(ctx context.Context, c block.Candidate) (*Record, error) {
	if result := validate.Validate(c); !result.Valid {
		if s.logger != nil {
			s.logger.Warnw("Candidate rejected by schema validator",
				"candidate", c.Name,
				"reasons", result.Reasons,
			)
		}
		return nil, result.Err()
	}

	b := block.FromCandidate(c)

	// Terminal states short-circuit before any re-verification.
	if existing, ok := s.registry.Get(b.ContentHash); ok {
		if existing.Status == StatusQuarantined {
			return existing, errors.Wrapf(errors.ErrQuarantined, "block %s", b.ContentHash.Short())
		}
		return existing, nil
	}

	rec := s.verifier.Verify(ctx, &b)
	if !rec.Passed {
		stored, _ := s.registry.Quarantine(&b, rec)
		s.index.Remove(b.ContentHash)
		s.persist(stored)
		if s.logger != nil {
			s.logger.Warnw("Block quarantined after dynamic verification",
				"block", b.Name,
				"hash", b.ContentHash.Short(),
				"reason", rec.Reason,
			)
		}
		return stored, errors.Wrapf(errors.ErrQuarantined, "block %s: %s", b.Name, rec.Reason)
	}

	assessment := trust.Score(&b, rec, validate.Analyze(c), validate.CheckLicense(c.License))
	b.TrustScore = assessment.Score
	b.TrustTier = assessment.Tier

	stored, err := s.registry.Admit(&b, rec, assessment)
	if err != nil {
		return stored, err
	}
	s.persist(stored)

	if assessment.Indexable {
		s.index.Upsert(semindex.EntryFor(&b))
	} else if s.logger != nil {
		s.logger.Infow("Block admitted below trust floor; excluded from index",
			"block", b.Name,
			"hash", b.ContentHash.Short(),
			"score", assessment.Score,
		)
	}

	if s.logger != nil {
		s.logger.Infow("Block admitted",
			"block", b.Name,
			"hash", b.ContentHash.Short(),
			"tier", b.TrustTier,
			"score", b.TrustScore,
			"indexed", assessment.Indexable,
		)
	}
	return stored, nil
}

// SubmitAll admits a batch of candidates, continuing past per-candidate
// rejections. Returns the number admitted.
func (s *Service) SubmitAll(ctx context.Context, candidates []block.Candidate) int {
	admitted := 0
	for _, c := range candidates {
		rec, err := s.Submit(ctx, c)
		if err != nil {
			continue
		}
		if rec.Status == StatusAdmitted {
			admitted++
		}
	}
	return admitted
}

func (s *Service) persist(rec *Record) {
	if s.store == nil || rec == nil {
		return
	}
	if err := s.store.Save(rec); err != nil && s.logger != nil {
		s.logger.Errorw("Failed to persist block record",
			"hash", rec.Block.ContentHash.Short(),
			"error", err,
		)
	}
}

// RestoreFromStore reloads persisted records into memory and rebuilds the
// semantic index from admitted, indexable blocks.
func (s *Service) RestoreFromStore() error {
	if s.store == nil {
		return nil
	}
	records, err := s.store.LoadAll()
	if err != nil {
		return errors.Wrap(err, "load persisted blocks")
	}
	for _, rec := range records {
		if rec.Status == StatusQuarantined {
			s.registry.Quarantine(rec.Block, rec.Verification)
			continue
		}
		if _, err := s.registry.Admit(rec.Block, rec.Verification, rec.Assessment); err != nil {
			continue
		}
		if rec.Assessment.Indexable {
			s.index.Upsert(semindex.EntryFor(rec.Block))
		}
	}
	if s.logger != nil {
		s.logger.Infow("Registry restored from store", "records", len(records))
	}
	return nil
}

// VerifyLogicRefs confirms at bootstrap that every admitted block's
// logic_ref resolves in the logic catalog.
func (s *Service) VerifyLogicRefs(logic *catalog.Registry) []string {
	var missing []string
	for _, rec := range s.registry.List() {
		if rec.Status != StatusAdmitted {
			continue
		}
		if _, ok := logic.Lookup(rec.Block.LogicRef); !ok {
			missing = append(missing, rec.Block.LogicRef)
		}
	}
	return missing
}
