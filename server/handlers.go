package server

import (
	"net/http"
	"strconv"

	"github.com/forgeworks/blockforge/block"
	"github.com/forgeworks/blockforge/compose"
	"github.com/forgeworks/blockforge/intent"
	"github.com/forgeworks/blockforge/run"
	"github.com/forgeworks/blockforge/semindex"
)

// HandleHealth reports liveness plus basic registry counters.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	counts := s.admission.Registry().Stats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"blocks":  counts.Total,
		"indexed": s.admission.Index().Len(),
	})
}

// blockSummary is the list-view projection of a registry record.
type blockSummary struct {
	ContentHash string  `json:"content_hash"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Status      string  `json:"status"`
	Tier        string  `json:"tier"`
	TrustScore  float64 `json:"trust_score"`
}

// HandleBlocks lists registry records (GET) or submits a candidate for
// admission (POST).
func (s *Server) HandleBlocks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		records := s.admission.Registry().List()
		summaries := make([]blockSummary, 0, len(records))
		for _, rec := range records {
			summaries = append(summaries, blockSummary{
				ContentHash: string(rec.Block.ContentHash),
				Name:        rec.Block.Name,
				Category:    rec.Block.Category,
				Status:      string(rec.Status),
				Tier:        string(rec.Block.TrustTier),
				TrustScore:  rec.Block.TrustScore,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"blocks": summaries})

	case http.MethodPost:
		var candidate block.Candidate
		if err := readJSON(w, r, &candidate); err != nil {
			return
		}
		rec, err := s.admission.Submit(r.Context(), candidate)
		if err != nil {
			s.logger.Warnw("Candidate submission failed",
				"candidate", candidate.Name,
				"error", err,
			)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, rec)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// HandleBlock returns one registry record by content hash.
func (s *Server) HandleBlock(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	hash := r.URL.Path[len("/api/blocks/"):]
	rec, ok := s.admission.Registry().Get(block.Hash(hash))
	if !ok {
		writeError(w, http.StatusNotFound, "block not found: "+shortID(hash))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleSearch queries the semantic index.
//
// Query parameters: q (free text), domain, operation, tier, min_trust,
// limit. All optional; results are ordered by trust descending.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()

	filter := semindex.Filter{
		Domain:    semindex.Domain(q.Get("domain")),
		Operation: semindex.Operation(q.Get("operation")),
		Query:     q.Get("q"),
		Limit:     s.resultLimit,
	}
	if tier := q.Get("tier"); tier != "" {
		filter.TierFilter = block.Tier(tier)
	}
	if raw := q.Get("min_trust"); raw != "" {
		minTrust, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid min_trust: "+raw)
			return
		}
		filter.MinTrust = minTrust
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		filter.Limit = limit
	}

	entries := s.admission.Index().Query(filter)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"results": entries,
	})
}

// executeRequest is the POST /api/execute body.
type executeRequest struct {
	Query      string                 `json:"query"`
	Inputs     map[string]interface{} `json:"inputs"`
	TierBOptIn bool                   `json:"tier_b_opt_in"`
	MinTrust   *float64               `json:"min_trust,omitempty"`
	MaxNodes   int                    `json:"max_nodes,omitempty"`
}

// executeResponse wraps the run result with the composed graph.
type executeResponse struct {
	Matched bool        `json:"matched"`
	Graph   interface{} `json:"graph,omitempty"`
	Message string      `json:"message,omitempty"`
	Result  *run.Result `json:"result,omitempty"`
}

// HandleExecute parses an intent query, composes an execution graph and
// runs it under the execution guards. A query that matches no blocks is a
// 200 with matched=false, not an error.
func (s *Server) HandleExecute(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	var req executeRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	agentID := r.Header.Get("X-Agent-ID")

	minTrust := s.minTrust
	if req.MinTrust != nil {
		minTrust = *req.MinTrust
	}
	maxNodes := s.maxNodes
	if req.MaxNodes > 0 {
		maxNodes = req.MaxNodes
	}

	parsed := intent.Parse(req.Query)
	graph := s.composer.Compose(parsed, compose.Options{
		MinTrust:   minTrust,
		MaxNodes:   maxNodes,
		TierBOptIn: req.TierBOptIn,
		AgentID:    agentID,
	})

	if graph.Empty() {
		writeJSON(w, http.StatusOK, executeResponse{
			Matched: false,
			Message: "no blocks match the requested intent",
		})
		return
	}

	result := s.executor.Execute(r.Context(), graph, req.Inputs, run.Options{
		TierBOptIn: req.TierBOptIn,
		AgentID:    agentID,
	})

	s.logger.Infow("Intent executed",
		"query", req.Query,
		"agent_id", agentID,
		"execution_id", shortID(result.ExecutionID),
		"blocks", graph.BlockNames(),
		"success", result.IsSuccess,
	)

	writeJSON(w, http.StatusOK, executeResponse{
		Matched: true,
		Graph:   graph,
		Result:  result,
	})
}

// HandleStats aggregates registry, index and audit counters.
func (s *Server) HandleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"registry": s.admission.Registry().Stats(),
		"index": map[string]interface{}{
			"entries": s.admission.Index().Len(),
			"domains": s.admission.Index().Domains(),
		},
		"audit": s.chain.Summarize(),
	})
}

// HandleAudit returns chain entries, newest last. The limit parameter
// bounds the result to the most recent N entries.
func (s *Server) HandleAudit(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	entries := s.chain.Entries()
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+raw)
			return
		}
		if limit < len(entries) {
			entries = entries[len(entries)-limit:]
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(entries),
		"entries": entries,
		"tip":     s.chain.Tip(),
	})
}

// HandleAuditVerify re-derives every entry hash and reports the first
// mismatch, if any.
func (s *Server) HandleAuditVerify(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	valid, firstInvalid := s.chain.Verify()
	resp := map[string]interface{}{"valid": valid}
	if !valid {
		resp["first_invalid_index"] = firstInvalid
		s.logger.Errorw("Audit chain integrity failure",
			"first_invalid_index", firstInvalid,
		)
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandlePolicy returns the active policy rules snapshot.
func (s *Server) HandlePolicy(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, s.policy.Rules())
}
