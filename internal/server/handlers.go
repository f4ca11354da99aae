package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/deckhaven/cardex/internal/embedding"
	"github.com/deckhaven/cardex/internal/engine"
	"github.com/deckhaven/cardex/internal/rules"
	"github.com/deckhaven/cardex/internal/storage"
	"github.com/deckhaven/cardex/pkg/types"
)

// Handlers bundles the HTTP handlers over the query core.
type Handlers struct {
	search   *engine.SearchService
	matcher  *rules.Matcher
	detector *rules.Detector
	ingestor *rules.Ingestor
	catalog  *rules.Provider
	backend  storage.Backend
	hub      *ActivityHub

	defaultThreshold float64
}

// NewHandlers creates the handler set. hub may be nil to disable the
// activity feed.
func NewHandlers(search *engine.SearchService, matcher *rules.Matcher, detector *rules.Detector, ingestor *rules.Ingestor, catalog *rules.Provider, backend storage.Backend, hub *ActivityHub, defaultThreshold float64) *Handlers {
	return &Handlers{
		search:           search,
		matcher:          matcher,
		detector:         detector,
		ingestor:         ingestor,
		catalog:          catalog,
		backend:          backend,
		hub:              hub,
		defaultThreshold: defaultThreshold,
	}
}

// Routes registers all API routes on the mux.
func (h *Handlers) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.handleSearch)
	mux.HandleFunc("GET /api/cards/{id}", h.handleGetCard)
	mux.HandleFunc("GET /api/cards/{id}/rules", h.handleMatchRules)
	mux.HandleFunc("GET /api/interactions", h.handleFindInteractions)
	mux.HandleFunc("POST /api/tags", h.handleIngestTags)
	mux.HandleFunc("GET /api/stats", h.handleStats)
}

func (h *Handlers) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	opts := storage.SearchOptions{
		Offset:    queryInt(r, "offset", 0),
		Threshold: queryFloat(r, "threshold", h.defaultThreshold),
	}
	// An absent or unparseable limit means the default; an explicit
	// out-of-range limit is clamped. Normalize treats zero as unset, so the
	// low end is clamped here where the two cases are still distinguishable.
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < 1 {
				n = 1
			}
			opts.Limit = n
		}
	}

	result, err := h.search.Search(r.Context(), q, opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.publish(ActivityEvent{Kind: "search", Query: result.Query, Results: len(result.Cards), At: time.Now().UTC()})
	writeJSON(w, http.StatusOK, result)
}

func (h *Handlers) handleGetCard(w http.ResponseWriter, r *http.Request) {
	card, err := h.backend.GetCard(r.Context(), r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handlers) handleMatchRules(w http.ResponseWriter, r *http.Request) {
	cardID := r.PathValue("id")
	bindings, err := h.matcher.MatchRules(r.Context(), cardID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Refresh the binding cache opportunistically; a failed write doesn't
	// fail the read.
	if err := h.backend.ReplaceBindings(r.Context(), cardID, bindings); err != nil {
		log.Printf("server: cache bindings for %s: %v", cardID, err)
	}

	h.publish(ActivityEvent{Kind: "match_rules", CardIDs: []string{cardID}, Results: len(bindings), At: time.Now().UTC()})
	writeJSON(w, http.StatusOK, map[string]any{
		"card_id":  cardID,
		"bindings": bindings,
	})
}

func (h *Handlers) handleFindInteractions(w http.ResponseWriter, r *http.Request) {
	a := r.URL.Query().Get("a")
	b := r.URL.Query().Get("b")

	results, err := h.detector.FindInteractions(r.Context(), a, b)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.publish(ActivityEvent{Kind: "find_interactions", CardIDs: []string{a, b}, Results: len(results), At: time.Now().UTC()})
	writeJSON(w, http.StatusOK, map[string]any{
		"card_a":       a,
		"card_b":       b,
		"interactions": results,
	})
}

func (h *Handlers) handleIngestTags(w http.ResponseWriter, r *http.Request) {
	var observations []rules.TagObservation
	if err := json.NewDecoder(r.Body).Decode(&observations); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result := h.ingestor.Ingest(observations)

	// Accepted bindings merge into each card's cache entry; a failed write
	// is logged, not surfaced, since the cache can be rebuilt at any time.
	byCard := make(map[string][]types.RuleBinding)
	for _, binding := range result.Accepted {
		byCard[binding.CardID] = append(byCard[binding.CardID], binding)
	}
	for cardID, cardBindings := range byCard {
		if err := h.mergeBindings(r.Context(), cardID, cardBindings); err != nil {
			log.Printf("server: persist ingested bindings for %s: %v", cardID, err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":    len(result.Accepted),
		"quarantined": result.Quarantined,
	})
}

// mergeBindings overlays incoming bindings onto a card's cached set per
// rule, keeping similarity bindings for unrelated rules that the batch
// classifier computed.
func (h *Handlers) mergeBindings(ctx context.Context, cardID string, incoming []types.RuleBinding) error {
	existing, err := h.backend.GetBindings(ctx, cardID)
	if err != nil {
		return err
	}

	byRule := make(map[string]int, len(existing))
	for i, b := range existing {
		byRule[b.RuleID] = i
	}
	merged := existing
	for _, b := range incoming {
		if i, ok := byRule[b.RuleID]; ok {
			merged[i] = b
		} else {
			merged = append(merged, b)
		}
	}
	return h.backend.ReplaceBindings(ctx, cardID, merged)
}

func (h *Handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	cards, err := h.backend.CountCards(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	bindings, err := h.backend.CountBindings(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ruleCount, categoryCount, interactionCount := h.catalog.Snapshot().Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"cards":           cards,
		"cached_bindings": bindings,
		"rules":           ruleCount,
		"categories":      categoryCount,
		"interactions":    interactionCount,
	})
}

func (h *Handlers) publish(event ActivityEvent) {
	if h.hub != nil {
		h.hub.Publish(event)
	}
}

// writeDomainError maps the storage and embedding sentinels onto HTTP
// status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrNoEmbedding):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, storage.ErrUnavailable),
		errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, embedding.ErrCircuitOpen):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		log.Printf("server: internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
