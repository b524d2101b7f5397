package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/dialog"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/domain"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/repository"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/schedule"
	"github.com/learningcmsebl-ux/aichatbot-refine-sub000/internal/selector"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo        domain.RuleRepository
	store       *schedule.Store
	selector    *selector.Selector
	coordinator *dialog.Coordinator
	sessions    domain.SessionStore
	bus         domain.EventBus
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.RuleRepository, store *schedule.Store, sel *selector.Selector, coord *dialog.Coordinator, sessions domain.SessionStore, bus domain.EventBus, version string) *Handler {
	return &Handler{
		repo:        repo,
		store:       store,
		selector:    sel,
		coordinator: coord,
		sessions:    sessions,
		bus:         bus,
		version:     version,
	}
}

// ResolveRequest is the request body for POST /resolve. Text is the raw
// user message; Query is the classifier output and may be absent when a
// disambiguation session is pending.
type ResolveRequest struct {
	Text  string                `json:"text"`
	Query *domain.ResolvedQuery `json:"query,omitempty"`
}

// ResolveResponse is the response for POST /resolve.
type ResolveResponse struct {
	*dialog.TurnResult

	ConversationKey string `json:"conversationKey"`
	Continuity      bool   `json:"continuity"`
	Metadata        struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// Resolve handles POST /resolve: one conversational turn.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Text == "" && req.Query == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "text or query is required",
		})
		return
	}

	key, continuity := dialog.DeriveKey(GetTurnMeta(ctx))

	result, err := h.coordinator.HandleTurn(ctx, key, req.Text, req.Query)
	if err != nil {
		slog.Error("turn failed", "conversation_key", key, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	resp := ResolveResponse{
		TurnResult:      result,
		ConversationKey: key,
		Continuity:      continuity,
	}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// SelectRequest is the request body for POST /select: stateless rule
// selection without the conversation protocol.
type SelectRequest struct {
	ChargeID    string            `json:"chargeId"`
	AsOf        string            `json:"asOf,omitempty"` // RFC 3339, default now
	Attrs       map[string]string `json:"attrs,omitempty"`
	Currency    string            `json:"currency,omitempty"`
	Amount      *decimal.Decimal  `json:"amount,omitempty"`
	UsageIndex  int               `json:"usageIndex,omitempty"`
	Outstanding *decimal.Decimal  `json:"outstandingBalance,omitempty"`
}

// Select handles POST /select requests.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ChargeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "chargeId is required",
		})
		return
	}

	asOf := time.Now()
	if req.AsOf != "" {
		parsed, err := time.Parse(time.RFC3339, req.AsOf)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "asOf must be RFC 3339",
			})
			return
		}
		asOf = parsed
	}

	result := h.selector.Select(r.Context(), &domain.SelectQuery{
		ChargeID: req.ChargeID,
		AsOf:     asOf,
		Attrs:    req.Attrs,
		Currency: req.Currency,
		Inputs: &domain.RuntimeInputs{
			Amount:      req.Amount,
			UsageIndex:  req.UsageIndex,
			Outstanding: req.Outstanding,
		},
	})

	writeJSON(w, http.StatusOK, result)
}

// ListRules handles GET /rules: the currently loaded schedule.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.store.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	rule, err := h.repo.GetRule(r.Context(), ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "rule not found",
			})
			return
		}
		slog.Error("failed to get rule", "rule_id", ruleID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get rule",
		})
		return
	}

	writeJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /rules. The rule is validated and persisted;
// it enters the serving schedule on the next reload.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule domain.PricingRule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rule.ChargeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "chargeId is required",
		})
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.Status == "" {
		rule.Status = domain.StatusActive
	}

	if err := h.store.ValidateRule(&rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveRule(r.Context(), &rule); err != nil {
		slog.Error("failed to save rule", "rule_id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save rule",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     rule.ID,
		"status": "created, reload to activate",
	})
}

// ReloadRules handles POST /rules/reload: re-read the schedule from the
// repository and swap it in atomically.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rules, err := h.repo.ListRules(ctx)
	if err != nil {
		slog.Error("failed to list rules for reload", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load rules",
		})
		return
	}

	if err := h.store.Reload(rules); err != nil {
		slog.Error("failed to reload rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
		return
	}

	slog.Info("rules reloaded", "count", len(rules))

	if h.bus != nil {
		payload, _ := json.Marshal(map[string]int{"count": len(rules)})
		if err := h.bus.Publish(ctx, domain.TopicRulesReloaded, payload); err != nil {
			slog.Warn("failed to publish reload event", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "reloaded",
		"count":  len(rules),
	})
}

// GetNote handles GET /notes/{ref}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	text, err := h.repo.GetNote(r.Context(), ref)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "note not found",
			})
			return
		}
		slog.Error("failed to get note", "ref", ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get note",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"ref":  ref,
		"text": text,
	})
}

// NoteRequest is the request body for POST /notes.
type NoteRequest struct {
	Ref  string `json:"ref"`
	Text string `json:"text"`
}

// CreateNote handles POST /notes: upsert a schedule footnote.
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Ref == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "ref and text are required",
		})
		return
	}

	if err := h.repo.SaveNote(r.Context(), req.Ref, req.Text); err != nil {
		slog.Error("failed to save note", "ref", req.Ref, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save note",
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"ref": req.Ref})
}

// ListResolutions handles GET /resolutions: recent audit records.
func (h *Handler) ListResolutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be between 1 and 1000",
			})
			return
		}
		limit = n
	}

	resolutions, err := h.repo.ListRecentResolutions(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list resolutions", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list resolutions",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resolutions": resolutions,
		"count":       len(resolutions),
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.sessions != nil {
		if err := h.sessions.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready: the service can answer once rules are loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.store.Count() == 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "no rules loaded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
