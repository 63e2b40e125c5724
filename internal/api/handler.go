package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fragmentworks/fragment-gateway/internal/domain"
	"github.com/fragmentworks/fragment-gateway/internal/metrics"
	"github.com/fragmentworks/fragment-gateway/internal/notifications"
	"github.com/fragmentworks/fragment-gateway/internal/prompt"
	"github.com/fragmentworks/fragment-gateway/internal/provider"
	"github.com/fragmentworks/fragment-gateway/internal/ratelimit"
	"github.com/fragmentworks/fragment-gateway/internal/registry"
	"github.com/fragmentworks/fragment-gateway/internal/repository"
	"github.com/fragmentworks/fragment-gateway/internal/sanitize"
	"github.com/fragmentworks/fragment-gateway/internal/schema"
	"github.com/fragmentworks/fragment-gateway/internal/stream"
	"github.com/fragmentworks/fragment-gateway/internal/telemetry"
)

const maxBodyBytes = 1 << 20

// AdmissionChecker is the rate-limit gate applied before invoking a
// provider on the operator's dime.
type AdmissionChecker interface {
	Check(ctx context.Context, key string, max int, window time.Duration) (ratelimit.Decision, error)
}

// ClientFactory resolves a model descriptor plus per-request config into a
// provider-bound client.
type ClientFactory interface {
	HasServerCredential(ctx context.Context, providerID string) (bool, error)
	Resolve(ctx context.Context, model domain.ModelDescriptor, cfg domain.ModelConfig) (provider.Client, error)
}

type HandlerConfig struct {
	Limiter  AdmissionChecker
	Factory  ClientFactory
	Usage    repository.UsageRepository
	Notifier notifications.Notifier

	RateLimitMaxRequests int
	RateLimitWindow      time.Duration
	MaxRequestDuration   time.Duration
	HiddenProviders      []string
}

type Handler struct {
	limiter  AdmissionChecker
	factory  ClientFactory
	usage    repository.UsageRepository
	notifier notifications.Notifier

	maxRequests int
	window      time.Duration
	maxDuration time.Duration
	hidden      []string

	mux *http.ServeMux
}

func NewHandler(cfg HandlerConfig) *Handler {
	maxDuration := cfg.MaxRequestDuration
	if maxDuration == 0 {
		maxDuration = 60 * time.Second
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notifications.LogNotifier{}
	}

	h := &Handler{
		limiter:     cfg.Limiter,
		factory:     cfg.Factory,
		usage:       cfg.Usage,
		notifier:    notifier,
		maxRequests: cfg.RateLimitMaxRequests,
		window:      cfg.RateLimitWindow,
		maxDuration: maxDuration,
		hidden:      cfg.HiddenProviders,
		mux:         http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/generate", h.handleGenerate)
	h.mux.HandleFunc("GET /api/models", h.handleListModels)
	h.mux.HandleFunc("GET /api/templates", h.handleListTemplates)
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", h.handleHealthReady)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ctx, span := telemetry.StartSpan(ctx, "generate")
	defer span.End()

	var req domain.GenerationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeText(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := prompt.Validate(req.Template); err != nil {
		writeText(w, http.StatusBadRequest, "unknown template")
		return
	}
	if !registry.KnownProvider(req.Model.ProviderID) {
		writeText(w, http.StatusBadRequest, "unsupported provider")
		return
	}

	telemetry.AddGenerationAttributes(span, req.Model.ProviderID, req.Model.ID, req.Template, requestID)

	hasOperatorKey, err := h.factory.HasServerCredential(ctx, req.Model.ProviderID)
	if err != nil {
		slog.Warn("credential lookup failed",
			"provider", req.Model.ProviderID, "error", err, "request_id", requestID)
		hasOperatorKey = false
	}

	// Admission control only gates callers with no usable credential
	// anywhere. A caller-supplied key is an explicit trust boundary and
	// skips the check entirely.
	if req.Config.APIKey == "" && !hasOperatorKey {
		decision, err := h.limiter.Check(ctx, clientKey(r), h.maxRequests, h.window)
		if err != nil {
			slog.Error("rate limiter store error", "error", err, "request_id", requestID)
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Amount))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(decision.Reset.Unix(), 10))

		if !decision.Allowed {
			metrics.RecordRateLimitHit(clientKey(r) == "")
			h.notify(notifications.Event{
				Type:    notifications.EventQuotaExhausted,
				Message: "anonymous generation quota exhausted",
			})
			h.record(req, requestID, "rate_limited", start)
			writeText(w, http.StatusTooManyRequests, "You have reached your request limit for the day.")
			return
		}
	}

	systemPrompt, err := prompt.Assemble(req.Template)
	if err != nil {
		writeText(w, http.StatusBadRequest, "unknown template")
		return
	}

	cleanPrompt := sanitize.Clean(systemPrompt)
	cleanMessages := sanitizeMessages(req.Messages)

	client, err := h.factory.Resolve(ctx, req.Model, req.Config)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnsupportedProvider):
			writeText(w, http.StatusBadRequest, "unsupported provider")
		case errors.Is(err, domain.ErrMissingCredential):
			h.record(req, requestID, "access_denied", start)
			writeText(w, http.StatusForbidden, classAccessDenied.message())
		default:
			slog.Error("client resolution failed", "error", err, "request_id", requestID)
			writeText(w, http.StatusInternalServerError, classUnexpected.message())
		}
		return
	}

	genCtx, cancel := context.WithTimeout(ctx, h.maxDuration)
	defer cancel()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	deltas, errs := client.Stream(genCtx, provider.Request{
		Model:    req.Model.ID,
		System:   cleanPrompt,
		Messages: cleanMessages,
		Schema:   schema.FragmentSchema(),
		Params:   req.Config.Params(),
	})

	flusher, canFlush := w.(http.Flusher)
	asm := stream.NewAssembler()
	enc := json.NewEncoder(w)
	streaming := false

	for delta := range deltas {
		frag, ok := asm.Push(delta)
		if !ok {
			continue
		}

		if !streaming {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			streaming = true
		}

		if err := enc.Encode(frag); err != nil {
			// caller went away; cancel the provider stream
			cancel()
			break
		}
		if canFlush {
			flusher.Flush()
		}
	}

	for range deltas {
	}
	streamErr := <-errs

	if streamErr == nil && genCtx.Err() != nil {
		slog.Warn("generation aborted", "request_id", requestID, "error", genCtx.Err())
		h.record(req, requestID, "timeout", start)
		if !streaming {
			writeText(w, http.StatusInternalServerError, classUnexpected.message())
		}
		return
	}

	if streamErr != nil {
		class := classifyProviderError(streamErr)
		metrics.RecordProviderError(req.Model.ProviderID, class.String())
		telemetry.AddErrorAttribute(span, class.String())
		slog.Error("provider stream failed",
			"provider", req.Model.ProviderID,
			"class", class.String(),
			"error", streamErr,
			"request_id", requestID,
		)

		if class == classOverloaded {
			h.notify(notifications.Event{
				Type:     notifications.EventProviderOverloaded,
				Provider: req.Model.ProviderID,
				Message:  "provider reported overload",
			})
		}

		h.record(req, requestID, class.String(), start)
		if !streaming {
			writeText(w, class.status(), class.message())
		}
		return
	}

	h.record(req, requestID, "success", start)
	slog.Info("generation completed",
		"provider", req.Model.ProviderID,
		"model", req.Model.ID,
		"template", req.Template,
		"latency_ms", time.Since(start).Milliseconds(),
		"request_id", requestID,
	)
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"models": registry.Models(h.hidden)})
}

func (h *Handler) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"templates": registry.Templates()})
}

// sanitizeMessages cleans every textual part and leaves other parts alone.
func sanitizeMessages(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, len(messages))
	for i, m := range messages {
		parts := make(domain.MessageContent, len(m.Content))
		copy(parts, m.Content)
		for j, p := range parts {
			if p.Type == domain.PartTypeText {
				metrics.SanitizedBytes.Add(float64(len(p.Text)))
				parts[j].Text = sanitize.Clean(p.Text)
			}
		}
		out[i] = domain.Message{Role: m.Role, Content: parts}
	}
	return out
}

// clientKey is the caller identity for admission control. An absent header
// yields the empty key, which the limiter maps to its shared bucket.
func clientKey(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return ""
	}
	return strings.TrimSpace(strings.Split(xff, ",")[0])
}

func (h *Handler) record(req domain.GenerationRequest, requestID, status string, start time.Time) {
	metrics.RecordGeneration(req.Model.ProviderID, req.Model.ID, req.Template, status, time.Since(start).Seconds())

	if h.usage == nil {
		return
	}
	err := h.usage.Record(context.Background(), repository.UsageRecord{
		RequestID: requestID,
		UserID:    req.UserID,
		TeamID:    req.TeamID,
		Provider:  req.Model.ProviderID,
		Model:     req.Model.ID,
		Template:  req.Template,
		Status:    status,
		LatencyMs: time.Since(start).Milliseconds(),
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("usage record failed", "error", err, "request_id", requestID)
	}
}

func (h *Handler) notify(event notifications.Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.notifier.Send(ctx, event); err != nil {
			slog.Warn("notification failed", "type", event.Type, "error", err)
		}
	}()
}

func writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(message))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
