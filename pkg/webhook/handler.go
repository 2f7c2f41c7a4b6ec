package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// DefaultDedupTTL is how long processed event IDs are remembered. Providers
// stop redelivering within days; a week of memory covers stragglers.
const DefaultDedupTTL = 7 * 24 * time.Hour

// Sink consumes canonical events. The subscription and order engines each
// implement it; events that don't concern a sink must return nil so one
// delivery can fan out to all of them.
type Sink interface {
	HandleBillingEvent(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) HandleBillingEvent(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Handler serves one HTTP POST endpoint per registered provider adapter and
// feeds verified, deduplicated events to the engine sinks. The transition
// itself is cheap and runs inline; anything heavier (notifications, provider
// callbacks) rides the engines' event bus so the provider gets its
// acknowledgement quickly.
type Handler struct {
	adapters map[string]Adapter
	sinks    []Sink
	dedup    DedupStore
	dedupTTL time.Duration
	log      *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithDedupTTL overrides how long processed event IDs are remembered.
func WithDedupTTL(ttl time.Duration) HandlerOption {
	return func(h *Handler) {
		if ttl > 0 {
			h.dedupTTL = ttl
		}
	}
}

// NewHandler wires adapters, dedup storage and engine sinks together.
// Panics on nil dedup or empty adapters to fail fast at startup.
func NewHandler(dedup DedupStore, log *slog.Logger, adapters []Adapter, sinks []Sink, opts ...HandlerOption) *Handler {
	if dedup == nil {
		panic("webhook: DedupStore is required")
	}
	if len(adapters) == 0 {
		panic("webhook: at least one adapter is required")
	}
	if log == nil {
		log = slog.Default()
	}

	h := &Handler{
		adapters: make(map[string]Adapter, len(adapters)),
		sinks:    sinks,
		dedup:    dedup,
		dedupTTL: DefaultDedupTTL,
		log:      log,
	}
	for _, a := range adapters {
		h.adapters[a.Slug()] = a
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns a router serving POST /{provider}. Mount it wherever the
// application exposes webhooks, e.g. r.Mount("/webhooks", handler.Routes()).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{provider}", h.serve)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "provider")
	adapter, ok := h.adapters[slug]
	if !ok {
		http.Error(w, "unknown provider", http.StatusNotFound)
		return
	}

	event, err := adapter.VerifyAndParse(r)
	switch {
	case errors.Is(err, ErrInvalidSignature):
		// Security rejection: log and drop before touching any state
		h.log.WarnContext(r.Context(), "webhook signature verification failed",
			slog.String("provider", slug))
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	case errors.Is(err, ErrEventIgnored):
		// Unmapped event types are acknowledged so the provider stops
		// redelivering them
		w.WriteHeader(http.StatusOK)
		return
	case err != nil:
		h.log.WarnContext(r.Context(), "webhook payload rejected",
			slog.String("provider", slug), slog.Any("error", err))
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	seen, err := h.dedup.Seen(r.Context(), slug, event.EventID)
	if err != nil {
		h.log.ErrorContext(r.Context(), "webhook dedup check failed",
			slog.String("provider", slug), slog.String("event_id", event.EventID), slog.Any("error", err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if seen {
		// Duplicate delivery: already applied, acknowledge idempotently
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, sink := range h.sinks {
		if err := sink.HandleBillingEvent(r.Context(), *event); err != nil {
			// Not marked processed yet, so the provider's redelivery will
			// reach the engines again once the fault clears
			h.log.ErrorContext(r.Context(), "webhook event processing failed",
				slog.String("provider", slug),
				slog.String("event_id", event.EventID),
				slog.String("type", string(event.Type)),
				slog.Any("error", err))
			http.Error(w, "processing failed", http.StatusInternalServerError)
			return
		}
	}

	if err := h.dedup.MarkProcessed(r.Context(), slug, event.EventID, h.dedupTTL); err != nil {
		// The event was applied; a failed mark only risks an extra
		// idempotent replay, so still acknowledge
		h.log.WarnContext(r.Context(), "failed to mark webhook event processed",
			slog.String("provider", slug), slog.String("event_id", event.EventID), slog.Any("error", err))
	}

	h.log.InfoContext(r.Context(), "webhook event processed",
		slog.String("provider", slug),
		slog.String("event_id", event.EventID),
		slog.String("type", string(event.Type)))
	w.WriteHeader(http.StatusOK)
}
