package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// MetadataFallbackKey is the legacy single-fallback spelling accepted in
// request metadata.
const MetadataFallbackKey = "fallbackProviderID"

// Router dispatches requests to registered providers, trying the
// request's provider first and the fallback chain after a failure.
type Router struct {
	mu        sync.RWMutex
	providers map[string]Provider
	defaultID string
	logger    *slog.Logger
}

// NewRouter creates a router with the given default provider ID.
func NewRouter(defaultID string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default().With("component", "providers")
	}
	return &Router{
		providers: map[string]Provider{},
		defaultID: defaultID,
		logger:    logger,
	}
}

// Register adds a provider. Registering a duplicate ID is an error.
func (r *Router) Register(p Provider) error {
	id := strings.TrimSpace(p.ID())
	if id == "" {
		return fmt.Errorf("provider ID is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("provider %q already registered", id)
	}
	r.providers[id] = p
	return nil
}

// Provider returns a registered provider by ID.
func (r *Router) Provider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}

// ProviderIDs returns the registered provider IDs, unsorted.
func (r *Router) ProviderIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	return ids
}

// candidates builds the dispatch order: the request's provider (or the
// default), then the policy fallbacks, then the legacy metadata
// fallback, with the default provider as the last resort. Duplicates
// are skipped.
func (r *Router) candidates(req Request) []string {
	var order []string
	seen := map[string]bool{}
	add := func(id string) {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)
	}
	if req.ProviderID != "" {
		add(req.ProviderID)
	} else {
		add(r.defaultID)
	}
	for _, id := range req.Policy.FallbackProviderIDs {
		add(id)
	}
	add(req.Metadata[MetadataFallbackKey])
	add(r.defaultID)
	return order
}

// Dispatch runs the request against the candidate chain and returns the
// first success. When every candidate fails the last error is returned.
func (r *Router) Dispatch(ctx context.Context, req Request) (Response, error) {
	order := r.candidates(req)
	if len(order) == 0 {
		return Response{}, fmt.Errorf("no provider configured")
	}

	var lastErr error
	for _, id := range order {
		p, ok := r.Provider(id)
		if !ok {
			lastErr = fmt.Errorf("provider %q not registered", id)
			continue
		}
		resp, err := p.Generate(ctx, req)
		if err != nil {
			r.logger.Warn("provider failed", "provider", id, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				return Response{}, lastErr
			}
			continue
		}
		resp.ProviderID = id
		return resp, nil
	}
	return Response{}, lastErr
}

// DispatchStream is Dispatch with token streaming. Providers without
// native streaming get their full response synthesized as a single
// chunk. Exactly one final chunk is emitted on success.
func (r *Router) DispatchStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (Response, error) {
	order := r.candidates(req)
	if len(order) == 0 {
		return Response{}, fmt.Errorf("no provider configured")
	}

	var lastErr error
	for _, id := range order {
		p, ok := r.Provider(id)
		if !ok {
			lastErr = fmt.Errorf("provider %q not registered", id)
			continue
		}

		var resp Response
		var err error
		if sp, streaming := p.(StreamingProvider); streaming {
			resp, err = sp.GenerateStream(ctx, req, onChunk)
		} else {
			resp, err = p.Generate(ctx, req)
			if err == nil && resp.Text != "" {
				onChunk(StreamChunk{Text: resp.Text})
			}
		}
		if err != nil {
			r.logger.Warn("provider failed", "provider", id, "error", err)
			lastErr = err
			if ctx.Err() != nil {
				return Response{}, lastErr
			}
			continue
		}
		resp.ProviderID = id
		onChunk(StreamChunk{IsFinal: true})
		return resp, nil
	}
	return Response{}, lastErr
}
