package mcpservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/motebus/Ultra-MCP-Servers/mcp"
)

// SchemeHandler serves every resource URI of one scheme. ReadResource
// receives the parsed URI untouched and returns a *NotFoundError when it does
// not resolve.
type SchemeHandler interface {
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ReadResource(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error)
}

type (
	ListSchemeFunc func(ctx context.Context) ([]mcp.Resource, error)
	ReadSchemeFunc func(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error)
)

// SchemeFuncs adapts a pair of functions to SchemeHandler. A nil List lists
// nothing; a nil Read resolves nothing.
type SchemeFuncs struct {
	List ListSchemeFunc
	Read ReadSchemeFunc
}

func (f SchemeFuncs) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	if f.List == nil {
		return nil, nil
	}
	return f.List(ctx)
}

func (f SchemeFuncs) ReadResource(ctx context.Context, uri *url.URL) ([]mcp.ResourceContents, error) {
	if f.Read == nil {
		return nil, &NotFoundError{Kind: "resource", Name: uri.String()}
	}
	return f.Read(ctx, uri)
}

// ResourcesContainer resolves resources by URI scheme. Listing asks every
// scheme in registration order; a scheme that fails contributes nothing and
// the failure is logged. Reading dispatches to exactly one scheme and
// returns its error.
//
// The embedded ChangeNotifier backs the resources listChanged capability.
// Stores that hold listed resources notify it on every write.
type ResourcesContainer struct {
	mu      sync.RWMutex
	schemes map[string]SchemeHandler
	order   []string

	notifier ChangeNotifier
	log      *slog.Logger
}

// NewResourcesContainer constructs an empty container. A nil logger
// discards degraded listing reports.
func NewResourcesContainer(log *slog.Logger) *ResourcesContainer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &ResourcesContainer{schemes: make(map[string]SchemeHandler), log: log}
}

// Handle registers h for scheme, replacing any earlier handler.
func (rc *ResourcesContainer) Handle(scheme string, h SchemeHandler) {
	scheme = strings.ToLower(scheme)
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, exists := rc.schemes[scheme]; !exists {
		rc.order = append(rc.order, scheme)
	}
	rc.schemes[scheme] = h
}

// Schemes returns the registered schemes in registration order.
func (rc *ResourcesContainer) Schemes() []string {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	return append([]string(nil), rc.order...)
}

// Notifier exposes the container's change notifier so that backing stores
// can signal list changes.
func (rc *ResourcesContainer) Notifier() *ChangeNotifier { return &rc.notifier }

// Subscriber implements ChangeSubscriber.
func (rc *ResourcesContainer) Subscriber() <-chan struct{} { return rc.notifier.Subscriber() }

// Unsubscribe releases a channel returned by Subscriber.
func (rc *ResourcesContainer) Unsubscribe(sub <-chan struct{}) { rc.notifier.Unsubscribe(sub) }

// ListResources implements ResourcesCapability. It never fails.
func (rc *ResourcesContainer) ListResources(ctx context.Context, cursor *string) (Page[mcp.Resource], error) {
	rc.mu.RLock()
	order := append([]string(nil), rc.order...)
	handlers := make([]SchemeHandler, len(order))
	for i, s := range order {
		handlers[i] = rc.schemes[s]
	}
	rc.mu.RUnlock()

	var all []mcp.Resource
	for i, h := range handlers {
		start := time.Now()
		items, err := h.ListResources(ctx)
		if err != nil {
			rc.log.WarnContext(ctx, "resources.list.degraded",
				slog.String("scheme", order[i]),
				slog.Int64("dur_ms", time.Since(start).Milliseconds()),
				slog.String("err", err.Error()))
			continue
		}
		all = append(all, items...)
	}
	return pageSlice(all, defaultPageSize, cursor), nil
}

// ReadResource implements ResourcesCapability. A URI that does not parse or
// whose scheme has no handler yields ErrUnsupportedScheme.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, uri)
	}
	scheme := strings.ToLower(u.Scheme)
	rc.mu.RLock()
	h := rc.schemes[scheme]
	rc.mu.RUnlock()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
	return h.ReadResource(ctx, u)
}
