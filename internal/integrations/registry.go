package integrations

import (
	"context"
	"sync"

	"github.com/apexbridge-tech/bugspotter-sub002/internal/models"
)

// Ticket is the external issue created from a bug report.
type Ticket struct {
	ExternalID  string         `json:"external_id"`
	ExternalURL string         `json:"external_url"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Integration creates issues on one external platform.
type Integration interface {
	Name() string
	CreateFromBugReport(ctx context.Context, report models.BugReport, projectID string) (Ticket, error)
}

// Registry holds the configured integrations by platform name.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Integration
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Integration)}
}

// Register adds or replaces an integration.
func (r *Registry) Register(i Integration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[i.Name()] = i
}

// Get looks up an integration by platform name.
func (r *Registry) Get(platform string) (Integration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.byName[platform]
	return i, ok
}
