package scoring

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/model"
)

// Scorer defines the interface for all risk scorers
type Scorer interface {
	// Name returns the scorer name (e.g., "heuristic", "remote")
	Name() string

	// Score assigns a risk score to every identity in the batch
	Score(ctx context.Context, batch []model.Identity) ([]Result, error)
}

// Result is one identity's risk score with the factors behind it
type Result struct {
	ExternalID string
	RiskScore  int
	Reasons    []string
}

// Factory creates a scorer on demand
type Factory func() (Scorer, error)

// Registry holds all registered scorer factories
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates a new scorer registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a scorer factory to the registry
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get builds a scorer by name
func (r *Registry) Get(name string) (Scorer, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("scorer %q not found", name)
	}
	return factory()
}

// Names returns all registered scorer names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global scorer registry
var DefaultRegistry = NewRegistry()

func init() {
	DefaultRegistry.Register("heuristic", func() (Scorer, error) {
		return NewHeuristic(), nil
	})
	DefaultRegistry.Register("remote", func() (Scorer, error) {
		cfg := config.Get()
		creds, err := config.LoadScoringCredentials(cfg.APIKeysPath)
		if err != nil {
			return nil, err
		}
		if !creds.Complete() {
			return nil, errors.New("remote scorer is not configured")
		}
		return NewRemote(*creds, cfg.ScoringRateLimit, cfg.ScoringRateBurst), nil
	})
}
