// Package producer defines the components that propose claims, the typed
// registry the controller keeps them in, and the built-in producers for every
// action of the trigger table.
package producer

import (
	"context"
	"fmt"
	"sort"

	"github.com/dyluth/docket/internal/claim"
	"github.com/dyluth/docket/internal/command"
	"github.com/dyluth/docket/internal/validate"
)

// Producer proposes claims for a command.
// Process must not modify the command or any shared state; it may be called
// more than once per run.
type Producer interface {
	Name() string
	Process(ctx context.Context, cmd *command.Command) ([]claim.Claim, error)
}

// Replacer proposes alternatives after a failed capacity check.
// The controller calls it at most once per run.
type Replacer interface {
	Name() string
	Propose(ctx context.Context, cmd *command.Command, results validate.Results) ([]claim.Claim, error)
}

// Registry maps producer names to producers. It is owned by one controller.
type Registry struct {
	producers map[string]Producer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{producers: make(map[string]Producer)}
}

// Register adds p under p.Name(). Names must be unique.
func (r *Registry) Register(p Producer) error {
	if p == nil {
		return fmt.Errorf("producer cannot be nil")
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("producer name cannot be empty")
	}
	if _, exists := r.producers[name]; exists {
		return fmt.Errorf("producer %q already registered", name)
	}
	r.producers[name] = p
	return nil
}

// Get returns the producer registered under name.
func (r *Registry) Get(name string) (Producer, bool) {
	p, ok := r.producers[name]
	return p, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.producers))
	for name := range r.producers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered producers.
func (r *Registry) Len() int {
	return len(r.producers)
}
