package providers

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
)

var (
	// ErrRunnerAlreadyRegistered is returned when a kind already has a runner
	ErrRunnerAlreadyRegistered = errors.New("runner already registered")
)

// Registry maps backend kinds to runners
type Registry struct {
	mu      sync.RWMutex
	runners map[models.BackendKind]Runner
}

// NewRegistry creates a new runner registry
func NewRegistry() *Registry {
	return &Registry{
		runners: make(map[models.BackendKind]Runner),
	}
}

// Register adds a runner for its backend kind
func (r *Registry) Register(runner Runner) error {
	if runner == nil {
		return errors.New("runner cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	kind := runner.Kind()
	if kind == "" {
		return errors.New("runner kind cannot be empty")
	}
	if _, exists := r.runners[kind]; exists {
		return fmt.Errorf("%w: %s", ErrRunnerAlreadyRegistered, kind)
	}
	r.runners[kind] = runner
	return nil
}

// ForModel returns the runner serving the model's backend kind
func (r *Registry) ForModel(spec models.ModelSpec) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runner, ok := r.runners[spec.Kind()]
	if !ok {
		return nil, services.NewConfigurationError(
			fmt.Sprintf("no runner for backend kind %q of model %q", spec.Kind(), spec.Name), services.ErrNoRunner)
	}
	return runner, nil
}

// Kinds lists registered backend kinds in sorted order
func (r *Registry) Kinds() []models.BackendKind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]models.BackendKind, 0, len(r.runners))
	for k := range r.runners {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
