// Package routing turns a classified request into a routing decision: a
// primary model plus an ordered fallback chain.
package routing

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/upb/llm-bridge/internal/observability"
	"github.com/upb/llm-bridge/models"
	"github.com/upb/llm-bridge/services"
	"github.com/upb/llm-bridge/services/classifier"
)

// RoutingService produces routing decisions from the active table
type RoutingService struct {
	store   *Store
	logger  *zap.Logger
	metrics observability.Metrics
}

// NewRoutingService creates a new routing service
func NewRoutingService(store *Store, logger *zap.Logger, metrics observability.Metrics) *RoutingService {
	if metrics == nil {
		metrics = observability.NopMetrics{}
	}
	return &RoutingService{
		store:   store,
		logger:  logger,
		metrics: metrics,
	}
}

// Table returns the routing table currently in effect
func (s *RoutingService) Table() *Table {
	return s.store.Current()
}

// Route classifies msgs and picks the models to try. A router alias (or an
// unknown model) selects the scenario's entry; a known concrete model is
// honored as primary with the chain registered for it.
func (s *RoutingService) Route(requested string, msgs []models.ChatMessage) (models.RoutingDecision, error) {
	table := s.store.Current()
	result := classifier.Classify(msgs, classifier.Options{LongContextThreshold: table.LongContextThreshold})
	reason := result.Reason

	if !models.IsRouterAlias(requested) {
		if spec, ok := table.Lookup(requested); ok {
			decision, err := s.explicit(table, spec, result)
			if err != nil {
				return models.RoutingDecision{}, err
			}
			s.metrics.RecordRouting(string(decision.Scenario), true)
			s.logDecision(decision, true)
			return decision, nil
		}
		s.logger.Warn("unknown model requested, using smart routing", zap.String("model", requested))
		reason = fmt.Sprintf("Unknown model %q, smart routing: %s", requested, reason)
	}

	entry, ok := table.Entries[result.Scenario]
	if !ok {
		return models.RoutingDecision{}, services.NewConfigurationError(
			fmt.Sprintf("no routing entry for scenario %q", result.Scenario), services.ErrMissingScenario)
	}
	primary, fallbacks, err := table.Resolve(entry)
	if err != nil {
		return models.RoutingDecision{}, err
	}

	decision := models.RoutingDecision{
		Scenario:            result.Scenario,
		Primary:             primary,
		Fallbacks:           fallbacks,
		MaxFallbackAttempts: table.MaxFallbackAttempts,
		Reason:              reason,
	}
	s.metrics.RecordRouting(string(decision.Scenario), false)
	s.logDecision(decision, false)
	return decision, nil
}

// explicit builds the decision for a concrete model. The chain is the one of
// the classified scenario when the model is its primary, otherwise the first
// scenario owning the model as primary, otherwise empty.
func (s *RoutingService) explicit(table *Table, spec models.ModelSpec, result classifier.Result) (models.RoutingDecision, error) {
	decision := models.RoutingDecision{
		Scenario:            result.Scenario,
		Primary:             spec,
		Fallbacks:           []models.ModelSpec{},
		MaxFallbackAttempts: table.MaxFallbackAttempts,
		Reason:              "Explicit model request. Scenario detected: " + result.Reason,
	}

	entry, found := table.Entries[result.Scenario]
	if !found || entry.Primary != spec.Name {
		found = false
		for _, sc := range models.Scenarios {
			if e, ok := table.Entries[sc]; ok && e.Primary == spec.Name {
				entry, found = e, true
				break
			}
		}
	}
	if !found {
		return decision, nil
	}

	_, fallbacks, err := table.Resolve(entry)
	if err != nil {
		return models.RoutingDecision{}, err
	}
	decision.Fallbacks = fallbacks
	return decision, nil
}

func (s *RoutingService) logDecision(d models.RoutingDecision, explicit bool) {
	s.logger.Info("routing decision",
		zap.String("scenario", string(d.Scenario)),
		zap.String("model", d.Primary.Name),
		zap.Strings("fallback", d.FallbackNames()),
		zap.Bool("explicit", explicit),
		zap.String("reason", d.Reason),
	)
}

// Models returns the models of the current table in name order
func (s *RoutingService) Models() []models.ModelSpec {
	return s.store.Current().ModelSpecs()
}
