// Package generator adapts external text generation providers to
// domain.TextGenerator.
package generator

import (
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/commentreply/internal/adapter/metrics"
	"github.com/pscheid92/commentreply/internal/domain"
	"github.com/pscheid92/commentreply/internal/platform/config"
)

// New builds the generator selected by cfg.AIProvider. It returns nil for
// the "none" provider.
func New(cfg *config.Config, clock clockwork.Clock, m *metrics.GeneratorMetrics) (domain.TextGenerator, error) {
	var p Provider
	switch cfg.AIProvider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderOllama:
		p = NewOllama(&http.Client{Timeout: cfg.AITimeout}, cfg.AIBaseURL, cfg.AIModel)
	case config.ProviderAnthropic:
		p = NewAnthropic(cfg.AIAPIKey, cfg.AIModel)
	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.AIProvider)
	}

	return NewResilient(p, DefaultBreakerPolicy, DefaultRetryPolicy, clock, m), nil
}
