package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kursadbilgin/order-relay/internal/domain"
)

// Step is one stop in a failover chain: a provider and the channel the
// message travels on when this step runs.
type Step struct {
	Provider Provider
	Channel  domain.Channel
}

// ProbeResult reports one gateway's readiness check.
type ProbeResult struct {
	Name    string
	Channel domain.Channel
	Healthy bool
	Error   string
}

// Registry holds the configured gateways and resolves tenant channel
// routes into ordered failover chains.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]Provider
	byChannel map[domain.Channel]Provider
}

func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]Provider),
		byChannel: make(map[domain.Channel]Provider),
	}
}

func (r *Registry) Register(p Provider) error {
	if p == nil {
		return fmt.Errorf("nil provider")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("provider name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("%w: provider %q already registered", domain.ErrConflict, name)
	}
	r.byName[name] = p
	if _, exists := r.byChannel[p.Channel()]; !exists {
		r.byChannel[p.Channel()] = p
	}
	return nil
}

func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q is not registered", domain.ErrNotFound, name)
	}
	return p, nil
}

// ForChannel returns the default provider serving a channel: the first one
// registered for it.
func (r *Registry) ForChannel(channel domain.Channel) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byChannel[channel]
	if !ok {
		return nil, fmt.Errorf("%w: no provider serves channel %s", domain.ErrConfiguration, channel)
	}
	return p, nil
}

// Chain resolves a channel route into the ordered list of delivery steps:
// the primary provider first, then the fallback provider on the same
// channel, then the default provider of the fallback channel. Failover
// steps are omitted when the route disables failover.
func (r *Registry) Chain(route domain.ChannelRoute) ([]Step, error) {
	if !route.Enabled {
		return nil, fmt.Errorf("%w: channel %s is disabled", domain.ErrConfiguration, route.Channel)
	}
	if err := route.Validate(); err != nil {
		return nil, err
	}

	primary, err := r.Get(route.PrimaryProvider)
	if err != nil {
		return nil, err
	}

	steps := []Step{{Provider: primary, Channel: route.Channel}}
	if !route.FailoverEnabled {
		return steps, nil
	}

	if route.FallbackProvider != nil && *route.FallbackProvider != "" {
		fallback, err := r.Get(*route.FallbackProvider)
		if err != nil {
			return nil, err
		}
		steps = append(steps, Step{Provider: fallback, Channel: route.Channel})
	}

	if route.FallbackChannel != nil {
		r.mu.RLock()
		alt, ok := r.byChannel[*route.FallbackChannel]
		r.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%w: no provider serves fallback channel %s", domain.ErrConfiguration, *route.FallbackChannel)
		}
		steps = append(steps, Step{Provider: alt, Channel: *route.FallbackChannel})
	}

	return steps, nil
}

// ProbeAll runs the readiness probe of every registered gateway.
func (r *Registry) ProbeAll(ctx context.Context) []ProbeResult {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.byName))
	for _, p := range r.byName {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	sort.Slice(providers, func(i, j int) bool { return providers[i].Name() < providers[j].Name() })

	results := make([]ProbeResult, 0, len(providers))
	for _, p := range providers {
		result := ProbeResult{Name: p.Name(), Channel: p.Channel(), Healthy: true}
		if err := p.Probe(ctx); err != nil {
			result.Healthy = false
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}
