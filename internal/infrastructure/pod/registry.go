package pod

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/storefront/backend/internal/domain/integration"
	"github.com/storefront/backend/internal/infrastructure/config"
)

// Registry holds the configured partner adapters
type Registry struct {
	partners map[integration.ProviderCode]integration.PODPartner
	active   integration.ProviderCode
}

// NewRegistry creates a registry with the given active provider
func NewRegistry(active integration.ProviderCode, partners ...integration.PODPartner) *Registry {
	r := &Registry{partners: make(map[integration.ProviderCode]integration.PODPartner), active: active}
	for _, p := range partners {
		r.Register(p)
	}
	return r
}

// NewRegistryFromConfig builds every adapter whose credentials are
// configured. Partners without credentials are skipped with a warning so a
// deployment can run with only the active one set up.
func NewRegistryFromConfig(cfg config.PODConfig, logger *zap.Logger, opts ...Option) *Registry {
	r := NewRegistry(integration.ProviderCode(cfg.Provider))

	if jp, err := NewJetprintAdapter(cfg.JetPrint, opts...); err == nil {
		r.Register(jp)
	} else {
		logger.Warn("jetprint adapter not configured", zap.Error(err))
	}
	if ip, err := NewInterestprintAdapter(cfg.InterestPrint, opts...); err == nil {
		r.Register(ip)
	} else {
		logger.Warn("interestprint adapter not configured", zap.Error(err))
	}
	return r
}

// Register adds or replaces an adapter
func (r *Registry) Register(p integration.PODPartner) {
	r.partners[p.Provider()] = p
}

// Get implements integration.PartnerRegistry
func (r *Registry) Get(code integration.ProviderCode) (integration.PODPartner, error) {
	p, ok := r.partners[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrPartnerNotConfigured, code)
	}
	return p, nil
}

// Active implements integration.PartnerRegistry
func (r *Registry) Active() (integration.PODPartner, error) {
	return r.Get(r.active)
}

// ActiveCode returns the configured provider code
func (r *Registry) ActiveCode() integration.ProviderCode {
	return r.active
}

// List implements integration.PartnerRegistry
func (r *Registry) List() []integration.PODPartner {
	out := make([]integration.PODPartner, 0, len(r.partners))
	for _, p := range r.partners {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider() < out[j].Provider() })
	return out
}

var _ integration.PartnerRegistry = (*Registry)(nil)
