package platform

import (
	"fmt"
	"sort"

	"publishd/internal/config"
)

// ErrUnknownPlatform reports a platform type with no registered provider.
type ErrUnknownPlatform struct {
	Platform string
}

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("unknown platform %q", e.Platform)
}

// Registry holds the configured providers keyed by platform name.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry builds providers for every platform the config enables.
func NewRegistry(cfg *config.Config) (*Registry, error) {
	registry := &Registry{providers: make(map[string]Provider)}

	if cfg.Platforms.Local.VodDir != "" {
		registry.Register(NewLocal(cfg.Platforms.Local.VodDir))
	}
	if cfg.Platforms.S3.Endpoint != "" {
		provider, err := NewS3(cfg.Platforms.S3)
		if err != nil {
			return nil, fmt.Errorf("configure s3 platform: %w", err)
		}
		registry.Register(provider)
	}

	return registry, nil
}

// Register adds a provider, replacing any previous one with the same name.
func (r *Registry) Register(provider Provider) {
	r.providers[provider.Name()] = provider
}

// Get returns the provider for the platform type.
func (r *Registry) Get(platform string) (Provider, error) {
	provider, ok := r.providers[platform]
	if !ok {
		return nil, &ErrUnknownPlatform{Platform: platform}
	}
	return provider, nil
}

// Names lists the registered platform types in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
