// Package secrets resolves the desk's endpoint credentials from a secrets
// provider with local caching.
package secrets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	pkgsecrets "github.com/Checker-Finance/fxo-desk/pkg/secrets"
)

// Resolver resolves a typed config T from a secret and caches it.
//
// Secret naming convention: {env}/{scope}/{kind}
type Resolver[T any] struct {
	logger   *zap.Logger
	env      string
	kind     string
	provider pkgsecrets.Provider
	cache    *pkgsecrets.Cache[T]
	parse    func(map[string]string) (T, error)
}

// NewResolver builds a resolver for one secret kind. parse validates required fields.
func NewResolver[T any](
	logger *zap.Logger,
	env, kind string,
	provider pkgsecrets.Provider,
	cache *pkgsecrets.Cache[T],
	parse func(map[string]string) (T, error),
) *Resolver[T] {
	return &Resolver[T]{
		logger:   logger,
		env:      env,
		kind:     kind,
		provider: provider,
		cache:    cache,
		parse:    parse,
	}
}

// SecretName builds the provider key for scope.
func (r *Resolver[T]) SecretName(scope string) string {
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", r.env, scope, r.kind))
}

// Resolve returns the cached config for scope or fetches it.
func (r *Resolver[T]) Resolve(ctx context.Context, scope string) (T, error) {
	name := r.SecretName(scope)

	if cfg, ok := r.cache.Get(name); ok {
		return cfg, nil
	}

	raw, err := r.provider.GetSecret(ctx, name)
	if err != nil {
		r.logger.Warn("secrets.fetch_failed", zap.String("key", name), zap.Error(err))
		var zero T
		return zero, fmt.Errorf("resolve %s config for %q: %w", r.kind, scope, err)
	}

	cfg, err := r.parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("parse secret %q: %w", name, err)
	}

	r.cache.Put(name, cfg)
	r.logger.Info("secrets.config_resolved", zap.String("kind", r.kind), zap.String("scope", scope))
	return cfg, nil
}

// Invalidate drops the cached value for scope.
func (r *Resolver[T]) Invalidate(scope string) {
	r.cache.Bust(r.SecretName(scope))
}
