// Package resolver turns a client-supplied model token into a concrete
// (provider, upstream model) pair by following the configured alias tables.
//
// A token may be qualified with a provider prefix ("openai:fast"), may name
// an alias whose target is itself an alias (optionally on a different
// provider), or may bypass resolution entirely with a leading "!". Chains
// are bounded by a configured depth; the bound is the only loop terminator,
// so a cyclic alias configuration spends the whole budget before erroring.
package resolver

import (
	"strings"

	"github.com/llmwire/llmwire/internal/domain"
	"github.com/llmwire/llmwire/internal/registry"
)

// DefaultMaxChainLength bounds how many alias hops a single resolution may
// take before it is reported as unresolved.
const DefaultMaxChainLength = 10

// Resolver resolves model tokens against a registry's alias tables.
type Resolver struct {
	registry *registry.Registry
	aliases  map[string]map[string]string
	maxChain int
}

// Option configures the resolver.
type Option func(*Resolver)

// WithMaxChainLength overrides the alias chain depth bound.
func WithMaxChainLength(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxChain = n
		}
	}
}

// New creates a resolver over the given registry.
func New(reg *registry.Registry, opts ...Option) *Resolver {
	r := &Resolver{
		registry: reg,
		aliases:  reg.Aliases(),
		maxChain: DefaultMaxChainLength,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve maps a model token to a provider and upstream model name.
func (r *Resolver) Resolve(model string) (domain.ResolvedModel, error) {
	if model == "" {
		return domain.ResolvedModel{}, domain.ErrUnresolvedModel(model, "model is required")
	}

	// "!" asks for the exact name with no alias lookups.
	if literal, ok := strings.CutPrefix(model, "!"); ok {
		return r.resolveLiteral(model, literal)
	}

	provider, name := r.splitProvider(model)
	hops := 0

	for {
		target, exact, matched := lookupAlias(r.aliases[provider], name)
		if !matched {
			return domain.ResolvedModel{Provider: provider, Model: name, ChainLength: hops}, nil
		}
		if hops >= r.maxChain {
			return domain.ResolvedModel{}, domain.ErrUnresolvedModel(model,
				"alias chain exceeded maximum length; check the alias tables for cycles").
				WithCode(domain.ErrorCodeAliasChainTooLong)
		}
		hops++

		// A target qualified with a known provider switches the chain to
		// that provider's alias table; anything else is a model name.
		prevProvider, prevName := provider, name
		if prefix, rest, found := strings.Cut(target, ":"); found && r.registry.Has(prefix) {
			provider = strings.ToLower(prefix)
			name = rest
		} else {
			name = target
		}

		// A substring fixed point is resolved: targets that contain their
		// own alias ("sonnet" -> "claude-sonnet-...") would re-match
		// forever. An exact self-alias is a cycle and keeps looping so the
		// depth bound reports it.
		if !exact && provider == prevProvider && name == prevName {
			return domain.ResolvedModel{Provider: provider, Model: name, ChainLength: hops}, nil
		}
	}
}

func (r *Resolver) resolveLiteral(original, literal string) (domain.ResolvedModel, error) {
	if literal == "" {
		return domain.ResolvedModel{}, domain.ErrUnresolvedModel(original, "empty model after literal prefix")
	}
	provider, name := r.splitProvider(literal)
	return domain.ResolvedModel{Provider: provider, Model: name}, nil
}

// splitProvider peels off a known-provider prefix, falling back to the
// default provider. An unknown prefix stays part of the model name: some
// upstream model identifiers legitimately contain colons.
func (r *Resolver) splitProvider(model string) (provider, name string) {
	if prefix, rest, found := strings.Cut(model, ":"); found && r.registry.Has(prefix) {
		return strings.ToLower(prefix), rest
	}
	return r.registry.Default(), model
}

// lookupAlias finds the alias target for name in one provider's table:
// case-insensitive exact match first, then the longest alias that appears
// as a substring of the name (tolerating -/_ spelling differences). exact
// reports which of the two matched.
func lookupAlias(table map[string]string, name string) (target string, exact, matched bool) {
	if len(table) == 0 {
		return "", false, false
	}
	lower := strings.ToLower(name)
	if target, ok := table[lower]; ok {
		return target, true, true
	}

	variations := []string{
		lower,
		strings.ReplaceAll(lower, "_", "-"),
		strings.ReplaceAll(lower, "-", "_"),
	}

	best := ""
	bestLen := 0
	for alias := range table {
		for _, v := range variations {
			if strings.Contains(v, alias) {
				if len(alias) > bestLen || (len(alias) == bestLen && alias < best) {
					best = alias
					bestLen = len(alias)
				}
				break
			}
		}
	}
	if bestLen == 0 {
		return "", false, false
	}
	return table[best], false, true
}
