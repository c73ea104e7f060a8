// Package routing implements the model router: a pure function from model
// identifier to (Provider, Strategy), memoized for the process lifetime.
package routing

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
	"gateway/internal/strategy"
)

type prefixRule struct {
	prefix   string
	provider domain.Provider
	family   strategy.Family
}

// table is evaluated longest-prefix-first (see Route). Region tokens
// are stripped before matching.
var table = []prefixRule{
	{prefix: "gpt-", provider: domain.ProviderOpenAI, family: strategy.FamilyOpenAIChat},
	{prefix: "text-", provider: domain.ProviderOpenAI, family: strategy.FamilyOpenAIChat},
	{prefix: "dall-e-", provider: domain.ProviderOpenAI, family: strategy.FamilyOpenAIChat},
	{prefix: "o1", provider: domain.ProviderOpenAI, family: strategy.FamilyOpenAIChat},
	{prefix: "anthropic.", provider: domain.ProviderBedrock, family: strategy.FamilyAnthropic},
	{prefix: "amazon.titan-", provider: domain.ProviderBedrock, family: strategy.FamilyTitan},
	// ai21.*, cohere.*, meta.*, mistral.* share the same Bedrock-family
	// routing shape but have no Strategy implementation yet; adding one is
	// a one-row table addition plus one new strategy.Strategy.
}

var regionTokens = []string{"us.", "eu.", "apac.", "ap-southeast.", "ap-northeast.", "global."}

// Route resolves a model id to (Provider, Family) by longest-prefix match
// against table, after stripping any leading region token. It is a pure
// function of modelID: no ambient state affects the result, only a
// memoization cache sits in front of it.
func Route(modelID string) (domain.Provider, strategy.Family, error) {
	normalized := stripRegionToken(modelID)
	var best *prefixRule
	for i := range table {
		rule := &table[i]
		if strings.HasPrefix(normalized, rule.prefix) {
			if best == nil || len(rule.prefix) > len(best.prefix) {
				best = rule
			}
		}
	}
	if best == nil {
		return "", "", gatewayerr.UnsupportedModel(modelID)
	}
	return best.provider, best.family, nil
}

func stripRegionToken(modelID string) string {
	for _, tok := range regionTokens {
		if strings.HasPrefix(modelID, tok) {
			return strings.TrimPrefix(modelID, tok)
		}
	}
	return modelID
}

type routeResult struct {
	provider domain.Provider
	family   strategy.Family
}

// Router wraps Route with a memoization cache keyed by exact model_id.
// Concurrent misses are harmless since the computed value is a pure
// function of the key, so last-write-wins is acceptable.
type Router struct {
	cache *lru.Cache[string, routeResultOrErr]
}

type routeResultOrErr struct {
	result routeResult
	err    error
}

// NewRouter constructs a Router with a bounded memoization cache. size is
// the maximum distinct model ids cached; 0 selects a sane default.
func NewRouter(size int) *Router {
	if size <= 0 {
		size = 1024
	}
	c, _ := lru.New[string, routeResultOrErr](size)
	return &Router{cache: c}
}

// Route resolves modelID to a (Provider, Strategy), consulting and
// populating the memoization cache.
func (r *Router) Route(modelID string) (domain.Provider, strategy.Strategy, error) {
	if cached, ok := r.cache.Get(modelID); ok {
		if cached.err != nil {
			return "", nil, cached.err
		}
		strat, ok := strategy.For(cached.result.family)
		if !ok {
			return "", nil, gatewayerr.UnsupportedModel(modelID)
		}
		return cached.result.provider, strat, nil
	}
	provider, family, err := Route(modelID)
	if err != nil {
		r.cache.Add(modelID, routeResultOrErr{err: err})
		return "", nil, err
	}
	strat, ok := strategy.For(family)
	if !ok {
		err := gatewayerr.UnsupportedModel(modelID)
		r.cache.Add(modelID, routeResultOrErr{err: err})
		return "", nil, err
	}
	r.cache.Add(modelID, routeResultOrErr{result: routeResult{provider: provider, family: family}})
	return provider, strat, nil
}
