package routing

import (
	"errors"
	"testing"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
	"gateway/internal/strategy"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name         string
		modelID      string
		wantProvider domain.Provider
		wantFamily   strategy.Family
		wantErr      bool
	}{
		{"openai gpt", "gpt-4o-mini", domain.ProviderOpenAI, strategy.FamilyOpenAIChat, false},
		{"openai legacy text", "text-davinci-003", domain.ProviderOpenAI, strategy.FamilyOpenAIChat, false},
		{"openai o1", "o1-preview", domain.ProviderOpenAI, strategy.FamilyOpenAIChat, false},
		{"anthropic", "anthropic.claude-3-haiku-20240307-v1:0", domain.ProviderBedrock, strategy.FamilyAnthropic, false},
		{"titan", "amazon.titan-text-express-v1", domain.ProviderBedrock, strategy.FamilyTitan, false},
		{"region-prefixed anthropic", "us.anthropic.claude-3-haiku-20240307-v1:0", domain.ProviderBedrock, strategy.FamilyAnthropic, false},
		{"region-prefixed titan, eu", "eu.amazon.titan-text-express-v1", domain.ProviderBedrock, strategy.FamilyTitan, false},
		{"apac region token", "apac.anthropic.claude-3-haiku-20240307-v1:0", domain.ProviderBedrock, strategy.FamilyAnthropic, false},
		{"unsupported family", "ai21.j2-ultra-v1", "", "", true},
		{"empty model id", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, family, err := Route(tt.modelID)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for model id %q", tt.modelID)
				}
				var gwErr *gatewayerr.Error
				if !errors.As(err, &gwErr) || gwErr.Kind != gatewayerr.KindUnsupportedModel {
					t.Errorf("error kind = %v, want %v", gwErr, gatewayerr.KindUnsupportedModel)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if provider != tt.wantProvider {
				t.Errorf("provider = %v, want %v", provider, tt.wantProvider)
			}
			if family != tt.wantFamily {
				t.Errorf("family = %v, want %v", family, tt.wantFamily)
			}
		})
	}
}

// TestRouteLongestPrefixWins guards the table's resolution order: a
// narrower, more specific prefix must win over a broader one when both
// match the same model id. A broader "amazon." rule is added for the
// duration of the test so that two prefixes match.
func TestRouteLongestPrefixWins(t *testing.T) {
	saved := table
	table = append(append([]prefixRule{}, saved...), prefixRule{prefix: "amazon.", provider: domain.ProviderOpenAI, family: strategy.FamilyOpenAIChat})
	defer func() { table = saved }()

	provider, family, err := Route("amazon.titan-text-express-v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != domain.ProviderBedrock || family != strategy.FamilyTitan {
		t.Errorf("got (%v, %v), want (%v, %v)", provider, family, domain.ProviderBedrock, strategy.FamilyTitan)
	}
}

// TestRouteIsPure checks that Route is a deterministic, pure
// function of its input — repeated calls with the same model id always
// produce the same result, with no dependency on call order or prior calls.
func TestRouteIsPure(t *testing.T) {
	ids := []string{"gpt-4o-mini", "anthropic.claude-3-haiku-20240307-v1:0", "amazon.titan-text-express-v1", "bogus-model"}
	for _, id := range ids {
		p1, f1, err1 := Route(id)
		p2, f2, err2 := Route(id)
		if (err1 == nil) != (err2 == nil) {
			t.Fatalf("Route(%q) error-ness differs across calls: %v vs %v", id, err1, err2)
		}
		if p1 != p2 || f1 != f2 {
			t.Errorf("Route(%q) not stable: (%v,%v) vs (%v,%v)", id, p1, f1, p2, f2)
		}
	}
}

func TestRouterMemoizesHitsAndMisses(t *testing.T) {
	r := NewRouter(8)

	provider, strat, err := r.Route("gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider != domain.ProviderOpenAI || strat == nil {
		t.Fatalf("first Route() = (%v, %v)", provider, strat)
	}

	// Second call must hit the cache and return the same answer.
	provider2, strat2, err2 := r.Route("gpt-4o-mini")
	if err2 != nil {
		t.Fatalf("unexpected error on cached route: %v", err2)
	}
	if provider2 != provider || strat2 == nil {
		t.Errorf("cached Route() = (%v, %v), want (%v, non-nil)", provider2, strat2, provider)
	}

	// An unsupported model's error should also be memoized and stable.
	_, _, err3 := r.Route("cohere.command-r-v1:0")
	if err3 == nil {
		t.Fatal("expected error for unsupported family")
	}
	_, _, err4 := r.Route("cohere.command-r-v1:0")
	if err4 == nil {
		t.Fatal("expected error for unsupported family on second (cached) call")
	}
}

func TestNewRouterDefaultsNonPositiveSize(t *testing.T) {
	r := NewRouter(0)
	if r == nil || r.cache == nil {
		t.Fatal("NewRouter(0) should still construct a usable cache")
	}
	if _, _, err := r.Route("gpt-4o-mini"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
