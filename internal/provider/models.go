package provider

import (
	"context"
	"sort"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

// ModelInfo is one entry of the GET /v1/models discovery list.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// openAIChatModels is the static portion of the discovery list: the OpenAI
// model ids the router's prefix table accepts. OpenAI's own /models endpoint
// also lists embedding/audio/image models the gateway cannot route, so a
// curated list beats proxying the live endpoint here.
var openAIChatModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-3.5-turbo",
	"o1",
	"o1-mini",
	"o1-preview",
}

// ModelCatalog serves model discovery: a static OpenAI list merged with a
// live Bedrock ListFoundationModels call, resolved once and cached for the
// process lifetime.
type ModelCatalog struct {
	control *bedrock.Client // nil skips Bedrock discovery

	mu     sync.Mutex
	cached []ModelInfo
}

// NewModelCatalog constructs a ModelCatalog. control may be nil, in which
// case only the static OpenAI list is served.
func NewModelCatalog(control *bedrock.Client) *ModelCatalog {
	return &ModelCatalog{control: control}
}

// List returns the discovery list, computing it on first call. A Bedrock
// listing failure degrades to the static OpenAI list rather than failing the
// endpoint; the failed listing is not cached, so a later call retries it.
func (c *ModelCatalog) List(ctx context.Context) []ModelInfo {
	static := make([]ModelInfo, 0, len(openAIChatModels))
	for _, id := range openAIChatModels {
		static = append(static, ModelInfo{ID: id, Object: "model", OwnedBy: "openai"})
	}
	if c.control == nil {
		return static
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cached != nil {
		return c.cached
	}

	out, err := c.control.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{
		ByOutputModality: bedrocktypes.ModelModalityText,
	})
	if err != nil {
		return static
	}
	models := static
	for _, m := range out.ModelSummaries {
		if m.ModelId == nil {
			continue
		}
		owner := "bedrock"
		if m.ProviderName != nil {
			owner = *m.ProviderName
		}
		models = append(models, ModelInfo{ID: *m.ModelId, Object: "model", OwnedBy: owner})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	c.cached = models
	return c.cached
}
