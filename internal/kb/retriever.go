package kb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
)

// Snippet is one retrieved passage from the context_augmentation path,
// framed into a preamble the same way the Files subsystem frames file
// content.
type Snippet struct {
	SourceURI string  `json:"source_uri"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Retriever runs the two KB paths: direct_rag (delegate
// retrieve-and-generate to the provider) and context_augmentation (retrieve
// top-k snippets and inject them as a preamble). The confidence-scored
// choice between them is made by Classify, not by Retriever.
type Retriever struct {
	agent *bedrockagentruntime.Client
	cache *SnippetCache // optional; nil disables caching
}

// NewRetriever constructs a Retriever backed by an AWS Bedrock Agent
// Runtime client. cache may be nil.
func NewRetriever(agent *bedrockagentruntime.Client, cache *SnippetCache) *Retriever {
	return &Retriever{agent: agent, cache: cache}
}

// RetrieveAndGenerate implements the direct_rag path: the provider performs
// retrieval and generation in one call, returning generated text plus
// citations attached to the canonical response.
func (r *Retriever) RetrieveAndGenerate(ctx context.Context, kbID, modelARN, query string) (domain.Message, []domain.Citation, error) {
	out, err := r.agent.RetrieveAndGenerate(ctx, &bedrockagentruntime.RetrieveAndGenerateInput{
		Input: &types.RetrieveAndGenerateInput{Text: aws.String(query)},
		RetrieveAndGenerateConfiguration: &types.RetrieveAndGenerateConfiguration{
			Type: types.RetrieveAndGenerateTypeKnowledgeBase,
			KnowledgeBaseConfiguration: &types.KnowledgeBaseRetrieveAndGenerateConfiguration{
				KnowledgeBaseId: aws.String(kbID),
				ModelArn:        aws.String(modelARN),
			},
		},
	})
	if err != nil {
		return domain.Message{}, nil, classifyAgentError(err)
	}

	msg := domain.Message{Role: domain.RoleAssistant, Text: aws.ToString(out.Output.Text)}

	var citations []domain.Citation
	for _, c := range out.Citations {
		for _, ref := range c.RetrievedReferences {
			cit := domain.Citation{}
			if ref.Location != nil && ref.Location.S3Location != nil {
				cit.SourceURI = aws.ToString(ref.Location.S3Location.Uri)
			}
			if ref.Content != nil {
				cit.Snippet = aws.ToString(ref.Content.Text)
			}
			citations = append(citations, cit)
		}
	}
	return msg, citations, nil
}

// Retrieve implements the retrieval half of context_augmentation: fetch
// top-k snippets for query, consulting the snippet cache first when one is
// configured.
func (r *Retriever) Retrieve(ctx context.Context, kbID, query string, topK int) ([]Snippet, error) {
	if topK <= 0 {
		topK = 5
	}
	if r.cache != nil {
		if cached, ok := r.cache.Get(ctx, kbID, query); ok {
			return cached, nil
		}
	}

	out, err := r.agent.Retrieve(ctx, &bedrockagentruntime.RetrieveInput{
		KnowledgeBaseId: aws.String(kbID),
		RetrievalQuery:  &types.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &types.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &types.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults: aws.Int32(int32(topK)),
			},
		},
	})
	if err != nil {
		return nil, classifyAgentError(err)
	}

	snippets := make([]Snippet, 0, len(out.RetrievalResults))
	for _, res := range out.RetrievalResults {
		s := Snippet{}
		if res.Content != nil {
			s.Text = aws.ToString(res.Content.Text)
		}
		if res.Location != nil && res.Location.S3Location != nil {
			s.SourceURI = aws.ToString(res.Location.S3Location.Uri)
		}
		if res.Score != nil {
			s.Score = *res.Score
		}
		snippets = append(snippets, s)
	}

	if r.cache != nil {
		r.cache.Put(ctx, kbID, query, snippets)
	}
	return snippets, nil
}

// BuildPreamble frames retrieved snippets using the same structural
// convention as the Files subsystem, so the orchestrator can prepend it to
// the first user message identically for both subsystems.
func BuildPreamble(snippets []Snippet) string {
	if len(snippets) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("=== KNOWLEDGE BASE CONTEXT ===\n")
	for _, s := range snippets {
		fmt.Fprintf(&b, "📚 **Source: %s** (score %.3f)\n\n%s\n\n", s.SourceURI, s.Score, s.Text)
	}
	b.WriteString("========================")
	return b.String()
}

func classifyAgentError(err error) error {
	var throttling *types.ThrottlingException
	var notFound *types.ResourceNotFoundException
	var accessDenied *types.AccessDeniedException
	var validation *types.ValidationException

	switch {
	case errors.As(err, &throttling):
		return gatewayerr.Wrap(gatewayerr.KindRateLimited, "bedrock agent runtime throttled the request", err)
	case errors.As(err, &notFound):
		return gatewayerr.Wrap(gatewayerr.KindFileNotFound, "knowledge base not found", err)
	case errors.As(err, &accessDenied):
		return gatewayerr.Wrap(gatewayerr.KindAuthorization, "bedrock agent runtime denied the request", err)
	case errors.As(err, &validation):
		return gatewayerr.Wrap(gatewayerr.KindValidation, "bedrock agent runtime rejected the request", err)
	default:
		return gatewayerr.Wrap(gatewayerr.KindUpstream, fmt.Sprintf("bedrock agent runtime error: %v", err), err)
	}
}
