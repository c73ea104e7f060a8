package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
	"gateway/internal/resilience"
	"gateway/internal/strategy"
)

// BedrockCredentials selects one of the supported credential strategies.
// Exactly the populated fields matching one branch below should be set;
// NewBedrockClient tries them in priority order: static keys, profile
// name, assumed role, web-identity token file, ambient chain.
type BedrockCredentials struct {
	StaticAccessKeyID     string
	StaticSecretAccessKey string
	StaticSessionToken    string

	ProfileName string

	AssumeRoleARN         string
	AssumeRoleExternalID  string
	AssumeRoleSessionName string

	WebIdentityTokenFile string
	WebIdentityRoleARN   string
}

// BedrockClient is a thin wrapper around bedrockruntime.Client. Shaping is
// entirely delegated to the strategy; this client only knows how to call
// InvokeModel / InvokeModelWithResponseStream and hand bytes back and
// forth.
type BedrockClient struct {
	runtime *bedrockruntime.Client
	retry   resilience.RetryConfig
}

// NewBedrockClient resolves credentials per the priority order in
// BedrockCredentials and constructs a bedrockruntime.Client for region.
func NewBedrockClient(ctx context.Context, region string, creds BedrockCredentials, retry resilience.RetryConfig) (*BedrockClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(region))

	webIdentity := false
	switch {
	case creds.StaticAccessKeyID != "" && creds.StaticSecretAccessKey != "":
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(creds.StaticAccessKeyID, creds.StaticSecretAccessKey, creds.StaticSessionToken),
		))
	case creds.ProfileName != "":
		opts = append(opts, awsconfig.WithSharedConfigProfile(creds.ProfileName))
	case creds.AssumeRoleARN != "":
		// Resolved below, after the base config loads, since stscreds
		// needs an sts.Client built from the ambient chain first.
	case creds.WebIdentityRoleARN != "" && creds.WebIdentityTokenFile != "":
		webIdentity = true
	default:
		// ambient_chain: fall through to awsconfig.LoadDefaultConfig's
		// default provider chain (env vars, shared config, EC2/ECS
		// instance role).
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindAuthorization, "failed to resolve bedrock credentials", err)
	}

	if creds.AssumeRoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, creds.AssumeRoleARN, func(o *stscreds.AssumeRoleOptions) {
			if creds.AssumeRoleExternalID != "" {
				o.ExternalID = &creds.AssumeRoleExternalID
			}
			if creds.AssumeRoleSessionName != "" {
				o.RoleSessionName = creds.AssumeRoleSessionName
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}
	if webIdentity {
		provider := stscreds.NewWebIdentityRoleProvider(sts.NewFromConfig(cfg), creds.WebIdentityRoleARN, stscreds.IdentityTokenFile(creds.WebIdentityTokenFile), func(o *stscreds.WebIdentityRoleOptions) {
			if creds.AssumeRoleSessionName != "" {
				o.RoleSessionName = creds.AssumeRoleSessionName
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return &BedrockClient{
		runtime: bedrockruntime.NewFromConfig(cfg),
		retry:   retry,
	}, nil
}

func (c *BedrockClient) Provider() domain.Provider { return domain.ProviderBedrock }

func (c *BedrockClient) Invoke(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (domain.ChatResponse, error) {
	body, err := strat.ShapeRequest(req)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	var resp domain.ChatResponse
	err = resilience.Retry(ctx, c.retry, func() error {
		out, invokeErr := c.runtime.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     &req.Model,
			Body:        body,
			ContentType: strPtr("application/json"),
		})
		if invokeErr != nil {
			return classifyBedrockError(invokeErr)
		}
		parsed, parseErr := strat.ParseResponse(out.Body, req)
		if parseErr != nil {
			return parseErr
		}
		resp = parsed
		return nil
	})
	return resp, err
}

func (c *BedrockClient) Stream(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (<-chan StreamItem, error) {
	body, err := strat.ShapeRequest(req)
	if err != nil {
		return nil, err
	}

	var stream *bedrockruntime.InvokeModelWithResponseStreamOutput
	err = resilience.Retry(ctx, c.retry, func() error {
		out, invokeErr := c.runtime.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     &req.Model,
			Body:        body,
			ContentType: strPtr("application/json"),
		})
		if invokeErr != nil {
			return classifyBedrockError(invokeErr)
		}
		stream = out
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		defer stream.GetStream().Close()
		state := strategy.NewStreamState(req.RequestID, req.Model)
		reader := stream.GetStream().Reader
		for {
			select {
			case <-ctx.Done():
				out <- StreamItem{Err: gatewayerr.New(gatewayerr.KindCancelled, "client disconnected")}
				return
			case event, ok := <-reader.Events():
				if !ok {
					if err := reader.Err(); err != nil {
						out <- StreamItem{Err: gatewayerr.Wrap(gatewayerr.KindUpstream, "bedrock stream error", err)}
					}
					return
				}
				chunkEvent, ok := event.(*types.ResponseStreamMemberChunk)
				if !ok {
					continue
				}
				chunks, parseErr := strat.ParseStreamEvent(chunkEvent.Value.Bytes, state)
				if parseErr != nil {
					out <- StreamItem{Err: parseErr}
					return
				}
				for _, chunk := range chunks {
					out <- StreamItem{Chunk: chunk}
				}
			}
		}
	}()
	return out, nil
}

func classifyBedrockError(err error) error {
	var throttling *types.ThrottlingException
	var serviceUnavailable *types.ServiceUnavailableException
	var validation *types.ValidationException
	var accessDenied *types.AccessDeniedException
	var modelNotReady *types.ModelNotReadyException

	switch {
	case asBedrockErr(err, &throttling):
		return gatewayerr.Wrap(gatewayerr.KindRateLimited, "bedrock throttled the request", err)
	case asBedrockErr(err, &serviceUnavailable), asBedrockErr(err, &modelNotReady):
		return gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "bedrock service unavailable", err)
	case asBedrockErr(err, &accessDenied):
		return gatewayerr.Wrap(gatewayerr.KindAuthorization, "bedrock denied the request", err)
	case asBedrockErr(err, &validation):
		return gatewayerr.Wrap(gatewayerr.KindValidation, "bedrock rejected the request", err)
	default:
		return gatewayerr.Wrap(gatewayerr.KindUpstream, fmt.Sprintf("bedrock invoke error: %v", err), err)
	}
}

func strPtr(s string) *string { return &s }

func asBedrockErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}
