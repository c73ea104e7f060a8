package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"gateway/internal/domain"
	"gateway/internal/gatewayerr"
	"gateway/internal/resilience"
	"gateway/internal/strategy"
)

// OpenAIClient is a thin HTTPS client for the OpenAI chat-completions API.
// Shaping is entirely delegated to the strategy; the client only knows how
// to POST a body and read back JSON or an SSE stream.
type OpenAIClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewOpenAIClient constructs a client against baseURL (defaulting to the
// public OpenAI API) using apiKey as a bearer token.
func NewOpenAIClient(apiKey, baseURL string, retry resilience.RetryConfig) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		retry: retry,
	}
}

func (c *OpenAIClient) Provider() domain.Provider { return domain.ProviderOpenAI }

func (c *OpenAIClient) Invoke(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (domain.ChatResponse, error) {
	body, err := strat.ShapeRequest(req)
	if err != nil {
		return domain.ChatResponse{}, err
	}
	var resp domain.ChatResponse
	err = resilience.Retry(ctx, c.retry, func() error {
		raw, callErr := c.postJSON(ctx, "/chat/completions", body)
		if callErr != nil {
			return callErr
		}
		parsed, parseErr := strat.ParseResponse(raw, req)
		if parseErr != nil {
			return parseErr
		}
		resp = parsed
		return nil
	})
	return resp, err
}

func (c *OpenAIClient) postJSON(ctx context.Context, path string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, gatewayerr.Internal(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, gatewayerr.Internal(err)
	}
	if httpResp.StatusCode >= 400 {
		return nil, classifyHTTPStatus(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

func classifyHTTPStatus(status int, body []byte) error {
	msg := string(body)
	switch {
	case status == http.StatusUnauthorized:
		return gatewayerr.New(gatewayerr.KindAuthentication, "openai rejected credentials")
	case status == http.StatusForbidden:
		return gatewayerr.New(gatewayerr.KindAuthorization, "openai denied the request")
	case status == http.StatusTooManyRequests:
		return gatewayerr.New(gatewayerr.KindRateLimited, "openai rate limit exceeded")
	case status == http.StatusRequestTimeout:
		return gatewayerr.New(gatewayerr.KindTimeout, "openai request timed out")
	case status >= 500:
		return gatewayerr.New(gatewayerr.KindServiceUnavailable, fmt.Sprintf("openai server error: %s", msg))
	default:
		return gatewayerr.New(gatewayerr.KindUpstream, fmt.Sprintf("openai error (%d): %s", status, msg))
	}
}

func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline exceeded") {
		return gatewayerr.Wrap(gatewayerr.KindTimeout, "openai request timed out", err)
	}
	return gatewayerr.Wrap(gatewayerr.KindServiceUnavailable, "openai transport error", err)
}

// Stream establishes a streaming request. Retry only
// applies to establishing the stream; once the SSE body starts flowing,
// mid-stream errors are surfaced, not retried.
func (c *OpenAIClient) Stream(ctx context.Context, req domain.ChatRequest, strat strategy.Strategy) (<-chan StreamItem, error) {
	req.Stream = true
	body, err := strat.ShapeRequest(req)
	if err != nil {
		return nil, err
	}

	var httpResp *http.Response
	err = resilience.Retry(ctx, c.retry, func() error {
		httpReq, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if reqErr != nil {
			return gatewayerr.Internal(reqErr)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Accept", "text/event-stream")

		resp, doErr := c.httpClient.Do(httpReq)
		if doErr != nil {
			return classifyTransportError(doErr)
		}
		if resp.StatusCode >= 400 {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return classifyHTTPStatus(resp.StatusCode, b)
		}
		httpResp = resp
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		defer httpResp.Body.Close()
		state := strategy.NewStreamState(req.RequestID, req.Model)
		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				out <- StreamItem{Err: gatewayerr.New(gatewayerr.KindCancelled, "client disconnected")}
				return
			default:
			}
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			payload := strings.TrimPrefix(line, "data: ")
			if payload == "[DONE]" {
				return
			}
			chunks, parseErr := strat.ParseStreamEvent([]byte(payload), state)
			if parseErr != nil {
				out <- StreamItem{Err: parseErr}
				return
			}
			for _, chunk := range chunks {
				out <- StreamItem{Chunk: chunk}
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamItem{Err: gatewayerr.Wrap(gatewayerr.KindUpstream, "openai stream read error", err)}
		}
	}()
	return out, nil
}
