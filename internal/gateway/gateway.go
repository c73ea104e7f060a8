// Package gateway implements the request orchestrator: it binds the dialect
// detector/adapters, provider strategies, model router, provider clients,
// file-context injector, and KB retriever into a single pipeline:
//
//	detect -> convert-in -> inject files -> (optional KB) -> route ->
//	invoke -> convert-out
//
// and its streaming variant, which converts per-chunk instead of once.
package gateway

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"gateway/internal/dialect"
	"gateway/internal/domain"
	"gateway/internal/files"
	"gateway/internal/gatewayerr"
	"gateway/internal/kb"
	"gateway/internal/provider"
	"gateway/internal/routing"
	"gateway/internal/strategy"
	"gateway/internal/telemetry"
)

// DefaultMaxTokens supplies the family-specific fallback applied when a
// request omits max_tokens (boundary behavior: Anthropic requires a
// non-absent value).
type DefaultMaxTokens struct {
	OpenAI    int32
	Anthropic int32
	Titan     int32
}

func (d DefaultMaxTokens) forFamily(f strategy.Family) int32 {
	switch f {
	case strategy.FamilyAnthropic:
		return d.Anthropic
	case strategy.FamilyTitan:
		return d.Titan
	default:
		return d.OpenAI
	}
}

// Service is the composition root's assembled orchestrator: every
// dependency is injected, never reached via a package-level global.
type Service struct {
	Clients          map[domain.Provider]provider.Client
	Router           *routing.Router
	Injector         *files.Injector
	Retriever        *kb.Retriever // nil disables the KB subsystem entirely
	DefaultKBID      string        // used when AutoKB triggers without an explicit knowledge_base_id
	DefaultMaxTokens DefaultMaxTokens
	Metrics          *telemetry.Metrics
	Logger           *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Complete runs the non-streaming request pipeline end to end.
func (s *Service) Complete(ctx context.Context, raw []byte, targetFormatParam string) (resp domain.ChatResponse, err error) {
	target, ok := domain.ParseTargetFormat(targetFormatParam)
	if !ok {
		return domain.ChatResponse{}, gatewayerr.Validation("unrecognized target_format %q", targetFormatParam)
	}

	req, log, recorder, err := s.canonicalize(ctx, raw, target)
	if recorder != nil {
		defer func() {
			if err != nil {
				recorder.RecordError(string(gatewayerr.AsError(err).Kind))
			} else {
				recorder.RecordSuccess()
			}
		}()
	}
	if err != nil {
		return domain.ChatResponse{}, err
	}

	var handled bool
	resp, handled, err = s.maybeDirectRAG(ctx, req, log)
	if handled {
		return resp, err
	}

	providerKind, strat, err2 := s.Router.Route(req.Model)
	if err2 != nil {
		log.Warn("routing failed", "error", err2)
		err = err2
		return domain.ChatResponse{}, err
	}
	client, ok := s.Clients[providerKind]
	if !ok {
		err = gatewayerr.Internal(errors.New("no client configured for provider " + string(providerKind)))
		return domain.ChatResponse{}, err
	}
	if recorder != nil {
		recorder.SetProvider(string(providerKind))
	}
	applyDefaultMaxTokens(&req, strat.Family(), s.DefaultMaxTokens)

	log.Info("invoking provider", "provider", providerKind, "family", strat.Family())
	resp, err = client.Invoke(ctx, req, strat)
	if err != nil {
		log.Warn("provider invoke failed", "error", err)
		return domain.ChatResponse{}, err
	}
	if err = dialect.ValidateToolCalls(req, resp); err != nil {
		log.Warn("tool call arguments failed schema validation", "error", err)
		return domain.ChatResponse{}, err
	}
	log.Info("request completed")
	return resp, nil
}

// StreamItem is one element of the orchestrator's streaming output: either
// a rendered wire-format frame body or a terminal error.
type StreamItem struct {
	FrameJSON []byte // already dialect.EncodeChunk-rendered for the caller's target_format
	Err       error
}

// Stream runs the streaming request pipeline, converting each
// provider-native chunk to the requested target dialect as it arrives.
func (s *Service) Stream(ctx context.Context, raw []byte, targetFormatParam string) (<-chan StreamItem, error) {
	target, ok := domain.ParseTargetFormat(targetFormatParam)
	if !ok {
		return nil, gatewayerr.Validation("unrecognized target_format %q", targetFormatParam)
	}

	req, log, recorder, err := s.canonicalize(ctx, raw, target)
	if err != nil {
		if recorder != nil {
			recorder.RecordError(string(gatewayerr.AsError(err).Kind))
		}
		return nil, err
	}

	if resp, handled, kbErr := s.maybeDirectRAG(ctx, req, log); handled {
		if kbErr != nil {
			if recorder != nil {
				recorder.RecordError(string(gatewayerr.AsError(kbErr).Kind))
			}
			return nil, kbErr
		}
		return singleFrameStream(target, resp, recorder), nil
	}

	providerKind, strat, err := s.Router.Route(req.Model)
	if err != nil {
		if recorder != nil {
			recorder.RecordError(string(gatewayerr.AsError(err).Kind))
		}
		return nil, err
	}
	client, ok := s.Clients[providerKind]
	if !ok {
		err := gatewayerr.Internal(errors.New("no client configured for provider " + string(providerKind)))
		if recorder != nil {
			recorder.RecordError(string(gatewayerr.AsError(err).Kind))
		}
		return nil, err
	}
	if recorder != nil {
		recorder.SetProvider(string(providerKind))
	}
	applyDefaultMaxTokens(&req, strat.Family(), s.DefaultMaxTokens)

	log.Info("invoking provider (stream)", "provider", providerKind, "family", strat.Family())
	upstream, err := client.Stream(ctx, req, strat)
	if err != nil {
		if recorder != nil {
			recorder.RecordError(string(gatewayerr.AsError(err).Kind))
		}
		return nil, err
	}

	out := make(chan StreamItem)
	if s.Metrics != nil {
		s.Metrics.StreamConnections.Inc()
	}
	go func() {
		defer close(out)
		defer func() {
			if s.Metrics != nil {
				s.Metrics.StreamConnections.Dec()
			}
		}()
		var streamErr error
		for item := range upstream {
			if item.Err != nil {
				streamErr = item.Err
				out <- StreamItem{Err: item.Err}
				continue
			}
			out <- StreamItem{FrameJSON: dialect.EncodeChunk(target, item.Chunk)}
		}
		if recorder != nil {
			if streamErr != nil {
				recorder.RecordError(string(gatewayerr.AsError(streamErr).Kind))
			} else {
				recorder.RecordSuccess()
			}
		}
		log.Info("stream completed", "error", streamErr)
	}()
	return out, nil
}

func singleFrameStream(target domain.TargetFormat, resp domain.ChatResponse, recorder *telemetry.RequestRecorder) <-chan StreamItem {
	out := make(chan StreamItem, 2*len(resp.Choices))
	id := resp.ID
	for _, c := range resp.Choices {
		content := domain.Chunk{
			ID: id, CreatedUnix: resp.CreatedUnix, Model: resp.Model,
			Choices: []domain.ChunkChoice{{
				Index: c.Index,
				Delta: domain.Delta{Role: domain.RoleAssistant, Content: c.Message.PlainText()},
			}},
		}
		out <- StreamItem{FrameJSON: dialect.EncodeChunk(target, content)}

		fr := c.FinishReason
		terminal := domain.Chunk{
			ID: id, CreatedUnix: resp.CreatedUnix, Model: resp.Model,
			Choices: []domain.ChunkChoice{{Index: c.Index, FinishReason: &fr}},
			Usage:   resp.Usage,
		}
		out <- StreamItem{FrameJSON: dialect.EncodeChunk(target, terminal)}
	}
	close(out)
	if recorder != nil {
		recorder.RecordSuccess()
	}
	return out
}

// canonicalize runs the shared INIT -> DETECTED -> CANONICALIZED ->
// (FILES_INJECTED)? portion of the pipeline common to both Complete and
// Stream, returning the canonical request ready for the (optional
// KB)/route/invoke phases.
func (s *Service) canonicalize(ctx context.Context, raw []byte, target domain.TargetFormat) (domain.ChatRequest, *slog.Logger, *telemetry.RequestRecorder, error) {
	req, d, err := dialect.DecodeRequest(raw)
	if err != nil {
		return domain.ChatRequest{}, nil, nil, err
	}
	req.RequestID = "chatcmpl-" + uuid.New().String()

	log := s.logger().With("request_id", req.RequestID, "model", req.Model, "dialect", d, "target_format", target)
	log.Info("request canonicalized")

	var recorder *telemetry.RequestRecorder
	if s.Metrics != nil {
		recorder = s.Metrics.NewRequestRecorder(req.Model, string(target))
	}

	if len(req.FileIDs) > 0 {
		if s.Injector == nil {
			return domain.ChatRequest{}, log, recorder, gatewayerr.Validation("file_ids supplied but the files subsystem is not configured")
		}
		if err := s.Injector.Inject(ctx, &req); err != nil {
			if s.Metrics != nil {
				s.Metrics.RecordFileInjection("error")
			}
			return domain.ChatRequest{}, log, recorder, err
		}
		if s.Metrics != nil {
			s.Metrics.RecordFileInjection("success")
		}
		log.Info("file context injected", "file_ids", req.FileIDs)
	}

	return req, log, recorder, nil
}

// maybeDirectRAG runs the optional KB phase of the pipeline: when routing
// lands on direct_rag, the KB API performs both retrieval and generation and
// the orchestrator returns its answer directly, never reaching the model
// router; handled reports whether that happened.
//
// context_augmentation instead retrieves snippets and prepends them as a
// preamble the same way the file injector does, mutating req's messages in
// place and letting the caller continue into normal routing.
func (s *Service) maybeDirectRAG(ctx context.Context, req domain.ChatRequest, log *slog.Logger) (domain.ChatResponse, bool, error) {
	mode, kbID, query := s.classifyKB(req)
	if mode == kb.ModeSkip || s.Retriever == nil {
		return domain.ChatResponse{}, false, nil
	}
	if s.Metrics != nil {
		s.Metrics.RecordKBRetrieval(string(mode))
	}

	switch mode {
	case kb.ModeDirectRAG:
		log.Info("kb direct_rag", "knowledge_base_id", kbID)
		msg, citations, err := s.Retriever.RetrieveAndGenerate(ctx, kbID, req.Model, query)
		if err != nil {
			return domain.ChatResponse{}, true, err
		}
		return domain.ChatResponse{
			ID:          req.RequestID,
			CreatedUnix: domain.Now(),
			Model:       req.Model,
			Choices:     []domain.Choice{{Index: 0, Message: msg, FinishReason: domain.FinishStop}},
			Citations:   citations,
		}, true, nil
	case kb.ModeContextAugmentation:
		log.Info("kb context_augmentation", "knowledge_base_id", kbID)
		topK := 5
		if req.RetrievalConfig != nil && req.RetrievalConfig.TopK > 0 {
			topK = req.RetrievalConfig.TopK
		}
		snippets, err := s.Retriever.Retrieve(ctx, kbID, query, topK)
		if err != nil {
			return domain.ChatResponse{}, true, err
		}
		preamble := kb.BuildPreamble(snippets)
		if preamble != "" {
			if err := files.PrependPreamble(&req, preamble); err != nil {
				return domain.ChatResponse{}, true, err
			}
		}
		return domain.ChatResponse{}, false, nil
	default:
		return domain.ChatResponse{}, false, nil
	}
}

// classifyKB decides the KB routing mode: an explicit
// knowledge_base_id makes KB use unconditional, defaulting to
// context_augmentation (it augments the normal provider call rather than
// replacing it) unless the caller also asked for auto-detection, in which
// case the confidence score can still escalate it to direct_rag.
// auto_kb alone (no explicit id) classifies the last user message against
// a configured default knowledge base.
func (s *Service) classifyKB(req domain.ChatRequest) (kb.RetrievalMode, string, string) {
	query := lastUserText(req)

	if req.KnowledgeBaseID != "" {
		if req.AutoKB {
			mode, _ := kb.Classify(query)
			if mode == kb.ModeSkip {
				mode = kb.ModeContextAugmentation
			}
			return mode, req.KnowledgeBaseID, query
		}
		return kb.ModeContextAugmentation, req.KnowledgeBaseID, query
	}

	if req.AutoKB && s.DefaultKBID != "" {
		mode, _ := kb.Classify(query)
		return mode, s.DefaultKBID, query
	}

	return kb.ModeSkip, "", query
}

func lastUserText(req domain.ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == domain.RoleUser {
			return req.Messages[i].PlainText()
		}
	}
	return ""
}

func applyDefaultMaxTokens(req *domain.ChatRequest, family strategy.Family, defaults DefaultMaxTokens) {
	if req.MaxTokens != nil {
		return
	}
	v := defaults.forFamily(family)
	if v <= 0 {
		v = 1024
	}
	req.MaxTokens = &v
}
