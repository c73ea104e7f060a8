// Package http provides the REST/SSE API surface for the gateway:
// chat completions (streaming and non-streaming), the Files subsystem, and
// the optional Knowledge-Base subsystem, plus health and metrics endpoints.
package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gateway/internal/config"
	"gateway/internal/dialect"
	"gateway/internal/domain"
	"gateway/internal/files"
	"gateway/internal/gateway"
	"gateway/internal/gatewayerr"
	"gateway/internal/kb"
	"gateway/internal/provider"
	"gateway/internal/telemetry"
)

const maxUploadBytes = 32 * 1024 * 1024 // multipart memory ceiling, independent of files.FilesConfig.MaxFileBytes

// Server is the gateway's HTTP API surface, binding the request
// orchestrator, the Files store, and the optional KB catalog to a single mux.
type Server struct {
	config    *config.Config
	gateway   *gateway.Service
	store     files.Store            // nil disables /v1/files*
	catalog   *kb.Catalog            // nil disables /v1/knowledge-bases*
	retriever *kb.Retriever          // used only for the query/retrieve-and-generate endpoints
	models    *provider.ModelCatalog // nil degrades /v1/models to an empty list
	mux       *http.ServeMux
}

// NewServer constructs a Server. store, catalog, retriever, and models may
// be nil to disable their respective endpoint groups.
func NewServer(cfg *config.Config, gw *gateway.Service, store files.Store, catalog *kb.Catalog, retriever *kb.Retriever, models *provider.ModelCatalog) *Server {
	s := &Server{config: cfg, gateway: gw, store: store, catalog: catalog, retriever: retriever, models: models, mux: http.NewServeMux()}
	s.setupRoutes()
	return s
}

// Handler returns the server's root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /v1/chat/completions", s.withAuth(s.handleChatCompletions))
	s.mux.HandleFunc("GET /v1/chat/completions/health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/models", s.withAuth(s.handleListModels))

	if s.store != nil {
		s.mux.HandleFunc("POST /v1/files", s.withAuth(s.handleUploadFile))
		s.mux.HandleFunc("GET /v1/files", s.withAuth(s.handleListFiles))
		s.mux.HandleFunc("GET /v1/files/{id}", s.withAuth(s.handleGetFile))
		s.mux.HandleFunc("GET /v1/files/{id}/content", s.withAuth(s.handleGetFileContent))
		s.mux.HandleFunc("DELETE /v1/files/{id}", s.withAuth(s.handleDeleteFile))
		s.mux.HandleFunc("GET /v1/files/health", s.handleFilesHealth)
	}

	if s.catalog != nil {
		s.mux.HandleFunc("GET /v1/knowledge-bases", s.withAuth(s.handleListKnowledgeBases))
		s.mux.HandleFunc("GET /v1/knowledge-bases/{id}", s.withAuth(s.handleGetKnowledgeBase))
		s.mux.HandleFunc("DELETE /v1/knowledge-bases/{id}", s.withAuth(s.handleDeleteKnowledgeBase))
		if s.retriever != nil {
			s.mux.HandleFunc("POST /v1/knowledge-bases/{id}/query", s.withAuth(s.handleQueryKnowledgeBase))
			s.mux.HandleFunc("POST /v1/knowledge-bases/{id}/retrieve-and-generate", s.withAuth(s.handleRetrieveAndGenerate))
		}
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", telemetry.Handler())
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAuth enforces the static server bearer-token check. A blank
// ServerAPIKey disables auth entirely, matching local/dev deployments.
func (s *Server) withAuth(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.ServerAPIKey == "" {
			handler(w, r)
			return
		}
		const prefix = "Bearer "
		auth := r.Header.Get("Authorization")
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindAuthentication, "missing bearer token"))
			return
		}
		token := auth[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.ServerAPIKey)) != 1 {
			s.writeGatewayError(w, gatewayerr.New(gatewayerr.KindAuthentication, "invalid bearer token"))
			return
		}
		handler(w, r)
	}
}

func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 16*1024*1024))
	if err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("failed to read request body: %v", err))
		return
	}
	target := r.URL.Query().Get("target_format")

	var peek struct {
		Stream bool `json:"stream"`
	}
	_ = json.Unmarshal(raw, &peek)

	if peek.Stream {
		s.handleStreamingChat(w, r, raw, target)
		return
	}
	s.handleNonStreamingChat(w, r, raw, target)
}

func (s *Server) handleNonStreamingChat(w http.ResponseWriter, r *http.Request, raw []byte, target string) {
	resp, err := s.gateway.Complete(r.Context(), raw, target)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	// Complete already rejected an invalid target_format, so the re-parse
	// cannot fail here.
	tf, _ := domain.ParseTargetFormat(target)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(dialect.EncodeResponse(tf, resp))
}

func (s *Server) handleStreamingChat(w http.ResponseWriter, r *http.Request, raw []byte, target string) {
	items, err := s.gateway.Stream(r.Context(), raw, target)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeGatewayError(w, gatewayerr.Internal(fmt.Errorf("streaming not supported by response writer")))
		return
	}
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout()))

	for item := range items {
		if item.Err != nil {
			s.writeSSEError(w, flusher, item.Err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", item.FrameJSON); err != nil {
			slog.Warn("failed to write SSE frame", "error", err)
			return
		}
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	var data []provider.ModelInfo
	if s.models != nil {
		data = s.models.List(r.Context())
	}
	if data == nil {
		data = []provider.ModelInfo{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

// fileResource is the wire form of an ArtifactRecord on the /v1/files
// endpoints, mirroring the OpenAI files-API field names.
type fileResource struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	Bytes     int64  `json:"bytes"`
	CreatedAt int64  `json:"created_at"`
	Filename  string `json:"filename"`
	Purpose   string `json:"purpose"`
	Status    string `json:"status"`
}

func toFileResource(rec files.ArtifactRecord) fileResource {
	return fileResource{
		ID:        rec.ID,
		Object:    "file",
		Bytes:     rec.SizeBytes,
		CreatedAt: rec.CreatedUnix,
		Filename:  rec.OriginalFilename,
		Purpose:   rec.Purpose,
		Status:    string(rec.Status),
	}
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("failed to parse multipart upload: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("missing multipart field \"file\": %v", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("failed to read uploaded file: %v", err))
		return
	}
	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	purpose := r.FormValue("purpose")

	rec, err := s.store.Put(r.Context(), header.Filename, mediaType, purpose, data)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, toFileResource(rec))
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	recs, err := s.store.List(r.Context(), r.URL.Query().Get("purpose"), limit)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	data := make([]fileResource, 0, len(recs))
	for _, rec := range recs {
		data = append(data, toFileResource(rec))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": data})
}

func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	rec, _, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toFileResource(rec))
}

func (s *Server) handleGetFileContent(w http.ResponseWriter, r *http.Request) {
	rec, data, err := s.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	w.Header().Set("Content-Type", rec.MediaType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.OriginalFilename))
	w.Write(data)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "file", "deleted": true})
}

func (s *Server) handleFilesHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.HealthCheck(r.Context()); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListKnowledgeBases(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": s.catalog.List()})
}

func (s *Server) handleGetKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	found, err := s.catalog.Get(r.PathValue("id"))
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

func (s *Server) handleDeleteKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.catalog.Delete(id); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"id": id, "object": "knowledge_base", "deleted": true})
}

type kbQueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

func (s *Server) handleQueryKnowledgeBase(w http.ResponseWriter, r *http.Request) {
	var req kbQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("malformed JSON body: %v", err))
		return
	}
	if _, err := s.catalog.Get(r.PathValue("id")); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	snippets, err := s.retriever.Retrieve(r.Context(), r.PathValue("id"), req.Query, req.TopK)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"snippets": snippets})
}

type kbGenerateRequest struct {
	Query    string `json:"query"`
	ModelARN string `json:"model_arn"`
}

func (s *Server) handleRetrieveAndGenerate(w http.ResponseWriter, r *http.Request) {
	var req kbGenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeGatewayError(w, gatewayerr.Validation("malformed JSON body: %v", err))
		return
	}
	if _, err := s.catalog.Get(r.PathValue("id")); err != nil {
		s.writeGatewayError(w, err)
		return
	}
	msg, citations, err := s.retriever.RetrieveAndGenerate(r.Context(), r.PathValue("id"), req.ModelARN, req.Query)
	if err != nil {
		s.writeGatewayError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"output":    map[string]string{"text": msg.PlainText()},
		"citations": citations,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) writeGatewayError(w http.ResponseWriter, err error) {
	gwErr := gatewayerr.AsError(err)
	s.writeJSON(w, gwErr.HTTPStatus(), errorResponse{Error: errorDetail{Type: string(gwErr.Kind), Message: gwErr.Message}})
}

func (s *Server) writeSSEError(w io.Writer, flusher http.Flusher, err error) {
	gwErr := gatewayerr.AsError(err)
	frame, _ := json.Marshal(map[string]any{"error": map[string]string{"type": string(gwErr.Kind), "message": gwErr.Message}})
	fmt.Fprintf(w, "data: %s\n\n", frame)
	flusher.Flush()
}

// Start runs the HTTP server until ctx is cancelled, then gracefully shuts
// it down.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout(),
		WriteTimeout: s.config.WriteTimeout(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
