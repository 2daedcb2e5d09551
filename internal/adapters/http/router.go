package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
	"github.com/lpellerin/invoiceflow/internal/core/usecase"
	"github.com/lpellerin/invoiceflow/internal/observability/metrics"
)

const ownerIDHeader = "X-Owner-Id"
const userIDHeader = "X-User-Id"

type Router struct {
	ingest   ports.DocumentIngestor
	docs     ports.DocumentRepository
	previews ports.PreviewService
	batch    ports.BatchService
	feedback ports.FeedbackService
	training ports.TrainingDataBuilder
	models   ports.ModelManager

	service string
	logger  *slog.Logger
	metrics *metrics.HTTPServerMetrics

	rateLimitRPS   float64
	rateLimitBurst int
	maxConcurrent  int
}

type RouterOptions struct {
	Service string
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	RateLimitRPS   float64
	RateLimitBurst int
	MaxConcurrent  int
}

func NewRouter(
	ingest ports.DocumentIngestor,
	docs ports.DocumentRepository,
	previews ports.PreviewService,
	batch ports.BatchService,
	feedback ports.FeedbackService,
	training ports.TrainingDataBuilder,
	models ports.ModelManager,
	options RouterOptions,
) *Router {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		ingest:         ingest,
		docs:           docs,
		previews:       previews,
		batch:          batch,
		feedback:       feedback,
		training:       training,
		models:         models,
		service:        options.Service,
		logger:         logger,
		metrics:        options.Metrics,
		rateLimitRPS:   options.RateLimitRPS,
		rateLimitBurst: options.RateLimitBurst,
		maxConcurrent:  options.MaxConcurrent,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)

	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.documentRoutes)
	mux.HandleFunc("/v1/previews/", rt.previewRoutes)

	mux.HandleFunc("/v1/batch/summary", rt.batchSummary)
	mux.HandleFunc("/v1/batch/patterns", rt.batchPatterns)
	mux.HandleFunc("/v1/batch/approve", rt.batchApprove)
	mux.HandleFunc("/v1/batch/reject", rt.batchReject)
	mux.HandleFunc("/v1/batch/auto-approve", rt.batchAutoApprove)

	mux.HandleFunc("/v1/feedback/stats", rt.feedbackStats)
	mux.HandleFunc("/v1/feedback/", rt.feedbackRoutes)
	mux.HandleFunc("/v1/training/prepare", rt.prepareTraining)

	mux.HandleFunc("/v1/models", rt.listModels)
	mux.HandleFunc("/v1/models/", rt.modelRoutes)

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.maxConcurrent, 50*time.Millisecond)
	handler = rateLimitMiddleware(handler, rt.rateLimitRPS, rt.rateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(rt.service, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	owner := ownerFrom(r)
	if owner == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-Owner-Id header is required"})
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	doc, err := rt.ingest.Upload(
		r.Context(),
		owner,
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

// documentRoutes dispatches /v1/documents/{id}[/reparse|/preview].
func (rt *Router) documentRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/documents/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		doc, err := rt.docs.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, doc)

	case action == "reparse" && r.Method == http.MethodPost:
		if err := rt.ingest.Reparse(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "document queued for re-parse", "document_id": id})

	case action == "preview" && r.Method == http.MethodGet:
		preview, err := rt.previews.GetByDocumentID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)

	default:
		methodNotAllowed(w)
	}
}

// previewRoutes dispatches /v1/previews/{id}[/approve|/reject].
func (rt *Router) previewRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/previews/")
	if id == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "preview id is required"})
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		preview, err := rt.previews.GetByID(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)

	case action == "" && r.Method == http.MethodPatch:
		var patch ports.PreviewPatch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		preview, err := rt.previews.Edit(r.Context(), id, userFrom(r), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)

	case action == "approve" && r.Method == http.MethodPost:
		preview, err := rt.previews.Approve(r.Context(), id, userFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		rt.recordDecision("approve")
		writeJSON(w, http.StatusAccepted, map[string]string{"message": "approval queued", "preview_id": preview.ID})

	case action == "reject" && r.Method == http.MethodPost:
		preview, err := rt.previews.Reject(r.Context(), id, userFrom(r))
		if err != nil {
			writeError(w, err)
			return
		}
		rt.recordDecision("reject")
		writeJSON(w, http.StatusOK, preview)

	default:
		methodNotAllowed(w)
	}
}

func (rt *Router) batchSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	summary, err := rt.batch.Summary(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (rt *Router) batchPatterns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	patterns, err := rt.batch.Patterns(r.Context(), owner)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns})
}

type batchIDsRequest struct {
	PreviewIDs []string `json:"preview_ids"`
}

func (rt *Router) batchApprove(w http.ResponseWriter, r *http.Request) {
	rt.bulkDecision(w, r, "approve", rt.batch.BulkApprove)
}

func (rt *Router) batchReject(w http.ResponseWriter, r *http.Request) {
	rt.bulkDecision(w, r, "reject", rt.batch.BulkReject)
}

func (rt *Router) bulkDecision(
	w http.ResponseWriter,
	r *http.Request,
	decision string,
	run func(ctx context.Context, ownerID, userID string, previewIDs []string) (*domain.BatchResult, error),
) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req batchIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if len(req.PreviewIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "preview_ids is required"})
		return
	}

	result, err := run(r.Context(), owner, userFrom(r), req.PreviewIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordDecision(decision)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) batchAutoApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	threshold := 0
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 || parsed > 100 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "threshold must be an integer between 0 and 100"})
			return
		}
		threshold = parsed
	}

	result, err := rt.batch.AutoApproveSafe(r.Context(), owner, userFrom(r), threshold)
	if err != nil {
		writeError(w, err)
		return
	}
	rt.recordDecision("auto_approve")
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) feedbackStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	stats, err := rt.feedback.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// feedbackRoutes dispatches /v1/feedback/{id} (PATCH: set the rating).
func (rt *Router) feedbackRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/feedback/")
	if id == "" || action != "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if r.Method != http.MethodPatch {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Rating string `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	record, err := rt.feedback.Rate(r.Context(), id, domain.UserRating(req.Rating))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (rt *Router) prepareTraining(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	minCount := usecase.DefaultTrainingMinCount
	if raw := r.URL.Query().Get("min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "min must be a positive integer"})
			return
		}
		minCount = parsed
	}

	dataset, err := rt.training.PrepareTrainingData(r.Context(), minCount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset_id":    dataset.ID,
		"example_count": len(dataset.Examples),
		"feedback_used": len(dataset.FeedbackIDs),
	})
}

func (rt *Router) listModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	versions, err := rt.models.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": versions})
}

// modelRoutes dispatches /v1/models/{train|active|rollback} and
// /v1/models/{id}/activate.
func (rt *Router) modelRoutes(w http.ResponseWriter, r *http.Request) {
	id, action := splitResourcePath(r.URL.Path, "/v1/models/")

	switch {
	case id == "train" && action == "" && r.Method == http.MethodPost:
		version, err := rt.models.StartTraining(r.Context(), usecase.DefaultTrainingMinCount)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, version)

	case id == "active" && action == "" && r.Method == http.MethodGet:
		version, err := rt.models.Active(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		if version == nil {
			writeJSON(w, http.StatusOK, map[string]any{"active": nil})
			return
		}
		writeJSON(w, http.StatusOK, version)

	case id == "rollback" && action == "" && r.Method == http.MethodPost:
		var req struct {
			Reason string `json:"reason"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
			return
		}
		if strings.TrimSpace(req.Reason) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
			return
		}
		version, err := rt.models.RollbackToPrevious(r.Context(), req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, version)

	case action == "activate" && r.Method == http.MethodPost:
		force := r.URL.Query().Get("force") == "true"
		version, err := rt.models.ActivateModel(r.Context(), id, force)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, version)

	default:
		methodNotAllowed(w)
	}
}

func (rt *Router) recordDecision(decision string) {
	if rt.metrics != nil {
		rt.metrics.RecordReviewDecision(rt.service, decision)
	}
}

// splitResourcePath splits "/prefix/{id}/{action}" into id and action.
func splitResourcePath(path, prefix string) (id, action string) {
	rest := strings.TrimPrefix(path, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", ""
	}
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}

func ownerFrom(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ownerIDHeader))
}

func userFrom(r *http.Request) string {
	if user := strings.TrimSpace(r.Header.Get(userIDHeader)); user != "" {
		return user
	}
	return ownerFrom(r)
}

func requireOwner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := ownerFrom(r)
	if owner == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "X-Owner-Id header is required"})
		return "", false
	}
	return owner, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
