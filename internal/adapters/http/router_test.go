package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

type ingestorFake struct {
	uploaded   *domain.Document
	uploadErr  error
	reparsed   []string
	reparseErr error
}

func (f *ingestorFake) Upload(_ context.Context, ownerID, filename, mimeType string, _ io.Reader) (*domain.Document, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = &domain.Document{ID: "doc-1", OwnerID: ownerID, Filename: filename, MimeType: mimeType, Status: domain.StatusUploaded}
	return f.uploaded, nil
}

func (f *ingestorFake) Reparse(_ context.Context, documentID string) error {
	if f.reparseErr != nil {
		return f.reparseErr
	}
	f.reparsed = append(f.reparsed, documentID)
	return nil
}

type docRepoFake struct {
	doc *domain.Document
	err error
}

func (f *docRepoFake) Create(context.Context, *domain.Document) error { return nil }
func (f *docRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	return f.doc, f.err
}
func (f *docRepoFake) UpdateStatus(context.Context, string, domain.DocumentStatus, string) error {
	return nil
}
func (f *docRepoFake) SetParsed(context.Context, string, domain.DocumentType, time.Time, float64) error {
	return nil
}

type previewServiceFake struct {
	preview    *domain.Preview
	err        error
	approved   []string
	rejected   []string
	lastPatch  ports.PreviewPatch
	lastUserID string
}

func (f *previewServiceFake) GetByID(context.Context, string) (*domain.Preview, error) {
	return f.preview, f.err
}
func (f *previewServiceFake) GetByDocumentID(context.Context, string) (*domain.Preview, error) {
	return f.preview, f.err
}
func (f *previewServiceFake) Edit(_ context.Context, _, userID string, patch ports.PreviewPatch) (*domain.Preview, error) {
	f.lastPatch = patch
	f.lastUserID = userID
	return f.preview, f.err
}
func (f *previewServiceFake) Approve(_ context.Context, id, _ string) (*domain.Preview, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.approved = append(f.approved, id)
	return f.preview, nil
}
func (f *previewServiceFake) Reject(_ context.Context, id, _ string) (*domain.Preview, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rejected = append(f.rejected, id)
	return f.preview, nil
}

type batchServiceFake struct {
	summary       *domain.BatchSummary
	patterns      []domain.Pattern
	result        *domain.BatchResult
	err           error
	lastThreshold int
	lastOwner     string
}

func (f *batchServiceFake) Summary(_ context.Context, ownerID string) (*domain.BatchSummary, error) {
	f.lastOwner = ownerID
	return f.summary, f.err
}
func (f *batchServiceFake) Patterns(_ context.Context, ownerID string) ([]domain.Pattern, error) {
	f.lastOwner = ownerID
	return f.patterns, f.err
}
func (f *batchServiceFake) BulkApprove(_ context.Context, ownerID, _ string, _ []string) (*domain.BatchResult, error) {
	f.lastOwner = ownerID
	return f.result, f.err
}
func (f *batchServiceFake) BulkReject(_ context.Context, ownerID, _ string, _ []string) (*domain.BatchResult, error) {
	f.lastOwner = ownerID
	return f.result, f.err
}
func (f *batchServiceFake) AutoApproveSafe(_ context.Context, ownerID, _ string, threshold int) (*domain.BatchResult, error) {
	f.lastOwner = ownerID
	f.lastThreshold = threshold
	return f.result, f.err
}

type feedbackServiceFake struct {
	stats       domain.FeedbackStats
	err         error
	lastRatedID string
	lastRating  domain.UserRating
}

func (f *feedbackServiceFake) CaptureManualEdits(context.Context, *domain.Preview, string, any, any) ([]domain.FeedbackRecord, error) {
	return nil, nil
}
func (f *feedbackServiceFake) CaptureApprovalWithoutEdits(context.Context, *domain.Preview, string) (*domain.FeedbackRecord, error) {
	return nil, nil
}
func (f *feedbackServiceFake) CaptureTaskClarification(context.Context, *domain.Preview, string, int, int) (*domain.FeedbackRecord, error) {
	return nil, nil
}
func (f *feedbackServiceFake) Rate(_ context.Context, id string, rating domain.UserRating) (*domain.FeedbackRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastRatedID = id
	f.lastRating = rating
	return &domain.FeedbackRecord{ID: id, Rating: rating}, nil
}

func (f *feedbackServiceFake) Stats(context.Context) (domain.FeedbackStats, error) {
	return f.stats, f.err
}

type trainingBuilderFake struct {
	dataset *domain.TrainingDataset
	err     error
	lastMin int
}

func (f *trainingBuilderFake) PrepareTrainingData(_ context.Context, minCount int) (*domain.TrainingDataset, error) {
	f.lastMin = minCount
	return f.dataset, f.err
}

type modelManagerFake struct {
	version   *domain.ModelVersion
	versions  []domain.ModelVersion
	err       error
	lastForce bool
	lastID    string
}

func (f *modelManagerFake) StartTraining(context.Context, int) (*domain.ModelVersion, error) {
	return f.version, f.err
}
func (f *modelManagerFake) CheckTrainingStatus(context.Context, string) (*domain.ModelVersion, error) {
	return f.version, f.err
}
func (f *modelManagerFake) EvaluateModel(context.Context, string) (*domain.ModelVersion, error) {
	return f.version, f.err
}
func (f *modelManagerFake) ActivateModel(_ context.Context, id string, force bool) (*domain.ModelVersion, error) {
	f.lastID = id
	f.lastForce = force
	return f.version, f.err
}
func (f *modelManagerFake) RollbackToPrevious(_ context.Context, _ string) (*domain.ModelVersion, error) {
	return f.version, f.err
}
func (f *modelManagerFake) List(context.Context) ([]domain.ModelVersion, error) {
	return f.versions, f.err
}
func (f *modelManagerFake) Active(context.Context) (*domain.ModelVersion, error) {
	return f.version, f.err
}
func (f *modelManagerFake) PollPending(context.Context) error { return f.err }

type routerFixtures struct {
	ingest   *ingestorFake
	docs     *docRepoFake
	previews *previewServiceFake
	batch    *batchServiceFake
	feedback *feedbackServiceFake
	training *trainingBuilderFake
	models   *modelManagerFake
}

func newTestRouter(fx *routerFixtures, options RouterOptions) http.Handler {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewRouter(fx.ingest, fx.docs, fx.previews, fx.batch, fx.feedback, fx.training, fx.models, options).Handler()
}

func defaultFixtures() *routerFixtures {
	return &routerFixtures{
		ingest:   &ingestorFake{},
		docs:     &docRepoFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusParsed}},
		previews: &previewServiceFake{preview: &domain.Preview{ID: "prev-1", DocumentID: "doc-1"}},
		batch:    &batchServiceFake{summary: &domain.BatchSummary{Total: 2}, result: &domain.BatchResult{Requested: 1, Succeeded: 1}},
		feedback: &feedbackServiceFake{stats: domain.FeedbackStats{Total: 7}},
		training: &trainingBuilderFake{dataset: &domain.TrainingDataset{ID: "ds-1", FeedbackIDs: []string{"fb-1"}}},
		models:   &modelManagerFake{version: &domain.ModelVersion{ID: "mv-1", Version: "v1"}},
	}
}

func multipartBody(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func TestUploadRequiresOwnerHeader(t *testing.T) {
	handler := newTestRouter(defaultFixtures(), RouterOptions{})

	body, contentType := multipartBody(t, "facture.pdf", "%PDF")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
	if !strings.Contains(res.Body.String(), "X-Owner-Id") {
		t.Fatalf("body = %s", res.Body.String())
	}
}

func TestUploadAcceptsDocument(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	body, contentType := multipartBody(t, "facture.pdf", "%PDF")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(ownerIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", res.Code, res.Body.String())
	}
	if fx.ingest.uploaded == nil || fx.ingest.uploaded.OwnerID != "user-1" {
		t.Fatalf("uploaded = %+v", fx.ingest.uploaded)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestGetDocumentMapsNotFound(t *testing.T) {
	fx := defaultFixtures()
	fx.docs.doc = nil
	fx.docs.err = domain.WrapError(domain.ErrNotFound, "get document", errors.New("id missing"))
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", res.Code)
	}
}

func TestReparseQueuesDocument(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents/doc-1/reparse", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.Code)
	}
	if len(fx.ingest.reparsed) != 1 || fx.ingest.reparsed[0] != "doc-1" {
		t.Fatalf("reparsed = %v", fx.ingest.reparsed)
	}
}

func TestPreviewPatchPassesUserAndPatch(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	payload := `{"customer_data":{"name":"Jean Dupont"}}`
	req := httptest.NewRequest(http.MethodPatch, "/v1/previews/prev-1", strings.NewReader(payload))
	req.Header.Set(ownerIDHeader, "user-1")
	req.Header.Set(userIDHeader, "reviewer-3")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", res.Code, res.Body.String())
	}
	if fx.previews.lastUserID != "reviewer-3" {
		t.Fatalf("userID = %q", fx.previews.lastUserID)
	}
	if fx.previews.lastPatch.CustomerData == nil || fx.previews.lastPatch.CustomerData.Name != "Jean Dupont" {
		t.Fatalf("patch = %+v", fx.previews.lastPatch)
	}
}

func TestPreviewApproveReturnsAccepted(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/previews/prev-1/approve", nil)
	req.Header.Set(ownerIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", res.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(res.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["preview_id"] != "prev-1" {
		t.Fatalf("resp = %v", resp)
	}
}

func TestPreviewApproveMapsConflict(t *testing.T) {
	fx := defaultFixtures()
	fx.previews.err = domain.WrapError(domain.ErrConflict, "approve preview", errors.New("already rejected"))
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/previews/prev-1/approve", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
}

func TestBatchApproveRequiresIDs(t *testing.T) {
	handler := newTestRouter(defaultFixtures(), RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/batch/approve", strings.NewReader(`{"preview_ids":[]}`))
	req.Header.Set(ownerIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestAutoApproveValidatesThreshold(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/batch/auto-approve?threshold=150", nil)
	req.Header.Set(ownerIDHeader, "user-1")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/v1/batch/auto-approve?threshold=85", nil)
	req.Header.Set(ownerIDHeader, "user-1")
	res = httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if fx.batch.lastThreshold != 85 {
		t.Fatalf("threshold = %d, want 85", fx.batch.lastThreshold)
	}
}

func TestRateFeedbackThroughAPI(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPatch, "/v1/feedback/fb-1", strings.NewReader(`{"rating":"good"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", res.Code, res.Body.String())
	}
	if fx.feedback.lastRatedID != "fb-1" || fx.feedback.lastRating != domain.RatingGood {
		t.Fatalf("rate call = %q %q", fx.feedback.lastRatedID, fx.feedback.lastRating)
	}
}

func TestRateFeedbackMapsInvalidRating(t *testing.T) {
	fx := defaultFixtures()
	fx.feedback.err = domain.WrapError(domain.ErrInvalidInput, "rate feedback", errors.New(`unknown rating "amazing"`))
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPatch, "/v1/feedback/fb-1", strings.NewReader(`{"rating":"amazing"}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestPrepareTrainingMapsInsufficientData(t *testing.T) {
	fx := defaultFixtures()
	fx.training.err = domain.WrapError(domain.ErrInsufficientData, "prepare training data",
		errors.New("current_count=12, required_count=50"))
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/training/prepare", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", res.Code)
	}
	if !strings.Contains(res.Body.String(), "current_count=12") {
		t.Fatalf("body = %s", res.Body.String())
	}
}

func TestPrepareTrainingHonorsMinOverride(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/training/prepare?min=75", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if fx.training.lastMin != 75 {
		t.Fatalf("min = %d, want 75", fx.training.lastMin)
	}
}

func TestModelActivateMapsRejection(t *testing.T) {
	fx := defaultFixtures()
	fx.models.err = domain.WrapError(domain.ErrActivationRejected, "activate model",
		errors.New("candidate does not improve on active version"))
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/models/mv-2/activate", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", res.Code)
	}
}

func TestModelActivateForceFlag(t *testing.T) {
	fx := defaultFixtures()
	handler := newTestRouter(fx, RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/models/mv-2/activate?force=true", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", res.Code)
	}
	if fx.models.lastID != "mv-2" || !fx.models.lastForce {
		t.Fatalf("activate call = id %q force %v", fx.models.lastID, fx.models.lastForce)
	}
}

func TestRollbackRequiresReason(t *testing.T) {
	handler := newTestRouter(defaultFixtures(), RouterOptions{})

	req := httptest.NewRequest(http.MethodPost, "/v1/models/rollback", strings.NewReader(`{"reason":""}`))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", res.Code)
	}
}

func TestRateLimitMiddlewareReturns429(t *testing.T) {
	handler := newTestRouter(defaultFixtures(), RouterOptions{RateLimitRPS: 1, RateLimitBurst: 1})

	req1 := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	res1 := httptest.NewRecorder()
	handler.ServeHTTP(res1, req1)
	if res1.Code != http.StatusOK {
		t.Fatalf("first request expected 200, got %d", res1.Code)
	}

	req2 := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	res2 := httptest.NewRecorder()
	handler.ServeHTTP(res2, req2)
	if res2.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", res2.Code)
	}
	if res2.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header for 429 response")
	}
}

func TestBackpressureMiddlewareReturns503WhenSaturated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	base := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(base, 1, 20*time.Millisecond)

	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}()
	<-started

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("saturated request expected 503, got %d", res.Code)
	}

	close(release)
	<-firstDone
}
