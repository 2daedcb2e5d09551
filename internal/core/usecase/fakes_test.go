package usecase

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type documentRepoFake struct {
	docs          map[string]*domain.Document
	createErr     error
	statusErrOn   domain.DocumentStatus
	statusErr     error
	statusUpdates []string
}

func newDocumentRepoFake(docs ...*domain.Document) *documentRepoFake {
	f := &documentRepoFake{docs: map[string]*domain.Document{}}
	for _, d := range docs {
		f.docs[d.ID] = d
	}
	return f
}

func (f *documentRepoFake) Create(_ context.Context, doc *domain.Document) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *doc
	f.docs[doc.ID] = &copied
	return nil
}

func (f *documentRepoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *documentRepoFake) UpdateStatus(_ context.Context, id string, status domain.DocumentStatus, errMessage string) error {
	if f.statusErr != nil && status == f.statusErrOn {
		return f.statusErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = status
	doc.Error = errMessage
	f.statusUpdates = append(f.statusUpdates, string(status))
	return nil
}

func (f *documentRepoFake) SetParsed(_ context.Context, id string, docType domain.DocumentType, processedAt time.Time, seconds float64) error {
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrNotFound
	}
	doc.Status = domain.StatusParsed
	doc.Type = docType
	doc.ProcessedAt = &processedAt
	doc.ProcessingSeconds = seconds
	return nil
}

type parseResultRepoFake struct {
	byDocument map[string]*domain.ParseResult
	upsertErr  error
}

func newParseResultRepoFake(results ...*domain.ParseResult) *parseResultRepoFake {
	f := &parseResultRepoFake{byDocument: map[string]*domain.ParseResult{}}
	for _, r := range results {
		f.byDocument[r.DocumentID] = r
	}
	return f
}

func (f *parseResultRepoFake) Upsert(_ context.Context, result *domain.ParseResult) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	copied := *result
	f.byDocument[result.DocumentID] = &copied
	return nil
}

func (f *parseResultRepoFake) GetByDocumentID(_ context.Context, documentID string) (*domain.ParseResult, error) {
	result, ok := f.byDocument[documentID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *result
	return &copied, nil
}

type previewRepoFake struct {
	previews   map[string]*domain.Preview
	updateErr  error
	reviewable []domain.Preview
	listErr    error
}

func newPreviewRepoFake(previews ...*domain.Preview) *previewRepoFake {
	f := &previewRepoFake{previews: map[string]*domain.Preview{}}
	for _, p := range previews {
		f.previews[p.ID] = p
	}
	return f
}

func (f *previewRepoFake) Upsert(_ context.Context, preview *domain.Preview) error {
	copied := *preview
	f.previews[preview.ID] = &copied
	return nil
}

func (f *previewRepoFake) GetByID(_ context.Context, id string) (*domain.Preview, error) {
	p, ok := f.previews[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *previewRepoFake) GetByDocumentID(_ context.Context, documentID string) (*domain.Preview, error) {
	for _, p := range f.previews {
		if p.DocumentID == documentID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *previewRepoFake) Update(_ context.Context, preview *domain.Preview) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.previews[preview.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *preview
	f.previews[preview.ID] = &copied
	return nil
}

func (f *previewRepoFake) ListReviewable(_ context.Context, _ string) ([]domain.Preview, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.reviewable, nil
}

type feedbackRepoFake struct {
	created   []domain.FeedbackRecord
	createErr error
	eligible  []domain.FeedbackRecord
	rated     []domain.FeedbackRecord
	usedIDs   []string
	stats     domain.FeedbackStats
}

func (f *feedbackRepoFake) Create(_ context.Context, record *domain.FeedbackRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, *record)
	return nil
}

func (f *feedbackRepoFake) GetByID(_ context.Context, id string) (*domain.FeedbackRecord, error) {
	for i := range f.created {
		if f.created[i].ID == id {
			copied := f.created[i]
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *feedbackRepoFake) UpdateRating(_ context.Context, id string, rating domain.UserRating) error {
	for i := range f.created {
		if f.created[i].ID == id {
			f.created[i].Rating = rating
			return nil
		}
	}
	return domain.ErrNotFound
}

func (f *feedbackRepoFake) CountEligibleForTraining(context.Context) (int, error) {
	return len(f.eligible), nil
}

func (f *feedbackRepoFake) ListEligibleForTraining(context.Context) ([]domain.FeedbackRecord, error) {
	return f.eligible, nil
}

func (f *feedbackRepoFake) ListUnusedRated(_ context.Context, limit int) ([]domain.FeedbackRecord, error) {
	if limit < len(f.rated) {
		return f.rated[:limit], nil
	}
	return f.rated, nil
}

func (f *feedbackRepoFake) MarkUsedForTraining(_ context.Context, ids []string) error {
	f.usedIDs = append(f.usedIDs, ids...)
	return nil
}

func (f *feedbackRepoFake) Stats(context.Context) (domain.FeedbackStats, error) {
	return f.stats, nil
}

type modelVersionRepoFake struct {
	versions map[string]*domain.ModelVersion
}

func newModelVersionRepoFake(versions ...*domain.ModelVersion) *modelVersionRepoFake {
	f := &modelVersionRepoFake{versions: map[string]*domain.ModelVersion{}}
	for _, v := range versions {
		f.versions[v.ID] = v
	}
	return f
}

func (f *modelVersionRepoFake) Create(_ context.Context, version *domain.ModelVersion) error {
	copied := *version
	f.versions[version.ID] = &copied
	return nil
}

func (f *modelVersionRepoFake) GetByID(_ context.Context, id string) (*domain.ModelVersion, error) {
	v, ok := f.versions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *v
	return &copied, nil
}

func (f *modelVersionRepoFake) GetByIDForUpdate(ctx context.Context, id string) (*domain.ModelVersion, error) {
	return f.GetByID(ctx, id)
}

func (f *modelVersionRepoFake) GetActive(_ context.Context) (*domain.ModelVersion, error) {
	for _, v := range f.versions {
		if v.IsActive {
			copied := *v
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *modelVersionRepoFake) GetActiveForUpdate(ctx context.Context) (*domain.ModelVersion, error) {
	return f.GetActive(ctx)
}

func (f *modelVersionRepoFake) List(context.Context) ([]domain.ModelVersion, error) {
	var out []domain.ModelVersion
	for _, v := range f.versions {
		out = append(out, *v)
	}
	return out, nil
}

func (f *modelVersionRepoFake) ListByStatus(_ context.Context, status domain.ModelVersionStatus) ([]domain.ModelVersion, error) {
	var out []domain.ModelVersion
	for _, v := range f.versions {
		if v.Status == status {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (f *modelVersionRepoFake) Update(_ context.Context, version *domain.ModelVersion) error {
	if _, ok := f.versions[version.ID]; !ok {
		return domain.ErrNotFound
	}
	copied := *version
	f.versions[version.ID] = &copied
	return nil
}

func (f *modelVersionRepoFake) CountVersions(context.Context) (int, error) {
	return len(f.versions), nil
}

type domainStoreFake struct {
	customers map[string]*domain.Customer
	projects  map[string]*domain.Project
	tasks     map[string]*domain.Task
	invoices  []domain.Invoice
	estimates []domain.Estimate
	templates map[string]*domain.TaskTemplate

	takenNumbers map[string]bool
	createErr    error
}

func newDomainStoreFake() *domainStoreFake {
	return &domainStoreFake{
		customers:    map[string]*domain.Customer{},
		projects:     map[string]*domain.Project{},
		tasks:        map[string]*domain.Task{},
		templates:    map[string]*domain.TaskTemplate{},
		takenNumbers: map[string]bool{},
	}
}

func (f *domainStoreFake) ListCustomers(_ context.Context, ownerID string) ([]domain.Customer, error) {
	var out []domain.Customer
	for _, c := range f.customers {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *domainStoreFake) GetCustomer(_ context.Context, ownerID, id string) (*domain.Customer, error) {
	c, ok := f.customers[id]
	if !ok || c.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (f *domainStoreFake) CreateCustomer(_ context.Context, customer *domain.Customer) error {
	if f.createErr != nil {
		return f.createErr
	}
	copied := *customer
	f.customers[customer.ID] = &copied
	return nil
}

func (f *domainStoreFake) UpdateCustomer(_ context.Context, customer *domain.Customer) error {
	copied := *customer
	f.customers[customer.ID] = &copied
	return nil
}

func (f *domainStoreFake) ListProjects(_ context.Context, ownerID, customerID string) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range f.projects {
		if p.OwnerID == ownerID && p.CustomerID == customerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *domainStoreFake) GetProject(_ context.Context, ownerID, id string) (*domain.Project, error) {
	p, ok := f.projects[id]
	if !ok || p.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *domainStoreFake) CreateProject(_ context.Context, project *domain.Project) error {
	copied := *project
	f.projects[project.ID] = &copied
	return nil
}

func (f *domainStoreFake) UpdateProject(_ context.Context, project *domain.Project) error {
	copied := *project
	f.projects[project.ID] = &copied
	return nil
}

func (f *domainStoreFake) ListTasks(_ context.Context, projectID string) ([]domain.Task, error) {
	var out []domain.Task
	for _, t := range f.tasks {
		if t.ProjectID == projectID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *domainStoreFake) GetTask(_ context.Context, projectID, id string) (*domain.Task, error) {
	t, ok := f.tasks[id]
	if !ok || t.ProjectID != projectID {
		return nil, domain.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (f *domainStoreFake) CreateTask(_ context.Context, task *domain.Task) error {
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *domainStoreFake) UpdateTask(_ context.Context, task *domain.Task) error {
	copied := *task
	f.tasks[task.ID] = &copied
	return nil
}

func (f *domainStoreFake) CreateInvoice(_ context.Context, invoice *domain.Invoice) error {
	f.invoices = append(f.invoices, *invoice)
	f.takenNumbers[invoice.Number] = true
	return nil
}

func (f *domainStoreFake) CreateEstimate(_ context.Context, estimate *domain.Estimate) error {
	f.estimates = append(f.estimates, *estimate)
	f.takenNumbers[estimate.Number] = true
	return nil
}

func (f *domainStoreFake) InvoiceNumberExists(_ context.Context, _, number string) (bool, error) {
	return f.takenNumbers[number], nil
}

func (f *domainStoreFake) EstimateNumberExists(_ context.Context, _, number string) (bool, error) {
	return f.takenNumbers[number], nil
}

func (f *domainStoreFake) GetTaskTemplateByName(_ context.Context, ownerID, name string) (*domain.TaskTemplate, error) {
	tpl, ok := f.templates[ownerID+"/"+name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *tpl
	return &copied, nil
}

func (f *domainStoreFake) CreateTaskTemplate(_ context.Context, template *domain.TaskTemplate) error {
	copied := *template
	f.templates[template.OwnerID+"/"+template.Name] = &copied
	return nil
}

func (f *domainStoreFake) UpdateTaskTemplate(_ context.Context, template *domain.TaskTemplate) error {
	copied := *template
	f.templates[template.OwnerID+"/"+template.Name] = &copied
	return nil
}

type transactorFake struct {
	calls int
}

func (f *transactorFake) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	f.calls++
	return fn(ctx)
}

// rollbackTransactorFake discards domain-store writes when fn fails, the way
// a real transaction would.
type rollbackTransactorFake struct {
	store *domainStoreFake
}

func (f *rollbackTransactorFake) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		*f.store = *newDomainStoreFake()
		return err
	}
	return nil
}

type storageFake struct {
	savedKey  string
	savedBody string
	saveErr   error
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.savedKey = key
	f.savedBody = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(f.savedBody)), nil
}

type queueFake struct {
	parsePublished   []string
	approvePublished []string
	publishErr       error
}

func (f *queueFake) PublishDocumentParse(_ context.Context, documentID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.parsePublished = append(f.parsePublished, documentID)
	return nil
}

func (f *queueFake) PublishPreviewApprove(_ context.Context, previewID string) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.approvePublished = append(f.approvePublished, previewID)
	return nil
}

func (f *queueFake) SubscribeDocumentParse(context.Context, func(context.Context, string) error) error {
	return nil
}

func (f *queueFake) SubscribePreviewApprove(context.Context, func(context.Context, string) error) error {
	return nil
}

type extractorFake struct {
	raw       json.RawMessage
	perDoc    map[string]json.RawMessage
	err       error
	usedModel string
}

func (f *extractorFake) Extract(_ context.Context, doc *domain.Document, model string) (json.RawMessage, error) {
	f.usedModel = model
	if f.err != nil {
		return nil, f.err
	}
	if raw, ok := f.perDoc[doc.ID]; ok {
		return raw, nil
	}
	return f.raw, nil
}

type promptRunnerFake struct {
	response string
	err      error
	prompts  []string
}

func (f *promptRunnerFake) GenerateJSON(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fineTunerFake struct {
	fileID    string
	jobID     string
	job       ports.FineTuneJob
	uploaded  []byte
	uploadErr error
	jobErr    error
}

func (f *fineTunerFake) UploadTrainingFile(_ context.Context, _ string, jsonl []byte) (string, error) {
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploaded = jsonl
	return f.fileID, nil
}

func (f *fineTunerFake) CreateJob(context.Context, string, string) (string, error) {
	return f.jobID, nil
}

func (f *fineTunerFake) JobStatus(context.Context, string) (ports.FineTuneJob, error) {
	if f.jobErr != nil {
		return ports.FineTuneJob{}, f.jobErr
	}
	return f.job, nil
}

type feedbackServiceFake struct {
	editCalls     int
	approvalCalls int
	editErr       error
}

func (f *feedbackServiceFake) CaptureManualEdits(_ context.Context, _ *domain.Preview, _ string, _, _ any) ([]domain.FeedbackRecord, error) {
	f.editCalls++
	return nil, f.editErr
}

func (f *feedbackServiceFake) CaptureApprovalWithoutEdits(context.Context, *domain.Preview, string) (*domain.FeedbackRecord, error) {
	f.approvalCalls++
	return &domain.FeedbackRecord{}, nil
}

func (f *feedbackServiceFake) CaptureTaskClarification(context.Context, *domain.Preview, string, int, int) (*domain.FeedbackRecord, error) {
	return &domain.FeedbackRecord{}, nil
}

func (f *feedbackServiceFake) Rate(context.Context, string, domain.UserRating) (*domain.FeedbackRecord, error) {
	return &domain.FeedbackRecord{}, nil
}

func (f *feedbackServiceFake) Stats(context.Context) (domain.FeedbackStats, error) {
	return domain.FeedbackStats{}, nil
}

type previewServiceFake struct {
	approved  []string
	rejected  []string
	failOnIDs map[string]error
}

func (f *previewServiceFake) GetByID(context.Context, string) (*domain.Preview, error) {
	return nil, domain.ErrNotFound
}

func (f *previewServiceFake) GetByDocumentID(context.Context, string) (*domain.Preview, error) {
	return nil, domain.ErrNotFound
}

func (f *previewServiceFake) Edit(context.Context, string, string, ports.PreviewPatch) (*domain.Preview, error) {
	return nil, domain.ErrNotFound
}

func (f *previewServiceFake) Approve(_ context.Context, id, _ string) (*domain.Preview, error) {
	if err, ok := f.failOnIDs[id]; ok {
		return nil, err
	}
	f.approved = append(f.approved, id)
	return &domain.Preview{ID: id, Status: domain.PreviewApproved}, nil
}

func (f *previewServiceFake) Reject(_ context.Context, id, _ string) (*domain.Preview, error) {
	if err, ok := f.failOnIDs[id]; ok {
		return nil, err
	}
	f.rejected = append(f.rejected, id)
	return &domain.Preview{ID: id, Status: domain.PreviewRejected}, nil
}
