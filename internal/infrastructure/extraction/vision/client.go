package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
	"github.com/lpellerin/invoiceflow/internal/core/ports"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/resilience"
)

// Client talks to the vision extraction provider: document bytes in,
// structured JSON out. It also serves free-form JSON generation for the
// task-quality cascade.
type Client struct {
	baseURL      string
	apiKey       string
	defaultModel string
	httpClient   *http.Client
	executor     *resilience.Executor
	storage      ports.ObjectStorage
}

type Options struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	// Executor adds retry and circuit breaking around provider calls.
	// Nil means direct calls.
	Executor *resilience.Executor
	Storage  ports.ObjectStorage
}

func New(options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(options.BaseURL, "/"),
		apiKey:       options.APIKey,
		defaultModel: options.DefaultModel,
		httpClient:   &http.Client{Timeout: timeout},
		executor:     options.Executor,
		storage:      options.Storage,
	}
}

type generateRequest struct {
	Model    string            `json:"model"`
	Prompt   string            `json:"prompt"`
	Format   string            `json:"format"`
	Document *documentEnvelope `json:"document,omitempty"`
}

type documentEnvelope struct {
	Filename string `json:"filename"`
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Extract sends the stored document to the provider and returns its JSON
// extraction. model overrides the provider default with a fine-tuned id.
func (c *Client) Extract(ctx context.Context, doc *domain.Document, model string) (json.RawMessage, error) {
	envelope, err := c.loadDocument(ctx, doc)
	if err != nil {
		return nil, err
	}

	request := generateRequest{
		Model:    c.resolveModel(model),
		Prompt:   buildExtractionPrompt(doc),
		Format:   "json",
		Document: envelope,
	}

	response, err := c.generate(ctx, "extract", request)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(extractJSONObject(response)), nil
}

// GenerateJSON runs a free-form prompt and returns the raw JSON response.
func (c *Client) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	request := generateRequest{
		Model:  c.defaultModel,
		Prompt: prompt,
		Format: "json",
	}
	response, err := c.generate(ctx, "generate", request)
	if err != nil {
		return "", err
	}
	return response, nil
}

func (c *Client) generate(ctx context.Context, operation string, request generateRequest) (string, error) {
	var response struct {
		Response string `json:"response"`
	}

	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/v1/generate", request, &response, operation)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "vision."+operation, call, classifyVisionError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", wrapTemporaryIfNeeded(operation, err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) loadDocument(ctx context.Context, doc *domain.Document) (*documentEnvelope, error) {
	if c.storage == nil {
		return nil, fmt.Errorf("vision client has no document storage")
	}
	reader, err := c.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read stored document: %w", err)
	}
	return &documentEnvelope{
		Filename: doc.Filename,
		MimeType: doc.MimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

func (c *Client) resolveModel(override string) string {
	if override != "" {
		return override
	}
	return c.defaultModel
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
