package finetune

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/lpellerin/invoiceflow/internal/core/ports"
	"github.com/lpellerin/invoiceflow/internal/infrastructure/resilience"
)

// Client talks to the fine-tuning provider: dataset upload, job creation,
// job polling.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	Executor *resilience.Executor
}

func New(options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(options.BaseURL, "/"),
		apiKey:     options.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.Executor,
	}
}

// UploadTrainingFile pushes a JSONL dataset and returns the provider file id.
func (c *Client) UploadTrainingFile(ctx context.Context, name string, jsonl []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if err := writer.WriteField("purpose", "fine-tune"); err != nil {
		return "", fmt.Errorf("write purpose field: %w", err)
	}
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("create file part: %w", err)
	}
	if _, err := part.Write(jsonl); err != nil {
		return "", fmt.Errorf("write dataset: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	err = c.do(ctx, "upload", http.MethodPost, "/v1/files", writer.FormDataContentType(), body.Bytes(), &response)
	if err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("provider returned no file id")
	}
	return response.ID, nil
}

// CreateJob starts a fine-tuning run of baseModel on the uploaded file.
func (c *Client) CreateJob(ctx context.Context, fileID, baseModel string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"training_file": fileID,
		"model":         baseModel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal job request: %w", err)
	}

	var response struct {
		ID string `json:"id"`
	}
	err = c.do(ctx, "create job", http.MethodPost, "/v1/fine_tuning/jobs", "application/json", payload, &response)
	if err != nil {
		return "", err
	}
	if response.ID == "" {
		return "", fmt.Errorf("provider returned no job id")
	}
	return response.ID, nil
}

// JobStatus polls one job. Status values pass through as the provider
// reports them.
func (c *Client) JobStatus(ctx context.Context, jobID string) (ports.FineTuneJob, error) {
	var response struct {
		Status         string `json:"status"`
		FineTunedModel string `json:"fine_tuned_model"`
		Error          struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	err := c.do(ctx, "job status", http.MethodGet, "/v1/fine_tuning/jobs/"+jobID, "", nil, &response)
	if err != nil {
		return ports.FineTuneJob{}, err
	}
	return ports.FineTuneJob{
		Status:         response.Status,
		FineTunedModel: response.FineTunedModel,
		Error:          response.Error.Message,
	}, nil
}

func (c *Client) do(ctx context.Context, operation, method, path, contentType string, body []byte, out any) error {
	call := func(ctx context.Context) error {
		return c.roundTrip(ctx, operation, method, path, contentType, body, out)
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "finetune."+operation, call, classifyFineTuneError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded(operation, err)
}

func (c *Client) roundTrip(ctx context.Context, operation, method, path, contentType string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("finetune %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
