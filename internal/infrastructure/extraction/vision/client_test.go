package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

type storageStub struct {
	content map[string][]byte
}

func (s *storageStub) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if s.content == nil {
		s.content = map[string][]byte{}
	}
	s.content[key] = raw
	return nil
}

func (s *storageStub) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(s.content[key])), nil
}

func testDocument() *domain.Document {
	return &domain.Document{
		ID:          "doc-1",
		OwnerID:     "user-1",
		Filename:    "facture.pdf",
		MimeType:    "application/pdf",
		StoragePath: "user-1/doc-1/facture.pdf",
	}
}

func TestExtractSendsEncodedDocumentAndModelOverride(t *testing.T) {
	var captured generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"response":"Here is the result: {\"document_type\":\"invoice\"} done"}`))
	}))
	defer server.Close()

	storage := &storageStub{content: map[string][]byte{
		"user-1/doc-1/facture.pdf": []byte("%PDF-1.4 fake"),
	}}
	client := New(Options{BaseURL: server.URL, APIKey: "secret", DefaultModel: "vision-base", Storage: storage})

	raw, err := client.Extract(context.Background(), testDocument(), "ft:vision-base:v2")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if string(raw) != `{"document_type":"invoice"}` {
		t.Fatalf("raw = %s", raw)
	}
	if captured.Model != "ft:vision-base:v2" {
		t.Fatalf("Model = %q, want fine-tuned override", captured.Model)
	}
	if captured.Format != "json" {
		t.Fatalf("Format = %q, want json", captured.Format)
	}
	if captured.Document == nil {
		t.Fatalf("request carried no document")
	}
	wantData := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 fake"))
	if captured.Document.Data != wantData {
		t.Fatalf("Data = %q, want base64 of stored bytes", captured.Document.Data)
	}
	if !strings.Contains(captured.Prompt, "facture.pdf") {
		t.Fatalf("prompt does not name the file: %s", captured.Prompt)
	}
}

func TestExtractUsesDefaultModelWithoutOverride(t *testing.T) {
	var captured generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_, _ = w.Write([]byte(`{"response":"{}"}`))
	}))
	defer server.Close()

	storage := &storageStub{content: map[string][]byte{"user-1/doc-1/facture.pdf": []byte("x")}}
	client := New(Options{BaseURL: server.URL, DefaultModel: "vision-base", Storage: storage})

	if _, err := client.Extract(context.Background(), testDocument(), ""); err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if captured.Model != "vision-base" {
		t.Fatalf("Model = %q, want vision-base", captured.Model)
	}
}

func TestExtractWrapsRetryableStatusAsTemporary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model warming up", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	storage := &storageStub{content: map[string][]byte{"user-1/doc-1/facture.pdf": []byte("x")}}
	client := New(Options{BaseURL: server.URL, DefaultModel: "vision-base", Storage: storage})

	_, err := client.Extract(context.Background(), testDocument(), "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	if !strings.Contains(err.Error(), "model warming up") {
		t.Fatalf("expected response body in error, got %v", err)
	}
}

func TestExtractLeavesClientErrorsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unsupported mime type", http.StatusBadRequest)
	}))
	defer server.Close()

	storage := &storageStub{content: map[string][]byte{"user-1/doc-1/facture.pdf": []byte("x")}}
	client := New(Options{BaseURL: server.URL, DefaultModel: "vision-base", Storage: storage})

	_, err := client.Extract(context.Background(), testDocument(), "")
	if err == nil {
		t.Fatalf("expected error")
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("client error should not be temporary: %v", err)
	}
}

func TestGenerateJSONTrimsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response":"  {\"score\": 55}  "}`))
	}))
	defer server.Close()

	client := New(Options{BaseURL: server.URL, DefaultModel: "vision-base"})
	got, err := client.GenerateJSON(context.Background(), "score this task")
	if err != nil {
		t.Fatalf("GenerateJSON() error = %v", err)
	}
	if got != `{"score": 55}` {
		t.Fatalf("got %q", got)
	}
}
