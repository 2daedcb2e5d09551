package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusParsed     DocumentStatus = "parsed"
	StatusApproved   DocumentStatus = "approved"
	StatusRejected   DocumentStatus = "rejected"
	StatusError      DocumentStatus = "error"
)

type DocumentType string

const (
	DocumentTypeInvoice  DocumentType = "invoice"
	DocumentTypeEstimate DocumentType = "estimate"
	DocumentTypeUnknown  DocumentType = "unknown"
)

// Document is the uploaded source file and its pipeline state. Rows are
// created on upload and never deleted; status is owned by the parse pipeline
// and the approval commit.
type Document struct {
	ID                string         `json:"id"`
	OwnerID           string         `json:"owner_id"`
	Filename          string         `json:"filename"`
	MimeType          string         `json:"mime_type"`
	StoragePath       string         `json:"storage_path"`
	Type              DocumentType   `json:"document_type"`
	Status            DocumentStatus `json:"status"`
	Error             string         `json:"error,omitempty"`
	UploadedAt        time.Time      `json:"uploaded_at"`
	ProcessedAt       *time.Time     `json:"processed_at,omitempty"`
	ProcessingSeconds float64        `json:"processing_duration_seconds,omitempty"`
	UpdatedAt         time.Time      `json:"updated_at"`
}
