package usecase

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

func TestUploadStoresDocumentAndPublishes(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "owner-1", "facture 2024.pdf", "application/pdf", bytes.NewReader([]byte("%PDF")))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if doc.ID == "" {
		t.Fatal("expected generated document id")
	}
	if doc.Status != domain.StatusUploaded {
		t.Fatalf("status = %s, want uploaded", doc.Status)
	}
	if doc.OwnerID != "owner-1" {
		t.Fatalf("owner = %s", doc.OwnerID)
	}
	if storage.savedBody != "%PDF" {
		t.Fatalf("storage body = %q", storage.savedBody)
	}
	if !strings.HasSuffix(storage.savedKey, "facture_2024.pdf") {
		t.Fatalf("storage key %q should end with sanitized filename", storage.savedKey)
	}
	if len(queue.parsePublished) != 1 || queue.parsePublished[0] != doc.ID {
		t.Fatalf("published = %v, want [%s]", queue.parsePublished, doc.ID)
	}
	if _, ok := repo.docs[doc.ID]; !ok {
		t.Fatal("document not persisted")
	}
}

func TestUploadRequiresOwner(t *testing.T) {
	uc := NewIngestDocumentUseCase(newDocumentRepoFake(), &storageFake{}, &queueFake{})

	_, err := uc.Upload(context.Background(), "  ", "a.pdf", "application/pdf", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUploadStorageFailureStopsBeforePersist(t *testing.T) {
	repo := newDocumentRepoFake()
	storage := &storageFake{saveErr: errors.New("disk full")}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "owner-1", "a.pdf", "application/pdf", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(repo.docs) != 0 {
		t.Fatal("document should not be persisted when storage fails")
	}
	if len(queue.parsePublished) != 0 {
		t.Fatal("nothing should be published when storage fails")
	}
}

func TestReparseResetsAndRepublishes(t *testing.T) {
	repo := newDocumentRepoFake(&domain.Document{ID: "doc-1", Status: domain.StatusError, Error: "boom"})
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, &storageFake{}, queue)

	if err := uc.Reparse(context.Background(), "doc-1"); err != nil {
		t.Fatalf("Reparse: %v", err)
	}
	if got := repo.docs["doc-1"].Status; got != domain.StatusUploaded {
		t.Fatalf("status = %s, want uploaded", got)
	}
	if repo.docs["doc-1"].Error != "" {
		t.Fatal("error message should be cleared")
	}
	if len(queue.parsePublished) != 1 || queue.parsePublished[0] != "doc-1" {
		t.Fatalf("published = %v", queue.parsePublished)
	}
}

func TestReparseRejectsApprovedDocument(t *testing.T) {
	repo := newDocumentRepoFake(&domain.Document{ID: "doc-1", Status: domain.StatusApproved})
	uc := NewIngestDocumentUseCase(repo, &storageFake{}, &queueFake{})

	err := uc.Reparse(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"devis été 2024.pdf", "devis__t__2024.pdf"},
		{"../../etc/passwd", "passwd"},
		{"plain.PDF", "plain.PDF"},
		{"", "document.bin"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
