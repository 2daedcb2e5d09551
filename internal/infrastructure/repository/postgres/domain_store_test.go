package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/lpellerin/invoiceflow/internal/core/domain"
)

func TestDomainStoreGetCustomerReturnsDomainNotFound(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)

	mock.ExpectQuery("FROM customers").
		WithArgs("user-1", "missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetCustomer(context.Background(), "user-1", "missing")
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDomainStoreListCustomersScopedToOwner(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)

	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "owner_id", "name", "email", "phone", "company", "address", "created_at"}).
		AddRow("cust-1", "user-1", "Jean Dupont", "jean@example.fr", "", "Dupont SARL", "", created)

	mock.ExpectQuery("FROM customers").
		WithArgs("user-1").
		WillReturnRows(rows)

	customers, err := store.ListCustomers(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListCustomers() error = %v", err)
	}
	if len(customers) != 1 || customers[0].Company != "Dupont SARL" {
		t.Fatalf("customers = %+v", customers)
	}
	expectationsMet(t, mock)
}

func TestDomainStoreUpdateProjectReturnsNotFoundWhenNoRowsAffected(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)

	project := &domain.Project{ID: "missing", OwnerID: "user-1", Status: domain.ProjectActive}
	mock.ExpectExec("UPDATE projects").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateProject(context.Background(), project)
	if err == nil {
		t.Fatalf("expected error")
	}
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	expectationsMet(t, mock)
}

func TestDomainStoreInvoiceNumberExists(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)

	mock.ExpectQuery("SELECT EXISTS .SELECT 1 FROM invoices").
		WithArgs("user-1", "FAC-2024-042").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.InvoiceNumberExists(context.Background(), "user-1", "FAC-2024-042")
	if err != nil {
		t.Fatalf("InvoiceNumberExists() error = %v", err)
	}
	if !exists {
		t.Fatalf("exists = false, want true")
	}
	expectationsMet(t, mock)
}

func TestDomainStoreTaskTemplateRoundTripsTags(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)

	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "name", "category", "tags", "avg_hours", "avg_amount",
		"weight_sum", "usage_count", "created_at", "updated_at",
	}).AddRow("tpl-1", "user-1", "Peinture salon", "construction", []byte(`["peinture","salon"]`),
		12.5, 950.0, 1.7, 3, created, created)

	mock.ExpectQuery("FROM task_templates").
		WithArgs("user-1", "Peinture salon").
		WillReturnRows(rows)

	tpl, err := store.GetTaskTemplateByName(context.Background(), "user-1", "Peinture salon")
	if err != nil {
		t.Fatalf("GetTaskTemplateByName() error = %v", err)
	}
	if len(tpl.Tags) != 2 || tpl.Tags[0] != "peinture" {
		t.Fatalf("Tags = %v", tpl.Tags)
	}
	if tpl.WeightSum != 1.7 {
		t.Fatalf("WeightSum = %v, want 1.7", tpl.WeightSum)
	}
	expectationsMet(t, mock)
}

func TestDomainStoreTransactorRoutesThroughTx(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO customers").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return store.CreateCustomer(ctx, &domain.Customer{
			ID: "cust-1", OwnerID: "user-1", Name: "Jean Dupont", CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		t.Fatalf("WithinTx() error = %v", err)
	}
	expectationsMet(t, mock)
}

func TestDomainStoreTransactorRollsBackOnError(t *testing.T) {
	db, mock, done := newMockDB(t)
	defer done()
	store := NewDomainStore(db)
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO customers").
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return store.CreateCustomer(ctx, &domain.Customer{ID: "cust-1", OwnerID: "user-1", Name: "Jean"})
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	expectationsMet(t, mock)
}
