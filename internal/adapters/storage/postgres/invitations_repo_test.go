package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"mindcare/internal/domain/invitations"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestInvitationsRepo_MarkUsed_Conditional(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewInvitationsRepo(db)
	usedAt := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	// Caso feliz: el UPDATE condicional afecta una fila.
	mock.ExpectExec("UPDATE invitations").
		WithArgs("tok-1", usedAt, "uid-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.MarkUsed(context.Background(), "tok-1", "uid-1", usedAt); err != nil {
		t.Fatalf("MarkUsed error: %v", err)
	}

	// Token ya consumido: 0 filas y el SELECT de status distingue el caso.
	mock.ExpectExec("UPDATE invitations").
		WithArgs("tok-1", usedAt, "uid-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM invitations").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("used"))

	err = repo.MarkUsed(context.Background(), "tok-1", "uid-2", usedAt)
	if !errors.Is(err, invitations.ErrNotPending) {
		t.Fatalf("expected ErrNotPending, got %v", err)
	}

	// Token inexistente.
	mock.ExpectExec("UPDATE invitations").
		WithArgs("tok-x", usedAt, "uid-3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT status FROM invitations").
		WithArgs("tok-x").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	err = repo.MarkUsed(context.Background(), "tok-x", "uid-3", usedAt)
	if !errors.Is(err, invitations.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInvitationsRepo_Create_TokenCollision(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	repo := NewInvitationsRepo(db)
	now := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)

	inv := invitations.Invitation{
		Token:       "tok-1",
		Source:      invitations.SourceAdmin,
		Role:        "THERAPIST",
		InvitedBy:   "admin-1",
		TargetEmail: "t@clinic.test",
		Status:      invitations.StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(invitations.TTL),
	}

	// ON CONFLICT DO NOTHING: 0 filas afectadas = token ya existente.
	mock.ExpectExec("INSERT INTO invitations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.Create(context.Background(), inv)
	if !errors.Is(err, invitations.ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
