package postgres

import (
	"context"
	"testing"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimColumns() []string {
	return []string{"key", "status", "transaction_id", "result_json", "claimed_at", "completed_at"}
}

func TestIdempotencyRepo_Claim_FirstCallerAdmitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC()
	key := "deposit:ref_abc"

	mock.ExpectQuery("INSERT INTO idempotency_claims").
		WithArgs(key, domain.ClaimStatusAdmitted, now, now.Add(-domain.ClaimLease)).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(key))

	admitted, existing, err := repo.Claim(context.Background(), key, now)
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Nil(t, existing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Claim_ConflictReturnsExisting(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC()
	key := "deposit:ref_abc"
	txnID := uuid.New()
	completedAt := now.Add(-time.Minute)

	// Live claim: the insert matches no rows, then the existing row is read.
	mock.ExpectQuery("INSERT INTO idempotency_claims").
		WithArgs(key, domain.ClaimStatusAdmitted, now, now.Add(-domain.ClaimLease)).
		WillReturnRows(pgxmock.NewRows([]string{"key"}))
	mock.ExpectQuery("SELECT .+ FROM idempotency_claims WHERE key").
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows(claimColumns()).AddRow(
			key, domain.ClaimStatusCompleted, &txnID, []byte(`{"status":"success"}`),
			now.Add(-2*time.Minute), &completedAt,
		))

	admitted, existing, err := repo.Claim(context.Background(), key, now)
	require.NoError(t, err)
	assert.False(t, admitted)
	require.NotNil(t, existing)
	assert.Equal(t, domain.ClaimStatusCompleted, existing.Status)
	assert.JSONEq(t, `{"status":"success"}`, string(existing.ResultJSON))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Claim_StaleLeaseTakenOver(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC()
	key := "transfer:idem-9"

	// The ON CONFLICT branch updates the stale admitted row, so the
	// statement still returns the key and the caller wins the claim.
	mock.ExpectQuery("INSERT INTO idempotency_claims").
		WithArgs(key, domain.ClaimStatusAdmitted, now, now.Add(-domain.ClaimLease)).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow(key))

	admitted, existing, err := repo.Claim(context.Background(), key, now)
	require.NoError(t, err)
	assert.True(t, admitted)
	assert.Nil(t, existing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Complete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	key := "deposit:ref_abc"
	txnID := uuid.New()
	result := []byte(`{"status":"success"}`)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE idempotency_claims").
		WithArgs(domain.ClaimStatusCompleted, txnID, result, key).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Complete(context.Background(), tx, key, txnID, result)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Complete_MissingClaim(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	txnID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE idempotency_claims").
		WithArgs(domain.ClaimStatusCompleted, txnID, []byte(`{}`), "deposit:gone").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Complete(context.Background(), tx, "deposit:gone", txnID, []byte(`{}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Release_OnlyDeletesAdmitted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	key := "transfer:idem-9"

	mock.ExpectExec("DELETE FROM idempotency_claims").
		WithArgs(key, domain.ClaimStatusAdmitted).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = repo.Release(context.Background(), key)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM idempotency_claims WHERE key").
		WithArgs("deposit:unknown").
		WillReturnRows(pgxmock.NewRows(claimColumns()))

	claim, err := repo.Get(context.Background(), "deposit:unknown")
	require.NoError(t, err)
	assert.Nil(t, claim)
	assert.NoError(t, mock.ExpectationsWereMet())
}
