package postgres

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"gearledger/internal/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", &pq.Error{Code: "23505"}, domain.ErrConflict},
		{"exclusion violation", &pq.Error{Code: "23P01"}, domain.ErrConflict},
		{"foreign key violation", &pq.Error{Code: "23503"}, domain.ErrNotFound},
		{"check violation", &pq.Error{Code: "23514"}, domain.ErrValidation},
		{"serialization failure", &pq.Error{Code: "40001"}, domain.ErrStoreUnavailable},
		{"deadlock", &pq.Error{Code: "40P01"}, domain.ErrStoreUnavailable},
		{"connection failure", &pq.Error{Code: "08006"}, domain.ErrStoreUnavailable},
		{"no rows", sql.ErrNoRows, domain.ErrNotFound},
		{"conn done", sql.ErrConnDone, domain.ErrStoreUnavailable},
		{"unknown", errors.New("broken pipe"), domain.ErrStoreUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.want)
		})
	}

	assert.NoError(t, classify(nil))
}

func TestBreaker_ignoresDomainErrors(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.FailureThreshold = 1
	b := newBreaker(cfg, discardLogger(), nil)

	for range 5 {
		_, err := b.Execute(func() (any, error) { return nil, domain.ErrConflict })
		assert.ErrorIs(t, err, domain.ErrConflict)
	}
	assert.Equal(t, "closed", b.State().String())

	_, _ = b.Execute(func() (any, error) { return nil, domain.ErrStoreUnavailable })
	assert.Equal(t, "open", b.State().String())
}
