package database

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ErrorClassPermanent},
		{"serialization", &pq.Error{Code: "40001"}, ErrorClassSerialization},
		{"deadlock", fmt.Errorf("wrapped: %w", &pq.Error{Code: "40P01"}), ErrorClassDeadlock},
		{"lock not available", &pq.Error{Code: "55P03"}, ErrorClassTransient},
		{"unique", &pq.Error{Code: "23505"}, ErrorClassPermanent},
		{"no rows", sql.ErrNoRows, ErrorClassPermanent},
		{"plain", errors.New("boom"), ErrorClassPermanent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(&pq.Error{Code: "40001"}))
	assert.False(t, IsRetryable(&pq.Error{Code: "23514"}))
}

func TestConstraintHelpers(t *testing.T) {
	unique := &pq.Error{Code: "23505", Constraint: "carts_user_id_key"}

	assert.True(t, IsUniqueViolation(unique, ""))
	assert.True(t, IsUniqueViolation(unique, "carts_user_id_key"))
	assert.False(t, IsUniqueViolation(unique, "bills_code_key"))
	assert.True(t, IsForeignKeyViolation(&pq.Error{Code: "23503"}))
	assert.True(t, IsCheckViolation(fmt.Errorf("x: %w", &pq.Error{Code: "23514"})))
	assert.False(t, IsCheckViolation(errors.New("boom")))
	assert.True(t, IsOutOfRange(fmt.Errorf("x: %w", &pq.Error{Code: "22003"})))
	assert.False(t, IsOutOfRange(&pq.Error{Code: "23514"}))
}
