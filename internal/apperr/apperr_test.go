package apperr

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("load cart: %w", NotFound("store.GetCartByID", "cart not found"))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrValidation))
	assert.Equal(t, KindNotFound, KindOf(err))
}

func TestStorageUnwrapsCause(t *testing.T) {
	err := Storage("store.InsertBill", sql.ErrConnDone)

	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, errors.Is(err, ErrStorage))
	assert.Equal(t, "internal error", PublicMessage(err))
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "cart missing", PublicMessage(Validation("checkout.CreateBill", "cart missing")))
	assert.Equal(t, "forbidden", PublicMessage(&Error{Kind: KindForbidden, Op: "x"}))
	assert.Equal(t, "internal error", PublicMessage(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:   http.StatusBadRequest,
		KindNotFound:     http.StatusNotFound,
		KindStorage:      http.StatusInternalServerError,
		KindUnauthorized: http.StatusUnauthorized,
		KindForbidden:    http.StatusForbidden,
		KindConflict:     http.StatusConflict,
		KindUnknown:      http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind.String())
	}
}
