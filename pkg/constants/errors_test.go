package constants

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{fmt.Errorf("get x: %w", ErrNotFound), 404},
		{ErrSchemaNotFound, 404},
		{Validationf("schema is required"), 400},
		{ErrConflict, 409},
		{ErrIndexMissing, 424},
		{ErrUnavailable, 503},
		{errors.Join(ErrPartialBulk, ErrConflict), 207},
		{errors.New("boom"), 500},
		{&Error{Code: 418, Message: "teapot"}, 418},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, Code(tt.err), "%v", tt.err)
	}
}

func TestWrap(t *testing.T) {
	assert.NoError(t, Wrap(nil))

	err := Wrap(fmt.Errorf("insert a: %w", ErrConflict))
	var structured *Error
	assert.True(t, errors.As(err, &structured))
	assert.Equal(t, 409, structured.Code)
	assert.Equal(t, "insert a: document update conflict", structured.Message)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Same(t, err, Wrap(err))
}
