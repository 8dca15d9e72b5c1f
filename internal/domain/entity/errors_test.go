package entity

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		CodeInvalidRequest:    http.StatusBadRequest,
		CodeInvalidImage:      http.StatusBadRequest,
		CodeDegenerateVector:  http.StatusBadRequest,
		CodeImageTooLarge:     http.StatusRequestEntityTooLarge,
		CodeDimensionMismatch: http.StatusInternalServerError,
		CodeExtraction:        http.StatusInternalServerError,
		CodeTimeout:           http.StatusGatewayTimeout,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, status := range cases {
		require.Equal(t, status, code.HTTPStatus(), code)
	}
}

func TestComparisonError_IsByCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", ImageTooLarge("image1 exceeds %d bytes", 10))
	require.True(t, errors.Is(err, ErrImageTooLarge))
	require.False(t, errors.Is(err, ErrInvalidImage))
}

func TestAsComparisonError(t *testing.T) {
	require.Nil(t, AsComparisonError(nil))

	ce := AsComparisonError(errors.New("boom"))
	require.Equal(t, CodeInternal, ce.Code)
	require.NotContains(t, ce.Message, "boom")

	orig := InvalidImage(nil, "cannot decode image")
	require.Same(t, orig, AsComparisonError(fmt.Errorf("ctx: %w", orig)))
}
