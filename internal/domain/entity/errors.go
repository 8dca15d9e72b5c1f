package entity

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode стабильный машиночитаемый код ошибки сравнения
type ErrorCode string

const (
	CodeInvalidRequest    ErrorCode = "INVALID_REQUEST"
	CodeInvalidImage      ErrorCode = "INVALID_IMAGE"
	CodeImageTooLarge     ErrorCode = "IMAGE_TOO_LARGE"
	CodeDimensionMismatch ErrorCode = "DIMENSION_MISMATCH"
	CodeDegenerateVector  ErrorCode = "DEGENERATE_VECTOR"
	CodeExtraction        ErrorCode = "EXTRACTION_FAILED"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeInternal          ErrorCode = "INTERNAL"
)

// ComparisonError ошибка конвейера сравнения.
// Message показывается клиенту, Err остаётся только для логов.
type ComparisonError struct {
	Code    ErrorCode
	Message string
	Stage   Stage
	Err     error
}

func (e *ComparisonError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ComparisonError) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по коду, чтобы работал errors.Is(err, entity.ErrTimeout).
func (e *ComparisonError) Is(target error) bool {
	t, ok := target.(*ComparisonError)
	return ok && t.Code == e.Code
}

// HTTPStatus возвращает HTTP-статус для класса ошибки
func (e *ComparisonError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// HTTPStatus возвращает HTTP-статус для кода
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case CodeInvalidRequest, CodeInvalidImage, CodeDegenerateVector:
		return http.StatusBadRequest
	case CodeImageTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Эталоны для errors.Is.
var (
	ErrInvalidRequest    = &ComparisonError{Code: CodeInvalidRequest, Message: "invalid request"}
	ErrInvalidImage      = &ComparisonError{Code: CodeInvalidImage, Message: "invalid image"}
	ErrImageTooLarge     = &ComparisonError{Code: CodeImageTooLarge, Message: "image is too large"}
	ErrDimensionMismatch = &ComparisonError{Code: CodeDimensionMismatch, Message: "image dimensions do not match"}
	ErrDegenerateVector  = &ComparisonError{Code: CodeDegenerateVector, Message: "image has no usable features"}
	ErrExtraction        = &ComparisonError{Code: CodeExtraction, Message: "feature extraction failed"}
	ErrTimeout           = &ComparisonError{Code: CodeTimeout, Message: "comparison timed out"}
	ErrInternal          = &ComparisonError{Code: CodeInternal, Message: "internal error"}
)

func newError(code ErrorCode, err error, format string, args ...any) *ComparisonError {
	return &ComparisonError{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

func InvalidRequest(format string, args ...any) *ComparisonError {
	return newError(CodeInvalidRequest, nil, format, args...)
}

func InvalidImage(err error, format string, args ...any) *ComparisonError {
	return newError(CodeInvalidImage, err, format, args...)
}

func ImageTooLarge(format string, args ...any) *ComparisonError {
	return newError(CodeImageTooLarge, nil, format, args...)
}

func DimensionMismatch(format string, args ...any) *ComparisonError {
	return newError(CodeDimensionMismatch, nil, format, args...)
}

func DegenerateVector(format string, args ...any) *ComparisonError {
	return newError(CodeDegenerateVector, nil, format, args...)
}

func ExtractionFailed(err error, format string, args ...any) *ComparisonError {
	return newError(CodeExtraction, err, format, args...)
}

func Timeout(err error) *ComparisonError {
	return newError(CodeTimeout, err, "comparison did not finish in time")
}

func Internal(err error) *ComparisonError {
	return newError(CodeInternal, err, "internal error during processing")
}

// AsComparisonError приводит любую ошибку к ComparisonError.
// Неизвестные ошибки становятся INTERNAL.
func AsComparisonError(err error) *ComparisonError {
	if err == nil {
		return nil
	}
	var ce *ComparisonError
	if errors.As(err, &ce) {
		return ce
	}
	return Internal(err)
}
