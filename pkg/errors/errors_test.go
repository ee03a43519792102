package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := New(ErrCodeInvalidInput, "bad room code", 400)
	want := "INVALID_INPUT: bad room code"
	if err.Error() != want {
		t.Errorf("Error() = %v, want %v", err.Error(), want)
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("redis gone")
	err := Wrap(cause, ErrCodeServiceUnavailable, "store unreachable", 503)

	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause with errors.Is")
	}
	if !strings.Contains(err.Error(), "redis gone") {
		t.Errorf("Error() should mention the cause, got %v", err.Error())
	}
}

func TestWithContext(t *testing.T) {
	err := NewInvalidInputError("bad field").
		WithContext("field", "room_code").
		WithContext("length", 120)

	if err.Context["field"] != "room_code" {
		t.Errorf("Context[field] = %v, want room_code", err.Context["field"])
	}
	if err.Context["length"] != 120 {
		t.Errorf("Context[length] = %v, want 120", err.Context["length"])
	}
}

func TestConstructors_StatusCodes(t *testing.T) {
	tests := []struct {
		err        *AppError
		wantCode   ErrorCode
		wantStatus int
	}{
		{NewInvalidInputError("x"), ErrCodeInvalidInput, 400},
		{NewUnauthorizedError("x"), ErrCodeUnauthorized, 401},
		{NewNotFoundError("room"), ErrCodeNotFound, 404},
		{NewRateLimitError(), ErrCodeRateLimit, 429},
		{NewInternalError("x"), ErrCodeInternal, 500},
		{NewServiceUnavailableError("x"), ErrCodeServiceUnavailable, 503},
	}
	for _, tt := range tests {
		if tt.err.Code != tt.wantCode {
			t.Errorf("Code = %v, want %v", tt.err.Code, tt.wantCode)
		}
		if tt.err.HTTPStatus != tt.wantStatus {
			t.Errorf("HTTPStatus = %v, want %v", tt.err.HTTPStatus, tt.wantStatus)
		}
	}
}

func TestGetAppError(t *testing.T) {
	appErr := NewInvalidInputError("bad input")

	if got := GetAppError(appErr); got != appErr {
		t.Errorf("GetAppError() = %v, want %v", got, appErr)
	}

	wrapped := fmt.Errorf("handler: %w", appErr)
	if got := GetAppError(wrapped); got != appErr {
		t.Error("GetAppError() should find AppError through fmt wrapping")
	}

	if got := GetAppError(errors.New("plain")); got != nil {
		t.Errorf("GetAppError() = %v for plain error, want nil", got)
	}
}
