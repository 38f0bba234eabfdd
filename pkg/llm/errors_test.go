package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyError_Auth(t *testing.T) {
	cases := []string{
		"401 Unauthorized",
		"invalid api key provided",
		"request failed: unauthorized",
	}
	for _, msg := range cases {
		e := ClassifyError(errors.New(msg))
		if e.Type != ErrorTypeAuth {
			t.Errorf("%q: expected auth, got %v", msg, e.Type)
		}
		if e.Retryable {
			t.Errorf("%q: auth errors must not be retryable", msg)
		}
	}
}

func TestClassifyError_ModelNotFound(t *testing.T) {
	e := ClassifyError(errors.New(`model "qwen3-72b" not found`))
	if e.Type != ErrorTypeModel {
		t.Errorf("expected model type, got %v", e.Type)
	}
	if e.Retryable {
		t.Error("model errors must not be retryable")
	}
}

func TestClassifyError_EndpointNotFound(t *testing.T) {
	e := ClassifyError(errors.New("404 page not found"))
	if e.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint type, got %v", e.Type)
	}
	if e.Retryable {
		t.Error("404 must not be retryable")
	}
	if e.StatusCode != 404 {
		t.Errorf("expected status 404, got %d", e.StatusCode)
	}
}

func TestClassifyError_ConnectionRefused(t *testing.T) {
	e := ClassifyError(errors.New("dial tcp 127.0.0.1:8000: connection refused"))
	if e.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint type, got %v", e.Type)
	}
	if !e.Retryable {
		t.Error("connection refused should be retryable")
	}
}

func TestClassifyError_ContextCanceled(t *testing.T) {
	e := ClassifyError(fmt.Errorf("request failed: %w", context.Canceled))
	if e.Retryable {
		t.Error("a canceled request must not be retried")
	}
	if !strings.Contains(e.Message, "canceled") {
		t.Errorf("unexpected message: %q", e.Message)
	}
}

func TestClassifyError_Timeout(t *testing.T) {
	cases := []string{
		"request timeout after 30s",
		"context deadline exceeded",
	}
	for _, msg := range cases {
		e := ClassifyError(errors.New(msg))
		if e.Type != ErrorTypeEndpoint {
			t.Errorf("%q: expected endpoint type, got %v", msg, e.Type)
		}
		if !e.Retryable {
			t.Errorf("%q: timeouts should be retryable", msg)
		}
	}
}

func TestClassifyError_RateLimit(t *testing.T) {
	cases := []string{
		"429 Too Many Requests",
		"rate limit exceeded, retry after 20s",
	}
	for _, msg := range cases {
		e := ClassifyError(errors.New(msg))
		if e.Type != ErrorTypeRateLimit {
			t.Errorf("%q: expected rate_limit type, got %v", msg, e.Type)
		}
		if !e.Retryable {
			t.Errorf("%q: rate limits should be retryable", msg)
		}
	}
}

func TestClassifyError_ServerError(t *testing.T) {
	e := ClassifyError(errors.New("503 Service Unavailable"))
	if e.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint type, got %v", e.Type)
	}
	if !e.Retryable {
		t.Error("5xx should be retryable")
	}
	if e.StatusCode != 503 {
		t.Errorf("expected status 503, got %d", e.StatusCode)
	}
}

func TestClassifyError_GPUFault(t *testing.T) {
	e := ClassifyError(errors.New("CUDA error: out of memory"))
	if e.Type != ErrorTypeEndpoint {
		t.Errorf("expected endpoint type, got %v", e.Type)
	}
	if !e.Retryable {
		t.Error("backend compute faults should be retryable")
	}
}

func TestClassifyError_Unknown(t *testing.T) {
	e := ClassifyError(errors.New("something inexplicable"))
	if e.Type != ErrorTypeUnknown {
		t.Errorf("expected unknown type, got %v", e.Type)
	}
	if e.Retryable {
		t.Error("unknown errors must not be retryable")
	}
}

func TestClassifyError_PassesThroughClassified(t *testing.T) {
	orig := NewError(ErrorTypeModel, "model not found", false, nil)
	wrapped := fmt.Errorf("propose intent: %w", orig)

	e := ClassifyError(wrapped)
	if e != orig {
		t.Error("expected the already-classified error back")
	}
}

func TestClassifyError_Nil(t *testing.T) {
	if e := ClassifyError(nil); e != nil {
		t.Errorf("expected nil, got %v", e)
	}
}

func TestError_Message(t *testing.T) {
	e := NewError(ErrorTypeAuth, "authentication failed", false, errors.New("401 status"))
	e.StatusCode = 401
	e.Model = "gpt-4o"

	msg := e.Error()
	for _, want := range []string{"auth", "HTTP 401", "model=gpt-4o", "authentication failed", "401 status"} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	e := NewError(ErrorTypeEndpoint, "connection failed", true, cause)

	if !errors.Is(e, cause) {
		t.Error("expected errors.Is to find the cause")
	}
}

func TestIsRetryable_ErrorValues(t *testing.T) {
	if !IsRetryable(NewError(ErrorTypeEndpoint, "connection failed", true, nil)) {
		t.Error("expected retryable")
	}
	if IsRetryable(NewError(ErrorTypeAuth, "authentication failed", false, nil)) {
		t.Error("expected not retryable")
	}
	if IsRetryable(errors.New("plain error")) {
		t.Error("unclassified errors are not retryable")
	}
}

func TestGetErrorType(t *testing.T) {
	e := NewError(ErrorTypeRateLimit, "rate limited", true, nil)
	if got := GetErrorType(fmt.Errorf("wrapped: %w", e)); got != ErrorTypeRateLimit {
		t.Errorf("expected rate_limit, got %v", got)
	}
	if got := GetErrorType(errors.New("plain")); got != ErrorTypeUnknown {
		t.Errorf("expected unknown, got %v", got)
	}
}
