package services_test

import (
	"errors"
	"testing"

	"quill/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("boom")
	err := services.Wrap(services.ErrConfiguration, "notion", "fetch page", "missing token", cause)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatal("marker not preserved")
	}
	if !errors.Is(err, cause) {
		t.Fatal("cause not preserved")
	}
	want := "configuration error: notion: fetch page: missing token: boom"
	if err.Error() != want {
		t.Fatalf("message = %q, want %q", err.Error(), want)
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "llm", "complete", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatal("nil marker must default to transient")
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "a", "b", "", nil), true},
		{"malformed payload", services.Wrap(services.ErrMalformedPayload, "a", "b", "", nil), true},
		{"untagged", errors.New("plain"), true},
		{"configuration", services.Wrap(services.ErrConfiguration, "a", "b", "", nil), false},
		{"validation", services.Wrap(services.ErrValidation, "a", "b", "", nil), false},
		{"not found", services.Wrap(services.ErrNotFound, "a", "b", "", nil), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.Retryable(tc.err); got != tc.want {
				t.Fatalf("Retryable = %v, want %v", got, tc.want)
			}
		})
	}
}
