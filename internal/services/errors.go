package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers used to classify collaborator failures. The generation
// queue is the single place that turns a marker into a retry-or-terminal
// decision; everything below it only tags errors.
var (
	// ErrTransient marks network, rate-limit, and timeout failures that a
	// later attempt may clear.
	ErrTransient = errors.New("transient failure")
	// ErrConfiguration marks missing or rejected credentials and other
	// misconfiguration; retrying cannot help.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation marks inputs that can never succeed as given.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a missing remote or local entity.
	ErrNotFound = errors.New("not found")
	// ErrMalformedPayload marks structured collaborator output that failed
	// to parse. Treated as transient: another sampling may parse cleanly.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrConflict marks a stale remote version identifier during publish.
	ErrConflict = errors.New("version conflict")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether a failed operation should be reattempted.
// Configuration, validation, and not-found failures are terminal; malformed
// payloads and anything transient (including untagged errors) are retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrNotFound):
		return false
	default:
		return true
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
