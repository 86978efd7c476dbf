package backoff_test

import (
	"testing"
	"time"

	"quill/internal/backoff"
)

func TestDelayDoublesAndCaps(t *testing.T) {
	policy := backoff.Policy{Base: time.Second, Cap: 10 * time.Second}
	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 10 * time.Second},
		{20, 10 * time.Second},
		{-1, time.Second},
	}
	for _, tc := range cases {
		if got := policy.Delay(tc.attempt); got != tc.want {
			t.Fatalf("Delay(%d) = %s, want %s", tc.attempt, got, tc.want)
		}
	}
}

func TestDelayZeroBase(t *testing.T) {
	if got := (backoff.Policy{}).Delay(5); got != 0 {
		t.Fatalf("zero policy Delay = %s", got)
	}
}

func TestQueueRetrySchedule(t *testing.T) {
	// First retry after one failure waits two minutes.
	if got := backoff.QueueRetry.Delay(1); got != 2*time.Minute {
		t.Fatalf("first queue retry = %s", got)
	}
	if got := backoff.QueueRetry.Delay(10); got != 60*time.Minute {
		t.Fatalf("capped queue retry = %s", got)
	}
}
