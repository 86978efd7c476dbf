package knowledge_test

import (
	"testing"

	"quill/internal/knowledge"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		name string
		from knowledge.Status
		to   knowledge.Status
		want bool
	}{
		{"forward one stage", knowledge.StatusDraft, knowledge.StatusNotionReferenced, true},
		{"draft skips referenced", knowledge.StatusDraft, knowledge.StatusContentAnalyzed, true},
		{"no stage skipping", knowledge.StatusNotionReferenced, knowledge.StatusArticleGenerated, false},
		{"no going backward", knowledge.StatusArticleGenerated, knowledge.StatusContentAnalyzed, false},
		{"error reachable mid-pipeline", knowledge.StatusContentAnalyzed, knowledge.StatusError, true},
		{"published never errors", knowledge.StatusArticlePublished, knowledge.StatusError, false},
		{"error is sticky", knowledge.StatusError, knowledge.StatusDraft, false},
		{"unknown status", knowledge.Status("bogus"), knowledge.StatusDraft, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := knowledge.CanTransition(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := knowledge.ParseStatus("  Article_Published "); !ok || status != knowledge.StatusArticlePublished {
		t.Fatalf("ParseStatus normalized = %s, %v", status, ok)
	}
	if _, ok := knowledge.ParseStatus("published"); ok {
		t.Fatal("ParseStatus accepted an unknown value")
	}
}

func TestNextStatus(t *testing.T) {
	if next := knowledge.NextStatus(knowledge.StatusContentAnalyzed); next != knowledge.StatusArticleGenerated {
		t.Fatalf("NextStatus = %s", next)
	}
	if next := knowledge.NextStatus(knowledge.StatusArticlePublished); next != "" {
		t.Fatalf("terminal NextStatus = %s", next)
	}
	if next := knowledge.NextStatus(knowledge.StatusError); next != "" {
		t.Fatalf("error NextStatus = %s", next)
	}
}

func TestSyncFrequencyInterval(t *testing.T) {
	if got := knowledge.SyncHourly.Interval().Hours(); got != 1 {
		t.Fatalf("hourly = %v hours", got)
	}
	if got := knowledge.SyncWeekly.Interval().Hours(); got != 7*24 {
		t.Fatalf("weekly = %v hours", got)
	}
	if got := knowledge.SyncFrequency("unknown").Interval().Hours(); got != 24 {
		t.Fatalf("fallback = %v hours", got)
	}
}

func TestTruncatePreview(t *testing.T) {
	short := "short value"
	if got := knowledge.TruncatePreview(short); got != short {
		t.Fatalf("short preview changed: %q", got)
	}
	long := make([]rune, 150)
	for i := range long {
		long[i] = 'x'
	}
	got := knowledge.TruncatePreview(string(long))
	if len([]rune(got)) != 103 {
		t.Fatalf("long preview length = %d", len([]rune(got)))
	}
}
