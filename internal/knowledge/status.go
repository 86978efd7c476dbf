package knowledge

import "strings"

// Status represents the lifecycle of a knowledge item.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusNotionReferenced Status = "notion_referenced"
	StatusContentAnalyzed  Status = "content_analyzed"
	StatusArticleGenerated Status = "article_generated"
	StatusArticlePublished Status = "article_published"
	StatusError            Status = "error"
)

var allStatuses = []Status{
	StatusDraft,
	StatusNotionReferenced,
	StatusContentAnalyzed,
	StatusArticleGenerated,
	StatusArticlePublished,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// stageOrder positions each pipeline stage; transitions only move forward
// one stage at a time. StatusError sits outside the ordering.
var stageOrder = map[Status]int{
	StatusDraft:            0,
	StatusNotionReferenced: 1,
	StatusContentAnalyzed:  2,
	StatusArticleGenerated: 3,
	StatusArticlePublished: 4,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status ends the pipeline for an item.
func IsTerminal(status Status) bool {
	return status == StatusArticlePublished
}

// CanTransition reports whether moving from one status to another respects
// the pipeline ordering. Error is reachable from any non-terminal state;
// leaving error requires an explicit reset (see ResetFromError).
func CanTransition(from, to Status) bool {
	if _, ok := statusSet[from]; !ok {
		return false
	}
	if _, ok := statusSet[to]; !ok {
		return false
	}
	if to == StatusError {
		return from != StatusArticlePublished && from != StatusError
	}
	if from == StatusError {
		return false
	}
	// Draft items without a Notion source skip the referenced stage.
	if from == StatusDraft && to == StatusContentAnalyzed {
		return true
	}
	return stageOrder[to] == stageOrder[from]+1
}

// NextStatus returns the stage that follows the given status, or "" when the
// status is terminal or outside the forward ordering.
func NextStatus(status Status) Status {
	order, ok := stageOrder[status]
	if !ok {
		return ""
	}
	for _, candidate := range allStatuses {
		if stageOrder[candidate] == order+1 {
			return candidate
		}
	}
	return ""
}
