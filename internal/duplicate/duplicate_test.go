package duplicate_test

import (
	"context"
	"testing"

	"quill/internal/duplicate"
	"quill/internal/knowledge"
	"quill/internal/logging"
	"quill/internal/testsupport"
)

func TestFingerprintStable(t *testing.T) {
	a := duplicate.Fingerprint("Title", "Content")
	b := duplicate.Fingerprint("Title", "Content")
	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}
	if a == duplicate.Fingerprint("Title", "Other") {
		t.Fatal("different content must change the fingerprint")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha-256, got %d chars", len(a))
	}
}

func TestTitleSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "Intro to Go", "Intro to Go", 1.0},
		{"case insensitive", "INTRO TO GO", "intro to go", 1.0},
		{"disjoint", "Intro to Go", "Cooking with Rust", 0.0},
		{"partial", "intro to go channels", "intro to go", 0.75},
		{"empty", "", "intro", 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := duplicate.TitleSimilarity(tc.a, tc.b)
			if got != tc.want {
				t.Fatalf("TitleSimilarity(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestCheckFindsExactCopy(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	original := testsupport.NewItem(t, st, "Go Channels", "channel content", knowledge.SourceText)
	article := &knowledge.Article{
		KnowledgeID: original.ID,
		Title:       "Go Channels",
		Slug:        "go-channels-x",
		Content:     "# Go Channels",
	}
	if err := st.CreateArticle(ctx, article); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	candidate := testsupport.NewItem(t, st, "Go Channels", "channel content", knowledge.SourceText)
	detector := duplicate.NewDetector(st, logging.NewNop())

	match, err := detector.Check(ctx, candidate)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if match == nil || match.ArticleID != article.ID || match.Score != 1.0 {
		t.Fatalf("unexpected match: %#v", match)
	}

	dups, err := st.ListDuplications(ctx, article.ID)
	if err != nil {
		t.Fatalf("ListDuplications failed: %v", err)
	}
	if len(dups) != 1 || dups[0].SimilarityScore != 1.0 {
		t.Fatalf("expected one audit row, got %#v", dups)
	}
}

func TestCheckSimilarTitleBelowThresholdPasses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	original := testsupport.NewItem(t, st, "intro to go", "body one", knowledge.SourceText)
	if err := st.CreateArticle(ctx, &knowledge.Article{
		KnowledgeID: original.ID,
		Title:       "intro to go",
		Slug:        "intro-to-go-x",
		Content:     "# intro",
	}); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	candidate := testsupport.NewItem(t, st, "intro to go channels", "different body", knowledge.SourceText)
	detector := duplicate.NewDetector(st, logging.NewNop())

	// 0.75 overlap is below the 0.8 threshold.
	match, err := detector.Check(ctx, candidate)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if match != nil {
		t.Fatalf("expected no match, got %#v", match)
	}
}

func TestCheckIgnoresOwnArticle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	item := testsupport.NewItem(t, st, "Self", "self content", knowledge.SourceText)
	if err := st.CreateArticle(ctx, &knowledge.Article{
		KnowledgeID: item.ID,
		Title:       "Self",
		Slug:        "self-x",
		Content:     "# Self",
	}); err != nil {
		t.Fatalf("CreateArticle failed: %v", err)
	}

	detector := duplicate.NewDetector(st, logging.NewNop())
	match, err := detector.Check(ctx, item)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if match != nil {
		t.Fatalf("an item must not be a duplicate of itself: %#v", match)
	}
}
