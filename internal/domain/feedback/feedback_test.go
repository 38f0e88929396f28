package feedback

import (
	"testing"
	"time"
)

func TestBucketAddAndTopIssues(t *testing.T) {
	now := time.Now()
	b := &Bucket{Key: BucketKey{SourceLang: "en", TargetLang: "es", Domain: "medications"}}

	b.Add("missing dosage frequency", 3, now)
	b.Add("literal idiom translation", 1, now)
	b.Add("wrong unit", 2, now)

	if b.Total != 6 {
		t.Fatalf("Total = %d, want 6", b.Total)
	}

	top := b.TopIssues(2)
	want := []string{"missing dosage frequency", "wrong unit"}
	if len(top) != 2 || top[0] != want[0] || top[1] != want[1] {
		t.Errorf("TopIssues(2) = %v, want %v", top, want)
	}

	// Ties order alphabetically so the output is stable.
	b.Add("literal idiom translation", 1, now)
	top = b.TopIssues(3)
	if top[1] != "literal idiom translation" {
		t.Errorf("tie-broken TopIssues = %v", top)
	}
}

func TestBucketReset(t *testing.T) {
	b := &Bucket{}
	b.Add("x", 5, time.Now())
	b.Reset()
	if b.Total != 0 || len(b.ByIssue) != 0 {
		t.Errorf("Reset left state behind: total=%d issues=%d", b.Total, len(b.ByIssue))
	}
}
