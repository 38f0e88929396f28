// Package feedback provides the domain model for outcome mining: issue
// buckets keyed by language pair and domain, and the improvement signals
// emitted when a bucket shows a recurring pattern.
package feedback

import (
	"sort"
	"time"
)

// BucketKey groups issues by where they recur.
type BucketKey struct {
	SourceLang string `json:"source_lang"`
	TargetLang string `json:"target_lang"`
	Domain     string `json:"domain"`
}

// Bucket accumulates reviewer-reported issues for one key. Counts per
// issue text feed the top-issue list of an improvement signal.
type Bucket struct {
	Key       BucketKey      `json:"key"`
	Total     int            `json:"total"`
	ByIssue   map[string]int `json:"by_issue,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Add records n occurrences of an issue and returns the new total.
func (b *Bucket) Add(issue string, n int, now time.Time) int {
	if b.ByIssue == nil {
		b.ByIssue = make(map[string]int)
	}
	b.ByIssue[issue] += n
	b.Total += n
	b.UpdatedAt = now
	return b.Total
}

// TopIssues returns up to limit issue texts ordered by descending count.
func (b *Bucket) TopIssues(limit int) []string {
	type kv struct {
		issue string
		count int
	}
	pairs := make([]kv, 0, len(b.ByIssue))
	for issue, count := range b.ByIssue {
		pairs = append(pairs, kv{issue, count})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].count != pairs[j].count {
			return pairs[i].count > pairs[j].count
		}
		return pairs[i].issue < pairs[j].issue
	})
	if limit > len(pairs) {
		limit = len(pairs)
	}
	out := make([]string, 0, limit)
	for _, p := range pairs[:limit] {
		out = append(out, p.issue)
	}
	return out
}

// Reset clears the bucket after a signal fires so the next signal needs a
// fresh run of recurrences.
func (b *Bucket) Reset() {
	b.Total = 0
	b.ByIssue = nil
}
