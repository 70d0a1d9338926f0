package analyzer

import (
	"fmt"
	"math"
	"time"

	"github.com/joshsymonds/greenbyte/internal/gmail"
)

const bytesPerMB = 1024 * 1024

// Stats is the aggregate view of one analysis run.
type Stats struct {
	TotalEmailsInAccount       int64     `json:"total_emails_in_account"`
	EmailsFetched              int       `json:"emails_fetched"`
	EmailsAnalyzed             int       `json:"emails_analyzed"`
	FailedCount                int       `json:"failed_count"`
	TotalSizeBytes             int64     `json:"total_size_bytes"`
	TotalSizeMB                float64   `json:"total_size_mb"`
	OldEmailsCount             int       `json:"old_emails_count"`
	LargeAttachmentEmailsCount int       `json:"large_attachment_emails_count"`
	AnalysisLimit              int       `json:"analysis_limit"`
	Note                       string    `json:"note,omitempty"`
	Failures                   []Failure `json:"failures,omitempty"`
	AnalyzedAt                 time.Time `json:"analyzed_at"`
}

// Failure records why a message was left out of the counters.
type Failure struct {
	ID     gmail.MessageID `json:"id"`
	Reason string          `json:"reason"`
}

// AnalysisError is returned when a list, profile or batch dispatch fails.
type AnalysisError struct {
	Op  string
	Err error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("failed to analyze emails: %s: %v", e.Op, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

type tally struct {
	analyzed  int
	sizeBytes int64
	old       int
	large     int
	failures  []Failure
}

// fold reduces batch results into counters. Only sums and increments are
// involved, so the outcome does not depend on batch completion order. ids is
// the requested order; a requested id without a result counts as a failure.
func fold(ids []gmail.MessageID, batches [][]gmail.MetadataResult, cutoff time.Time, largeBytes int64) tally {
	byID := make(map[gmail.MessageID]gmail.MetadataResult, len(ids))
	for _, batch := range batches {
		for _, r := range batch {
			byID[r.ID] = r
		}
	}

	var t tally
	for _, id := range ids {
		r, ok := byID[id]
		switch {
		case !ok:
			t.failures = append(t.failures, Failure{ID: id, Reason: "no result returned"})
			continue
		case r.Err != nil:
			t.failures = append(t.failures, Failure{ID: id, Reason: r.Err.Error()})
			continue
		case r.Meta.SizeEstimate < 0:
			t.failures = append(t.failures, Failure{
				ID:     id,
				Reason: fmt.Sprintf("invalid size estimate %d", r.Meta.SizeEstimate),
			})
			continue
		}
		t.analyzed++
		t.sizeBytes += r.Meta.SizeEstimate
		if r.Meta.SizeEstimate >= largeBytes {
			t.large++
		}
		if r.Meta.Received().Before(cutoff) {
			t.old++
		}
	}
	return t
}

func bytesToMB(b int64) float64 {
	return math.Round(float64(b)/bytesPerMB*100) / 100
}
