package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshsymonds/greenbyte/internal/analyzer"
	"github.com/joshsymonds/greenbyte/internal/carbon"
	"github.com/joshsymonds/greenbyte/internal/gmail"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

func sample() summary.Summary {
	stats := analyzer.Stats{
		TotalEmailsInAccount:       12345,
		EmailsFetched:              500,
		EmailsAnalyzed:             498,
		FailedCount:                2,
		TotalSizeBytes:             100 << 20,
		TotalSizeMB:                100,
		OldEmailsCount:             120,
		LargeAttachmentEmailsCount: 7,
		Note:                       "Analyzed 498 most recent emails. Your account has 12345 total.",
		Failures: []analyzer.Failure{
			{ID: gmail.MessageID("m1"), Reason: "404 not found"},
			{ID: gmail.MessageID("m2"), Reason: "deadline exceeded"},
		},
	}
	return summary.Assemble(stats, carbon.Calculate(stats.TotalSizeMB))
}

func TestPrintHuman(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintHuman(sample(), &buf))
	out := buf.String()

	assert.Contains(t, out, "GREENBYTE analysis complete")
	assert.Contains(t, out, "498 of 500 fetched (12,345 in account)")
	assert.Contains(t, out, "100 MiB")
	assert.Contains(t, out, "24.1%")
	assert.Contains(t, out, "Very Low")
	assert.Contains(t, out, "m1: 404 not found")
	assert.Contains(t, out, "Your account has 12345 total.")
	assert.Contains(t, out, "Formula:")
}

func TestPrintHumanTruncatesFailures(t *testing.T) {
	sum := sample()
	sum.EmailStats.Failures = nil
	for i := 0; i < 8; i++ {
		sum.EmailStats.Failures = append(sum.EmailStats.Failures,
			analyzer.Failure{ID: gmail.MessageID(fmt.Sprintf("f%d", i)), Reason: "boom"})
	}
	var buf bytes.Buffer
	require.NoError(t, PrintHuman(sum, &buf))
	assert.Contains(t, buf.String(), "and 3 more")
	assert.NotContains(t, buf.String(), "f5: boom")
}

func TestWriteJSON(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, WriteJSON(sample(), "out/../summary.json"))

	raw, err := os.ReadFile("summary.json")
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "success", doc["status"])

	info, err := os.Stat("summary.json")
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestWriteJSONRejectsUnsafePaths(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, p := range []string{"", "  ", filepath.Join(string(filepath.Separator), "tmp", "x.json"), "../x.json"} {
		assert.Error(t, WriteJSON(sample(), p), p)
	}
}

func TestPrintEstimate(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintEstimate(carbon.Calculate(100), &buf))
	assert.Contains(t, buf.String(), "100.00 MB")
	assert.Contains(t, buf.String(), "0.000595 kg")
	assert.Contains(t, buf.String(), "Very Low")
}
