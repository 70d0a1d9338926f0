// Package report renders a mailbox summary for terminals and files.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/joshsymonds/greenbyte/internal/carbon"
	"github.com/joshsymonds/greenbyte/internal/summary"
)

const maxListedFailures = 5

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4ade80"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(26)
	noteStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("244"))

	tierColors = map[carbon.Tier]lipgloss.Color{
		carbon.TierVeryLow:  lipgloss.Color("#4ade80"),
		carbon.TierLow:      lipgloss.Color("#a3e635"),
		carbon.TierModerate: lipgloss.Color("#facc15"),
		carbon.TierHigh:     lipgloss.Color("#f87171"),
	}
)

// PrintHuman writes a styled summary to w (stdout when nil).
func PrintHuman(sum summary.Summary, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	st := sum.EmailStats
	cf := sum.CarbonFootprint

	var b strings.Builder
	b.WriteString(titleStyle.Render(sum.Message))
	b.WriteString("\n\n")
	row(&b, "Emails analyzed", fmt.Sprintf("%s of %s fetched (%s in account)",
		humanize.Comma(int64(st.EmailsAnalyzed)),
		humanize.Comma(int64(st.EmailsFetched)),
		humanize.Comma(st.TotalEmailsInAccount)))
	row(&b, "Storage", fmt.Sprintf("%s (%.2f MB)", humanize.IBytes(uint64(max(st.TotalSizeBytes, 0))), st.TotalSizeMB))
	row(&b, "Older than a year", fmt.Sprintf("%s (%.1f%%)", humanize.Comma(int64(st.OldEmailsCount)), st.OldEmailPercentage))
	row(&b, "Large attachments", humanize.Comma(int64(st.LargeAttachmentEmailsCount)))
	if st.FailedCount > 0 {
		row(&b, "Failed", humanize.Comma(int64(st.FailedCount)))
	}

	b.WriteString("\n")
	severity := lipgloss.NewStyle().Bold(true).Foreground(tierColors[cf.Severity]).Render(cf.Severity.String())
	row(&b, "Annual CO2", fmt.Sprintf("%g kg (%g g)  %s", cf.AnnualCO2Kg, cf.AnnualCO2Grams, severity))
	row(&b, "Car miles equivalent", fmt.Sprintf("%g", cf.Comparisons.EquivalentCarMiles))
	row(&b, "Trees to offset", fmt.Sprintf("%g", cf.Comparisons.TreesNeededToOffset))
	row(&b, "Saved by 30% cleanup", fmt.Sprintf("%g kg", cf.Savings.IfDeleted30PercentKg))
	fmt.Fprintf(&b, "\n%s\n", cf.Tip)

	if len(st.Failures) > 0 {
		b.WriteString("\nFailures:\n")
		for i, f := range st.Failures {
			if i == maxListedFailures {
				fmt.Fprintf(&b, "  … and %d more\n", len(st.Failures)-maxListedFailures)
				break
			}
			fmt.Fprintf(&b, "  %s: %s\n", f.ID, f.Reason)
		}
	}
	if st.Note != "" {
		fmt.Fprintf(&b, "\n%s\n", noteStyle.Render(st.Note))
	}
	fmt.Fprintf(&b, "%s\n", noteStyle.Render(cf.FormulaNote))

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write human report: %w", err)
	}
	return nil
}

// PrintEstimate writes a standalone carbon estimate to w.
func PrintEstimate(est carbon.Estimate, w io.Writer) error {
	if w == nil {
		w = os.Stdout
	}
	var b strings.Builder
	severity := lipgloss.NewStyle().Bold(true).Foreground(tierColors[est.Severity]).Render(est.Severity.String())
	row(&b, "Storage", fmt.Sprintf("%.2f MB", est.TotalStorageMB))
	row(&b, "Annual CO2", fmt.Sprintf("%g kg (%g g)  %s", est.AnnualCO2Kg, est.AnnualCO2Grams, severity))
	row(&b, "Car miles equivalent", fmt.Sprintf("%g", est.Comparisons.EquivalentCarMiles))
	row(&b, "Trees to offset", fmt.Sprintf("%g", est.Comparisons.TreesNeededToOffset))
	row(&b, "Saved by 30% cleanup", fmt.Sprintf("%g kg", est.Savings.IfDeleted30PercentKg))
	fmt.Fprintf(&b, "\n%s\n%s\n", est.Tip, noteStyle.Render(est.FormulaNote))
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write estimate: %w", err)
	}
	return nil
}

func row(b *strings.Builder, label, value string) {
	fmt.Fprintf(b, "%s %s\n", labelStyle.Render(label), value)
}

// WriteJSON serializes the summary to a path relative to the working
// directory.
func WriteJSON(sum summary.Summary, path string) error {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return fmt.Errorf("path must not be empty")
	}
	clean = filepath.Clean(clean)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output path must be relative, got %s", clean)
	}
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path %s escapes working directory", clean)
	}
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determine working directory: %w", err)
	}
	abs := filepath.Join(wd, clean)
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("create %s: %w", abs, err)
	}
	defer func() { _ = f.Close() }()
	if err := Encode(sum, f); err != nil {
		return err
	}
	return nil
}

// Encode writes sum as indented JSON.
func Encode(sum summary.Summary, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sum); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}
