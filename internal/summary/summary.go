package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/joshsymonds/greenbyte/internal/analyzer"
	"github.com/joshsymonds/greenbyte/internal/carbon"
	"github.com/joshsymonds/greenbyte/internal/credstore"
	"github.com/joshsymonds/greenbyte/internal/gmail"
	"github.com/joshsymonds/greenbyte/internal/rate"
	"github.com/joshsymonds/greenbyte/internal/runtime"
)

const completeMessage = "GREENBYTE analysis complete"

// EmailStats is analyzer.Stats plus the derived old-mail share.
type EmailStats struct {
	analyzer.Stats
	OldEmailPercentage float64 `json:"old_email_percentage"`
}

// Summary is the payload returned to the front-end.
type Summary struct {
	Status          string          `json:"status"`
	EmailStats      EmailStats      `json:"email_stats"`
	CarbonFootprint carbon.Estimate `json:"carbon_footprint"`
	Message         string          `json:"message"`
}

// Assemble composes stats and estimate into one Summary.
func Assemble(stats analyzer.Stats, est carbon.Estimate) Summary {
	return Summary{
		Status: "success",
		EmailStats: EmailStats{
			Stats:              stats,
			OldEmailPercentage: oldPercentage(stats.OldEmailsCount, stats.EmailsAnalyzed),
		},
		CarbonFootprint: est,
		Message:         completeMessage,
	}
}

func oldPercentage(old, analyzed int) float64 {
	if analyzed == 0 {
		return 0
	}
	return math.Round(float64(old)/float64(analyzed)*100*10) / 10
}

// CredentialSource yields credentials that are valid right now.
type CredentialSource interface {
	Valid(ctx context.Context, account string) (credstore.Credentials, error)
}

// Recorder receives one observation per pipeline run.
type Recorder interface {
	ObserveAnalysis(outcome string, d time.Duration)
}

// Pipeline wires credentials, client construction, aggregation and the
// carbon estimate into a single call.
type Pipeline struct {
	Credentials CredentialSource
	Factory     runtime.Factory
	Limiter     rate.Limiter
	Options     analyzer.Options
	Logger      *slog.Logger
	Observer    analyzer.Observer
	Recorder    Recorder
	Clock       func() time.Time
}

func NewPipeline(creds CredentialSource, factory runtime.Factory, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Pipeline{
		Credentials: creds,
		Factory:     factory,
		Options:     analyzer.DefaultOptions(),
		Logger:      logger,
		Clock:       time.Now,
	}
}

// Run produces the summary for account. Errors keep their type:
// credstore.ErrNotAuthenticated, *credstore.ReauthRequiredError,
// *runtime.ClientBuildError or *analyzer.AnalysisError.
func (p *Pipeline) Run(ctx context.Context, account string) (Summary, error) {
	start := p.Clock()
	creds, err := p.Credentials.Valid(ctx, account)
	if err != nil {
		p.record(outcomeFor(err), start)
		return Summary{}, err
	}
	client, err := p.Factory.Build(ctx, creds)
	if err != nil {
		var buildErr *runtime.ClientBuildError
		if !errors.As(err, &buildErr) {
			err = &runtime.ClientBuildError{Err: err}
		}
		p.record(outcomeFor(err), start)
		return Summary{}, err
	}
	sum, err := p.analyze(ctx, client)
	p.record(outcomeFor(err), start)
	return sum, err
}

// RunWithClient skips credential handling and analyzes through client.
func (p *Pipeline) RunWithClient(ctx context.Context, client gmail.Client) (Summary, error) {
	start := p.Clock()
	sum, err := p.analyze(ctx, client)
	p.record(outcomeFor(err), start)
	return sum, err
}

func (p *Pipeline) analyze(ctx context.Context, client gmail.Client) (Summary, error) {
	svc := analyzer.NewService(client, p.Limiter, p.Logger)
	svc.Clock = p.Clock
	svc.Observer = p.Observer
	stats, err := svc.Analyze(ctx, p.Options)
	if err != nil {
		var aerr *analyzer.AnalysisError
		if !errors.As(err, &aerr) {
			err = &analyzer.AnalysisError{Op: "analyze", Err: err}
		}
		return Summary{}, err
	}
	return Assemble(stats, carbon.Calculate(stats.TotalSizeMB)), nil
}

func (p *Pipeline) record(outcome string, start time.Time) {
	if p.Recorder == nil {
		return
	}
	p.Recorder.ObserveAnalysis(outcome, p.Clock().Sub(start))
}

func outcomeFor(err error) string {
	var (
		reauth   *credstore.ReauthRequiredError
		buildErr *runtime.ClientBuildError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, credstore.ErrNotAuthenticated), errors.As(err, &reauth):
		return "unauthenticated"
	case errors.As(err, &buildErr):
		return "client_error"
	default:
		return "analysis_error"
	}
}

// String renders a one-line description, used in logs.
func (s Summary) String() string {
	return fmt.Sprintf("%d/%d emails, %.2f MB, %.6f kg CO2/yr (%s)",
		s.EmailStats.EmailsAnalyzed, s.EmailStats.EmailsFetched,
		s.EmailStats.TotalSizeMB, s.CarbonFootprint.AnnualCO2Kg, s.CarbonFootprint.Severity)
}
