package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joshsymonds/greenbyte/internal/gmail"
	"github.com/joshsymonds/greenbyte/internal/rate"
)

const (
	// MaxPageSize is the largest page Gmail returns for messages.list.
	MaxPageSize = 500
	// MaxBatchSize is the Gmail batch endpoint limit.
	MaxBatchSize = 100

	defaultOldAfterDays         = 365
	defaultLargeAttachmentBytes = 1 << 20
	defaultConcurrency          = 2
	defaultRequestTimeout       = 30 * time.Second
	hoursPerDay                 = 24
)

// Options controls a single analysis run.
type Options struct {
	PageSize             int
	BatchSize            int
	Concurrency          int
	OldAfterDays         int
	LargeAttachmentBytes int64
	// RequestTimeout bounds the list and profile calls.
	RequestTimeout time.Duration
}

// DefaultOptions mirrors the limits the Gmail API imposes.
func DefaultOptions() Options {
	return Options{
		PageSize:             MaxPageSize,
		BatchSize:            MaxBatchSize,
		Concurrency:          defaultConcurrency,
		OldAfterDays:         defaultOldAfterDays,
		LargeAttachmentBytes: defaultLargeAttachmentBytes,
		RequestTimeout:       defaultRequestTimeout,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.PageSize <= 0 || o.PageSize > MaxPageSize {
		o.PageSize = d.PageSize
	}
	if o.BatchSize <= 0 || o.BatchSize > MaxBatchSize {
		o.BatchSize = d.BatchSize
	}
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.OldAfterDays <= 0 {
		o.OldAfterDays = d.OldAfterDays
	}
	if o.LargeAttachmentBytes <= 0 {
		o.LargeAttachmentBytes = d.LargeAttachmentBytes
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = d.RequestTimeout
	}
	return o
}

// Observer receives progress counts; implementations must be safe for
// concurrent use.
type Observer interface {
	BatchFetched(size int)
	MessagesFolded(analyzed, failed int)
}

// Service aggregates Gmail metadata into Stats.
type Service struct {
	Client   gmail.Client
	Limiter  rate.Limiter
	Logger   *slog.Logger
	Clock    func() time.Time
	Observer Observer
}

// NewService constructs a Service with sane defaults.
func NewService(client gmail.Client, limiter rate.Limiter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Service{
		Client:  client,
		Limiter: limiter,
		Logger:  logger,
		Clock:   time.Now,
	}
}

// Analyze lists one page of message ids, fetches their metadata in batches
// and folds the results into Stats. Per-message failures are recorded in
// Stats.Failures; list and profile failures abort with *AnalysisError.
func (s *Service) Analyze(ctx context.Context, opts Options) (Stats, error) {
	opts = opts.normalized()
	started := s.Clock().UTC()
	cutoff := started.Add(-time.Duration(opts.OldAfterDays) * hoursPerDay * time.Hour)

	logger := s.Logger
	logger.InfoContext(ctx, "running analysis",
		slog.Int("page_size", opts.PageSize),
		slog.Int("batch_size", opts.BatchSize),
		slog.Time("old_cutoff", cutoff),
	)

	ids, err := s.listIDs(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	if len(ids) == 0 {
		logger.InfoContext(ctx, "mailbox is empty")
		return Stats{AnalysisLimit: opts.PageSize, AnalyzedAt: started}, nil
	}

	results, err := s.fetchBatches(ctx, ids, opts)
	if err != nil {
		return Stats{}, err
	}
	t := fold(ids, results, cutoff, opts.LargeAttachmentBytes)
	for _, f := range t.failures {
		logger.WarnContext(ctx, "skipping message", slog.String("id", string(f.ID)), slog.String("reason", f.Reason))
	}
	if s.Observer != nil {
		s.Observer.MessagesFolded(t.analyzed, len(t.failures))
	}

	profile, err := s.profile(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	accountTotal := profile.MessagesTotal
	if accountTotal < int64(len(ids)) {
		logger.WarnContext(ctx, "profile reports fewer messages than listed",
			slog.Int64("messages_total", accountTotal), slog.Int("listed", len(ids)))
		accountTotal = int64(len(ids))
	}

	stats := Stats{
		TotalEmailsInAccount:       accountTotal,
		EmailsFetched:              len(ids),
		EmailsAnalyzed:             t.analyzed,
		FailedCount:                len(t.failures),
		TotalSizeBytes:             t.sizeBytes,
		TotalSizeMB:                bytesToMB(t.sizeBytes),
		OldEmailsCount:             t.old,
		LargeAttachmentEmailsCount: t.large,
		AnalysisLimit:              opts.PageSize,
		Note: fmt.Sprintf("Analyzed %d most recent emails. Your account has %d total.",
			len(ids), accountTotal),
		Failures:   t.failures,
		AnalyzedAt: started,
	}
	logger.InfoContext(ctx, "analysis complete",
		slog.Int("fetched", stats.EmailsFetched),
		slog.Int("analyzed", stats.EmailsAnalyzed),
		slog.Int("failed", stats.FailedCount),
		slog.Int64("total_size_bytes", stats.TotalSizeBytes),
	)
	return stats, nil
}

func (s *Service) listIDs(ctx context.Context, opts Options) ([]gmail.MessageID, error) {
	if err := s.wait(ctx); err != nil {
		return nil, &AnalysisError{Op: "rate limit list", Err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	defer cancel()
	ids, err := s.Client.ListIDs(callCtx, opts.PageSize)
	if err != nil {
		return nil, &AnalysisError{Op: "list messages", Err: err}
	}
	if len(ids) > opts.PageSize {
		ids = ids[:opts.PageSize]
	}
	return ids, nil
}

func (s *Service) profile(ctx context.Context, opts Options) (gmail.Profile, error) {
	if err := s.wait(ctx); err != nil {
		return gmail.Profile{}, &AnalysisError{Op: "rate limit profile", Err: err}
	}
	callCtx, cancel := context.WithTimeout(ctx, opts.RequestTimeout)
	defer cancel()
	p, err := s.Client.GetProfile(callCtx)
	if err != nil {
		return gmail.Profile{}, &AnalysisError{Op: "get profile", Err: err}
	}
	return p, nil
}

// fetchBatches issues exactly one BatchGetMetadata call per chunk of ids.
// Each batch writes only its own slot, so no result is shared across
// goroutines.
func (s *Service) fetchBatches(
	ctx context.Context,
	ids []gmail.MessageID,
	opts Options,
) ([][]gmail.MetadataResult, error) {
	chunks := chunk(ids, opts.BatchSize)
	out := make([][]gmail.MetadataResult, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i, batch := range chunks {
		g.Go(func() error {
			if err := s.wait(gctx); err != nil {
				return &AnalysisError{Op: fmt.Sprintf("rate limit batch %d", i+1), Err: err}
			}
			s.Logger.DebugContext(gctx, "executing batch", slog.Int("batch", i+1), slog.Int("size", len(batch)))
			out[i] = s.Client.BatchGetMetadata(gctx, batch)
			if s.Observer != nil {
				s.Observer.BatchFetched(len(batch))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) wait(ctx context.Context) error {
	if s.Limiter == nil {
		return nil
	}
	return s.Limiter.Wait(ctx)
}

func chunk(ids []gmail.MessageID, size int) [][]gmail.MessageID {
	out := make([][]gmail.MessageID, 0, (len(ids)+size-1)/size)
	for i := 0; i < len(ids); i += size {
		j := i + size
		if j > len(ids) {
			j = len(ids)
		}
		out = append(out, ids[i:j])
	}
	return out
}
