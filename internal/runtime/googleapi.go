// internal/runtime/googleapi.go: adapts *gmail.Service to the narrow client interface
package runtime

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"

	gc "github.com/joshsymonds/greenbyte/internal/gmail"
	"github.com/joshsymonds/greenbyte/internal/rate"
)

const (
	user = "me"

	defaultFanout      = 10
	defaultCallTimeout = 20 * time.Second
)

// ClientConfig tunes the adapter's outbound behaviour.
type ClientConfig struct {
	Limiter rate.Limiter
	// Fanout bounds concurrent gets inside one batch.
	Fanout int
	// CallTimeout bounds every single API call.
	CallTimeout time.Duration
}

func (c ClientConfig) normalized() ClientConfig {
	if c.Limiter == nil {
		c.Limiter = rate.Unlimited{}
	}
	if c.Fanout <= 0 {
		c.Fanout = defaultFanout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = defaultCallTimeout
	}
	return c
}

type googleClient struct {
	svc *gmail.Service
	cfg ClientConfig
}

func NewGoogleAPIClient(svc *gmail.Service, cfg ClientConfig) *googleClient {
	return &googleClient{svc: svc, cfg: cfg.normalized()}
}

func (g *googleClient) ListIDs(ctx context.Context, max int) ([]gc.MessageID, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	res, err := g.svc.Users.Messages.List(user).
		MaxResults(int64(max)).
		Fields(googleapi.Field("messages/id")).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	ids := make([]gc.MessageID, 0, len(res.Messages))
	for _, m := range res.Messages {
		ids = append(ids, gc.MessageID(m.Id))
	}
	return ids, nil
}

// BatchGetMetadata fans the metadata-only gets for one batch out over a
// bounded pool. Every id gets its own result slot and timeout.
func (g *googleClient) BatchGetMetadata(ctx context.Context, ids []gc.MessageID) []gc.MetadataResult {
	out := make([]gc.MetadataResult, len(ids))
	var eg errgroup.Group
	eg.SetLimit(g.cfg.Fanout)
	for i, id := range ids {
		eg.Go(func() error {
			out[i] = g.getMetadata(ctx, id)
			return nil
		})
	}
	_ = eg.Wait()
	return out
}

func (g *googleClient) getMetadata(ctx context.Context, id gc.MessageID) gc.MetadataResult {
	if err := g.cfg.Limiter.Wait(ctx); err != nil {
		return gc.MetadataResult{ID: id, Err: err}
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	msg, err := g.svc.Users.Messages.Get(user, string(id)).
		Format("metadata").
		Fields(googleapi.Field("id"), googleapi.Field("sizeEstimate"), googleapi.Field("internalDate")).
		Context(ctx).
		Do()
	if err != nil {
		return gc.MetadataResult{ID: id, Err: err}
	}
	return gc.MetadataResult{
		ID: id,
		Meta: gc.MessageMeta{
			ID:           id,
			SizeEstimate: msg.SizeEstimate,
			InternalDate: msg.InternalDate,
		},
	}
}

func (g *googleClient) GetProfile(ctx context.Context) (gc.Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	defer cancel()
	p, err := g.svc.Users.GetProfile(user).Context(ctx).Do()
	if err != nil {
		return gc.Profile{}, err
	}
	return gc.Profile{
		EmailAddress:  p.EmailAddress,
		MessagesTotal: p.MessagesTotal,
		ThreadsTotal:  p.ThreadsTotal,
	}, nil
}

var _ gc.Client = (*googleClient)(nil)
