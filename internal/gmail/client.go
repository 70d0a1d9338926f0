package gmail

import "context"

// Client is the narrow Gmail surface required by greenbyte.
type Client interface {
	// ListIDs returns at most max message ids from the first page only.
	ListIDs(ctx context.Context, max int) ([]MessageID, error)
	// BatchGetMetadata issues one batched metadata-only fetch. It returns one
	// result per requested id; per-message failures are reported in the
	// result, never as the returned error.
	BatchGetMetadata(ctx context.Context, ids []MessageID) []MetadataResult
	GetProfile(ctx context.Context) (Profile, error)
}
