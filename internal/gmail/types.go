// internal/gmail/types.go
package gmail

import "time"

type MessageID string

// MessageMeta is the metadata-only view of a message: no headers, no body.
type MessageMeta struct {
	ID           MessageID
	SizeEstimate int64 // bytes
	InternalDate int64 // epoch milliseconds
}

// Received converts InternalDate to a UTC time.
func (m MessageMeta) Received() time.Time {
	return time.UnixMilli(m.InternalDate).UTC()
}

// MetadataResult is the outcome of one message inside a batched fetch.
// Exactly one of Meta and Err is meaningful.
type MetadataResult struct {
	ID   MessageID
	Meta MessageMeta
	Err  error
}

// OK reports whether the fetch succeeded.
func (r MetadataResult) OK() bool { return r.Err == nil }

type Profile struct {
	EmailAddress  string
	MessagesTotal int64
	ThreadsTotal  int64
}
