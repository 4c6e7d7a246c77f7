package loan

import (
	"context"
	"io"
	"time"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// RecordStore persists scraped records in a relational store.
type RecordStore interface {
	StoreRecords(ctx context.Context, records []Record) (int, error)
}

// Digest accumulates a content hash while data is written through it.
type Digest interface {
	io.Writer
	Hex() string
	Size() int64
}

// Hasher creates digests for uploaded content.
type Hasher interface {
	NewDigest() Digest
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}
