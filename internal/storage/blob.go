package storage

import "io"

// BlobStore is where submission documents live. Keys are slash-separated
// paths relative to the storage root.
type BlobStore interface {
	Put(key string, r io.Reader) (string, error) // returns canonical key
	Get(key string) (io.ReadCloser, error)
	Exists(key string) bool
	Delete(key string) error
	SignedURL(key string) (string, error) // fs returns "file://..." for dev
}
