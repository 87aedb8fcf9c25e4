// Package objectstore stages training data in and model artifacts out of a
// bucket/key object store.
package objectstore

import (
	"context"
	"errors"
	"net"
	"net/url"
	"syscall"
)

// Location addresses one object.
type Location struct {
	Bucket string
	Key    string
}

func (l Location) String() string {
	return l.Bucket + "/" + l.Key
}

// Store is the minimal object store surface the gateway needs. HeadBucket
// must return an error matching apperrors.ErrNotFound when the bucket does
// not exist.
type Store interface {
	HeadBucket(ctx context.Context, bucket string) error
	CreateBucket(ctx context.Context, bucket string) error
	DownloadFile(ctx context.Context, src Location, path string) error
	UploadFile(ctx context.Context, path string, dst Location) error
	// Endpoint is a credential-free description of where the store lives.
	Endpoint() string
	Close() error
}

// isUnreachable reports whether err means the endpoint could not be reached
// at all, as opposed to the endpoint answering with an error.
func isUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	return false
}
