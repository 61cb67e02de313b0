// Package blobstore is the narrow collaborator the orchestrator uses to
// persist message attachments: save raw bytes under a name and get back an
// opaque location string; fetch reverses it. Nothing above this package
// knows or cares whether that location is a path on disk or an S3 key.
package blobstore

import "context"

// Store saves and retrieves attachment bytes by opaque location.
type Store interface {
	Save(ctx context.Context, name, contentType string, data []byte) (location string, err error)
	Fetch(ctx context.Context, location string) ([]byte, error)
	Delete(ctx context.Context, location string) error
}
