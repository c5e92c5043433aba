// Package storage is the abstraction over the remote media source.
//
// A Backend lists directories and opens a byte stream at an arbitrary offset.
// The cache never writes to a backend. Implementations must be safe for
// concurrent use.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem
//   - MemoryStore: in-memory store for tests, with fault injection
//   - s3.Store: Amazon S3 (range GET)
//   - minio.Store: MinIO and other S3-compatible servers
//   - sftp.Store: SFTP servers
//   - webdav.Store: WebDAV servers (PROPFIND listing, range GET)
//
// # Custom Implementations
//
//	type Backend interface {
//	    List(ctx, path) ([]Entry, error)
//	    Get(ctx, path, offset) (*Object, error)
//	}
//
// Get reports the size of the whole object, not of the remaining range, so
// callers can build Content-Range headers for any offset.
package storage
