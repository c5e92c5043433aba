// Package s3 provides an Amazon S3 implementation of storage.Backend.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
//	backend := s3store.NewStore(client, "my-bucket", "music/")
//
// # Features
//
//   - Range GET starting at an arbitrary offset
//   - Full object size taken from Content-Range
//   - Paginated, delimiter based directory listing
//   - Configurable key prefix
package s3
