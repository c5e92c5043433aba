// Package mediacache is a streaming cache between a slow, byte-range capable
// storage backend and an HTTP media server.
//
// Concurrent requests for the same asset share one remote fetch. Fetched
// bytes are spilled to an on-disk blob store in chunks, so memory stays
// bounded while many listeners replay or seek within the same track.
//
// # Quick Start
//
//	backend := storage.NewLocalStore("/srv/music")
//	svc, err := mediacache.New(backend,
//	    mediacache.WithCacheDir("/var/cache/mediacache"),
//	    mediacache.WithCacheCapacity(8),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Close()
//
//	stream, err := svc.Acquire(ctx, "3f2a9c...", "album/track.flac", 0)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//
//	for {
//	    b, err := stream.Read(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err // mediacache.ErrNotFound or *mediacache.FetchError
//	    }
//	    w.Write(b)
//	}
//
// # Cache Entries
//
// Entries are keyed by (asset, offset). A ranged request at offset N shares
// the offset 0 entry once that entry has buffered N bytes; otherwise it gets
// its own entry with its own fetch starting at N. Completed entries stay
// cached until LRU capacity pressure or Invalidate removes them. Failed
// fetches evict their entry immediately so the next request retries.
//
// # Packages
//
//   - blobstore: durable chunk storage with monotonically allocated IDs
//   - chunk: sequences, cursors and the LRU cache
//   - fetch: drivers that stream a backend object into a sequence
//   - storage: backends (local, S3, MinIO, SFTP, WebDAV)
//   - catalog: asset IDs and sidecar metadata discovered from a backend
//   - server: the HTTP front end
package mediacache
