// Package chunk holds fetched media bytes as append-only chunk sequences.
//
// A Sequence is written by exactly one fetch driver and read by any number of
// Cursors. Buffer chunks are persisted through a blobstore.Store; only their
// IDs stay in memory. A sequence ends with at most one status chunk (Loaded,
// NotFound or Error).
//
// A Cache maps (asset, offset) keys to sequences with LRU eviction. Sequences
// are reference counted: the cache, the driver and every cursor hold one
// reference each, and the blobs of a sequence are removed once the last
// reference is released.
//
// # Reading
//
//	cur := seq.Cursor(skip)
//	defer cur.Close()
//	for {
//	    b, err := cur.Read(ctx)
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    w.Write(b)
//	}
//
// Read blocks until the next chunk is available. A wakeup channel is captured
// under the same lock as the lookup, so a push between the lookup and the wait
// is never missed.
package chunk
