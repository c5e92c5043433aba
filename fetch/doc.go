// Package fetch streams a remote asset into a chunk.Sequence.
//
// A Driver is started once per cache miss. It runs on a context owned by the
// service, never on the request that caused the miss, so a client that
// disconnects does not abort a fetch other readers may be waiting on.
package fetch
