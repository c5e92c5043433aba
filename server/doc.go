// Package server exposes a mediacache.Service over HTTP.
//
// Routes:
//
//	GET /music/{id}        stream an asset, honoring Range: bytes=N- and bytes=N-M
//	GET /music-meta/{id}   stream the asset's sidecar metadata file
//	GET /entries?path=     JSON directory listing of the backend
//	GET /healthz           liveness probe
//	GET /debug/stats       JSON statistics, when WithStats is set
//
// The first chunk of an asset is read before any header is written, so a
// missing upstream object becomes a 404 and a failed fetch a 500 instead of a
// truncated 200.
package server
