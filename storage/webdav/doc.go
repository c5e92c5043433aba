// Package webdav provides a storage.Backend implementation for WebDAV servers.
//
// Listing uses PROPFIND with Depth 1; reads use ranged GET requests.
//
//	store, err := webdav.NewStore("https://dav.example.com/music",
//	    webdav.WithBasicAuth("user", "secret"),
//	)
package webdav
