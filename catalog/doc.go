// Package catalog discovers media assets in a storage backend and assigns
// them stable IDs.
//
// An asset ID is the first 16 hex characters of the SHA-256 digest of the
// asset's backend path, so IDs survive restarts and rescans. Files next to an
// asset with the same base name and a sidecar extension (.lrc, .json, .txt by
// default) are attached as its metadata.
package catalog
