// Package fs provides the filesystem seam used by the on-disk blob store.
//
//   - [LocalFS]: production implementation backed by the os package
//   - [FaultyFS]: test wrapper that injects write, sync and read faults
//
// Blobs are created exclusively and never rewritten:
//
//	err := fs.WriteNew(fs.Default, path+".tmp", frame, sync)
//
// Tests wrap the filesystem to simulate a failing or corrupting disk:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".blob", fs.Fault{CorruptOnRead: true})
//
// Operations take no context.Context; they are local syscalls on small files.
package fs
