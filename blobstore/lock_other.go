//go:build !unix

package blobstore

import "os"

func lockDir(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
}

func unlockDir(f *os.File) error {
	return f.Close()
}
