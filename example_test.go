package mediacache_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/hupe1980/mediacache"
	"github.com/hupe1980/mediacache/blobstore"
	"github.com/hupe1980/mediacache/storage"
)

// Example_stream reads a whole asset through the cache.
func Example_stream() {
	backend := storage.NewMemoryStore()
	backend.Put("album/intro.mp3", []byte("ID3 intro audio"))

	svc, err := mediacache.New(backend)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	s, err := svc.Acquire(ctx, "intro", "album/intro.mp3", 0)
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	for {
		b, err := s.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s\n", b)
	}
	size, _ := s.Size()
	fmt.Println(size, s.ContentType())
	// Output:
	// ID3 intro audio
	// 15 audio/mpeg
}

// Example_rangeCoalescing shows a ranged read served from an entry that was
// already fetched from offset 0.
func Example_rangeCoalescing() {
	backend := storage.NewMemoryStore()
	backend.Put("song.flac", []byte("0123456789"))

	svc, err := mediacache.New(backend)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	full, err := svc.Acquire(ctx, "song", "song.flac", 0)
	if err != nil {
		log.Fatal(err)
	}
	if _, err := full.Read(ctx); err != nil {
		log.Fatal(err)
	}
	full.Close()

	tail, err := svc.Acquire(ctx, "song", "song.flac", 6)
	if err != nil {
		log.Fatal(err)
	}
	defer tail.Close()

	b, err := tail.Read(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s coalesced=%v fetches=%d\n", b, tail.Coalesced(), backend.Gets("song.flac"))
	// Output: 6789 coalesced=true fetches=1
}

// Example_diskCache keeps chunk data in compressed blob files.
func Example_diskCache() {
	dir, err := os.MkdirTemp("", "mediacache-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	backend := storage.NewMemoryStore()
	backend.Put("a.ogg", make([]byte, 4096))

	svc, err := mediacache.New(backend,
		mediacache.WithCacheDir(dir, blobstore.WithCompression(blobstore.CompressionLZ4)),
		mediacache.WithCacheCapacity(16),
	)
	if err != nil {
		log.Fatal(err)
	}
	defer svc.Close()

	ctx := context.Background()
	s, err := svc.Acquire(ctx, "a", "a.ogg", 0)
	if err != nil {
		log.Fatal(err)
	}
	b, err := s.Read(ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.Close()

	st := svc.Stats()
	fmt.Println(len(b), st.Cache.Len, st.Blobs.Live)
	// Output: 4096 1 1
}
