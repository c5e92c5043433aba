package sftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"

	"github.com/hupe1980/mediacache/storage"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Store implements storage.Backend on top of an SFTP session.
type Store struct {
	client *sftp.Client
	root   string
	conn   io.Closer
}

// NewStore wraps an existing SFTP client. The caller keeps ownership of the
// client unless the store was created with Dial.
func NewStore(client *sftp.Client, root string) *Store {
	if root == "" {
		root = "/"
	}
	return &Store{client: client, root: root}
}

// Dial connects to addr over SSH and opens an SFTP session rooted at root.
func Dial(addr, root string, cfg *ssh.ClientConfig) (*Store, error) {
	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("sftp session %s: %w", addr, err)
	}
	s := NewStore(client, root)
	s.conn = conn
	return s, nil
}

// HostKeyCallback returns a known_hosts based callback, or an insecure one
// when file is empty.
func HostKeyCallback(file string) (ssh.HostKeyCallback, error) {
	if file == "" {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(file)
}

func (s *Store) resolve(p string) (string, string, error) {
	rel, err := storage.Clean(p)
	if err != nil {
		return "", "", err
	}
	return rel, path.Join(s.root, rel), nil
}

// Get opens the remote file and seeks to offset.
func (s *Store) Get(ctx context.Context, p string, offset int64) (*storage.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, fmt.Errorf("get %s: negative offset %d", p, offset)
	}
	rel, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	f, err := s.client.Open(full)
	if err != nil {
		return nil, translate(p, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, translate(p, err)
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, fmt.Errorf("get %s: is a directory: %w", p, storage.ErrNotFound)
	}
	if offset > 0 {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	return &storage.Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: storage.ContentTypeFor(rel),
	}, nil
}

// List reads the remote directory.
func (s *Store) List(ctx context.Context, p string) ([]storage.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rel, full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	infos, err := s.client.ReadDir(full)
	if err != nil {
		return nil, translate(p, err)
	}

	entries := make([]storage.Entry, 0, len(infos))
	for _, info := range infos {
		e := storage.Entry{
			Name:    info.Name(),
			Path:    path.Join(rel, info.Name()),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime(),
		}
		if !e.IsDir {
			e.Size = info.Size()
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Close ends the SFTP session and, for dialed stores, the SSH connection.
func (s *Store) Close() error {
	err := s.client.Close()
	if s.conn != nil {
		err = errors.Join(err, s.conn.Close())
	}
	return err
}

func translate(p string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", p, storage.ErrNotFound)
	}
	var se *sftp.StatusError
	if errors.As(err, &se) && se.FxCode() == sftp.ErrSSHFxNoSuchFile {
		return fmt.Errorf("%s: %w", p, storage.ErrNotFound)
	}
	return err
}
