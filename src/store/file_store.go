package store

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	cm "github.com/subki/federation/src/common"
)

// FileStore implements the Store interface with one file per key in a base
// directory. Keys map directly to file names; keys that resolve outside the
// base directory are rejected, records can never land anywhere else on the
// filesystem. Writes go to a temporary file first and are renamed into place,
// so a crash mid-write cannot leave a corrupt record behind.
type FileStore struct {
	l    sync.Mutex
	base string
}

// NewFileStore creates the base directory if needed and returns a FileStore
// rooted there.
func NewFileStore(base string) (*FileStore, error) {
	if err := os.MkdirAll(base, 0700); err != nil {
		return nil, err
	}

	return &FileStore{base: filepath.Clean(base)}, nil
}

// path maps a key to its file. A key containing path separators or traversal
// components would resolve outside the base directory; callers do not get to
// choose where on the filesystem a record lands, so those keys are invalid.
func (s *FileStore) path(key string) (string, error) {
	p := filepath.Join(s.base, key)
	if key == "" || filepath.Dir(p) != s.base {
		return "", cm.NewStoreErr("FileStore", cm.InvalidKey, key)
	}

	return p, nil
}

// Put implements the Store interface.
func (s *FileStore) Put(key string, value []byte) error {
	s.l.Lock()
	defer s.l.Unlock()

	dest, err := s.path(key)
	if err != nil {
		return err
	}

	tmp, err := ioutil.TempFile(s.base, "put-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), dest)
}

// Get implements the Store interface.
func (s *FileStore) Get(key string) ([]byte, error) {
	s.l.Lock()
	defer s.l.Unlock()

	src, err := s.path(key)
	if err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cm.NewStoreErr("FileStore", cm.KeyNotFound, key)
		}
		return nil, err
	}

	return buf, nil
}

// List implements the Store interface.
func (s *FileStore) List(prefix string) ([]string, error) {
	s.l.Lock()
	defer s.l.Unlock()

	entries, err := ioutil.ReadDir(s.base)
	if err != nil {
		return nil, err
	}

	keys := []string{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasPrefix(name, prefix) && !strings.HasPrefix(name, "put-") {
			keys = append(keys, name)
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// Close implements the Store interface. It is a no-op for FileStore.
func (s *FileStore) Close() error {
	return nil
}
