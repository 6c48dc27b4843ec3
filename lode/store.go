// Package lode stores delivered backup archives through a Lode Store.
//
// Archives land at <prefix>/<session-id>.zip on the filesystem, S3 (or an
// S3-compatible provider) or in memory. The store is created lazily on first
// use so that configuration errors surface when the first archive is written.
package lode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/MateoLopez004/Gobackup/types"
)

// DefaultPrefix is the key prefix under which archives are stored.
const DefaultPrefix = "artifacts"

// ArtifactStore writes and reads backup archives.
type ArtifactStore struct {
	factory  lode.StoreFactory
	prefix   string
	location string

	once     sync.Once
	store    lode.Store
	storeErr error
}

// NewFSStore returns a store rooted at a local directory.
func NewFSStore(root string) *ArtifactStore {
	return NewStoreWithFactory(lode.NewFSFactory(root), "file://"+root)
}

// NewMemoryStore returns an in-memory store, for tests and dry runs.
func NewMemoryStore() *ArtifactStore {
	return NewStoreWithFactory(lode.NewMemoryFactory(), "memory://")
}

// NewStoreWithFactory returns a store over a custom factory. location is the
// URI prefix reported by Location (e.g. "s3://bucket/prefix").
func NewStoreWithFactory(factory lode.StoreFactory, location string) *ArtifactStore {
	return &ArtifactStore{
		factory:  factory,
		prefix:   DefaultPrefix,
		location: trimLocation(location),
	}
}

// trimLocation drops trailing slashes but keeps a bare scheme ("memory://").
func trimLocation(location string) string {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return strings.TrimRight(location, "/")
	}
	return scheme + "://" + strings.TrimRight(rest, "/")
}

// Key returns the store path of a session's archive.
func (s *ArtifactStore) Key(sessionID string) string {
	return path.Join(s.prefix, types.ArtifactName(sessionID))
}

// Location returns a URI identifying a session's archive.
func (s *ArtifactStore) Location(sessionID string) string {
	if strings.HasSuffix(s.location, "://") {
		return s.location + s.Key(sessionID)
	}
	return s.location + "/" + s.Key(sessionID)
}

// Put streams an archive into the store.
func (s *ArtifactStore) Put(ctx context.Context, sessionID string, r io.Reader) error {
	if sessionID == "" {
		return errors.New("lode: empty session id")
	}
	store, err := s.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, s.location)
	}
	key := s.Key(sessionID)
	return WrapWriteError(store.Put(ctx, key, r), key)
}

// Open returns a reader for a stored archive. The caller must close it.
func (s *ArtifactStore) Open(ctx context.Context, sessionID string) (io.ReadCloser, error) {
	store, err := s.getOrCreateStore()
	if err != nil {
		return nil, WrapInitError(err, s.location)
	}
	key := s.Key(sessionID)
	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, WrapReadError(err, key)
	}
	return rc, nil
}

// Exists reports whether an archive is stored for the session.
func (s *ArtifactStore) Exists(ctx context.Context, sessionID string) (bool, error) {
	store, err := s.getOrCreateStore()
	if err != nil {
		return false, WrapInitError(err, s.location)
	}
	key := s.Key(sessionID)
	ok, err := store.Exists(ctx, key)
	if err != nil {
		return false, WrapReadError(err, key)
	}
	return ok, nil
}

// List returns the session ids of all stored archives.
func (s *ArtifactStore) List(ctx context.Context) ([]string, error) {
	store, err := s.getOrCreateStore()
	if err != nil {
		return nil, WrapInitError(err, s.location)
	}
	keys, err := store.List(ctx, s.prefix)
	if err != nil {
		return nil, WrapReadError(err, s.prefix)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		name := path.Base(k)
		if id, ok := strings.CutSuffix(name, ".zip"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Delete removes a stored archive.
func (s *ArtifactStore) Delete(ctx context.Context, sessionID string) error {
	store, err := s.getOrCreateStore()
	if err != nil {
		return WrapInitError(err, s.location)
	}
	key := s.Key(sessionID)
	if err := store.Delete(ctx, key); err != nil {
		return NewStorageError(classifyError(err), "delete", key, err)
	}
	return nil
}

func (s *ArtifactStore) getOrCreateStore() (lode.Store, error) {
	s.once.Do(func() {
		s.store, s.storeErr = s.factory()
		if s.storeErr == nil && s.store == nil {
			s.storeErr = fmt.Errorf("store factory returned nil store")
		}
	})
	return s.store, s.storeErr
}
