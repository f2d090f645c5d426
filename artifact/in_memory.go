package artifact

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
)

// Scheme prefixes URIs of files held by an InMemoryStore.
const Scheme = "artifact"

// InMemoryStore is an in-process core.FileStore for attachments of a single
// client process. It keeps all files in a nested map guarded by an RWMutex.
// Data is copied on save / retrieval to avoid accidental external mutation of
// internal buffers.
//
// Layout: sessionID -> fileID -> raw bytes
type InMemoryStore struct {
	mu    sync.RWMutex
	files map[string]map[string][]byte // sessionID -> fileID -> data
}

// NewInMemoryStore returns an empty in-memory file store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{files: make(map[string]map[string][]byte)}
}

// Save stores (or overwrites) the file bytes for the given session and id.
// The input slice is copied before storage.
func (a *InMemoryStore) Save(sessionID, fileID string, data []byte) error {
	if fileID == "" {
		return fmt.Errorf("artifact: empty file id")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.files[sessionID]; !exists {
		a.files[sessionID] = make(map[string][]byte)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	a.files[sessionID][fileID] = cp
	return nil
}

// Get returns a copy of the stored bytes or ErrNotFound.
func (a *InMemoryStore) Get(sessionID, fileID string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.files[sessionID][fileID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

// List returns the sorted file ids stored for the session.
func (a *InMemoryStore) List(sessionID string) ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m := a.files[sessionID]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the file if present or returns ErrNotFound.
func (a *InMemoryStore) Delete(sessionID, fileID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	m, ok := a.files[sessionID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[fileID]; !ok {
		return ErrNotFound
	}
	delete(m, fileID)
	return nil
}

// URI returns the retrieval URI of a stored file.
func URI(sessionID, fileID string) string {
	return Scheme + "://" + url.PathEscape(sessionID) + "/" + url.PathEscape(fileID)
}

// ParseURI splits a URI produced by URI.
func ParseURI(uri string) (sessionID, fileID string, err error) {
	rest, ok := strings.CutPrefix(uri, Scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("artifact: not an %s uri: %q", Scheme, uri)
	}
	s, f, ok := strings.Cut(rest, "/")
	if !ok || f == "" {
		return "", "", fmt.Errorf("artifact: malformed uri %q", uri)
	}
	if sessionID, err = url.PathUnescape(s); err != nil {
		return "", "", err
	}
	if fileID, err = url.PathUnescape(f); err != nil {
		return "", "", err
	}
	return sessionID, fileID, nil
}
