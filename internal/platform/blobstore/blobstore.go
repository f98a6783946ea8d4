// Package blobstore stores generated message documents. It defines the Store
// interface with filesystem, MinIO and in-memory backends, and Echo handlers
// for listing and downloading stored documents.
package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhirgen/pkg/pagination"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrObjectNotFound = errors.New("object not found")
	ErrInvalidKey     = errors.New("object key is invalid")
	ErrObjectTooLarge = errors.New("object exceeds maximum allowed size")
)

// MaxObjectSize is the maximum allowed document size in bytes (100 MB).
const MaxObjectSize = 100 * 1024 * 1024

// ContentTypeFHIRJSON is the media type of stored message documents.
const ContentTypeFHIRJSON = "application/fhir+json"

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// ObjectInfo describes a stored document.
type ObjectInfo struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash,omitempty"`
	ModifiedAt  time.Time `json:"modified_at"`
}

// ---------------------------------------------------------------------------
// Store interface
// ---------------------------------------------------------------------------

// Store is a flat namespace of slash-separated keys. Put replaces any
// existing object under the same key; readers never observe a partial
// object.
type Store interface {
	Put(ctx context.Context, key string, content []byte, contentType string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}

// CleanKey validates key and returns its canonical form. Keys are relative,
// slash-separated and may not escape the store root.
func CleanKey(key string) (string, error) {
	key = strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return cleaned, nil
}

func hashOf(data []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedObject struct {
	info    ObjectInfo
	content []byte
}

// InMemoryStore is a thread-safe, in-memory Store for testing and for the
// mock server's record of received messages.
type InMemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*storedObject
	now     func() time.Time
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		objects: make(map[string]*storedObject),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) Put(_ context.Context, key string, content []byte, contentType string) (*ObjectInfo, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	if len(content) > MaxObjectSize {
		return nil, ErrObjectTooLarge
	}

	data := make([]byte, len(content))
	copy(data, content)
	info := ObjectInfo{
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Hash:        hashOf(data),
		ModifiedAt:  s.now(),
	}

	s.mu.Lock()
	s.objects[key] = &storedObject{info: info, content: data}
	s.mu.Unlock()

	out := info // copy
	return &out, nil
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, *ObjectInfo, error) {
	key, err := CleanKey(key)
	if err != nil {
		return nil, nil, err
	}

	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrObjectNotFound
	}

	data := make([]byte, len(obj.content))
	copy(data, obj.content)
	info := obj.info // copy
	return data, &info, nil
}

// List returns the objects whose key starts with prefix, sorted by key.
func (s *InMemoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []ObjectInfo
	for k, obj := range s.objects {
		if strings.HasPrefix(k, prefix) {
			matched = append(matched, obj.info)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Key < matched[j].Key })
	return matched, nil
}

func (s *InMemoryStore) Delete(_ context.Context, key string) error {
	key, err := CleanKey(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return ErrObjectNotFound
	}
	delete(s.objects, key)
	return nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler provides read-only Echo handlers over a Store.
type Handler struct {
	store Store
}

// NewHandler creates a new Handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the document routes on the supplied Echo group. The
// listing pages with _count and _offset and filters with prefix.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/messages", h.handleList)
	g.GET("/messages/*", h.handleGet)
}

func (h *Handler) handleList(c echo.Context) error {
	items, err := h.store.List(c.Request().Context(), c.QueryParam("prefix"))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	p := pagination.FromContext(c)
	start, end := p.Window(len(items))
	page := make([]ObjectInfo, end-start)
	copy(page, items[start:end])

	return c.JSON(http.StatusOK, p.NewPage(page, len(items), c.Request().URL.Path))
}

func (h *Handler) handleGet(c echo.Context) error {
	data, info, err := h.store.Get(c.Request().Context(), c.Param("*"))
	if err != nil {
		switch {
		case errors.Is(err, ErrObjectNotFound):
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		case errors.Is(err, ErrInvalidKey):
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		default:
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = ContentTypeFHIRJSON
	}
	return c.Blob(http.StatusOK, contentType, data)
}
