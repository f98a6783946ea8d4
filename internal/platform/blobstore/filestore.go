package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FileStore keeps objects as files under a root directory. Put writes to a
// temporary file in the target directory and renames it into place, so a
// failed write never leaves a truncated document behind.
type FileStore struct {
	root string
}

// NewFileStore returns a FileStore rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string) *FileStore {
	return &FileStore{root: filepath.Clean(dir)}
}

// Root returns the store's root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) pathFor(key string) (string, string, error) {
	key, err := CleanKey(key)
	if err != nil {
		return "", "", err
	}
	return key, filepath.Join(s.root, filepath.FromSlash(key)), nil
}

func (s *FileStore) Put(ctx context.Context, key string, content []byte, contentType string) (*ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, target, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	if len(content) > MaxObjectSize {
		return nil, ErrObjectTooLarge
	}

	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(target)+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		cleanup()
		return nil, fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return nil, fmt.Errorf("setting permissions on %s: %w", key, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return nil, fmt.Errorf("renaming into %s: %w", key, err)
	}

	st, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Key:         key,
		ContentType: contentType,
		Size:        st.Size(),
		Hash:        hashOf(content),
		ModifiedAt:  st.ModTime().UTC(),
	}, nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, *ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	key, target, err := s.pathFor(key)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, ErrObjectNotFound
		}
		return nil, nil, fmt.Errorf("reading %s: %w", key, err)
	}
	st, err := os.Stat(target)
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return data, &ObjectInfo{
		Key:         key,
		ContentType: contentTypeFor(key),
		Size:        st.Size(),
		Hash:        hashOf(data),
		ModifiedAt:  st.ModTime().UTC(),
	}, nil
}

// List walks the root recursively and returns regular files whose key starts
// with prefix, sorted by key. Temporary files of in-flight writes are
// skipped. A missing root yields an empty list.
func (s *FileStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && p == s.root {
				return filepath.SkipDir
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, ObjectInfo{
			Key:         key,
			ContentType: contentTypeFor(key),
			Size:        info.Size(),
			ModifiedAt:  info.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", s.root, err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key, target, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrObjectNotFound
		}
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func contentTypeFor(key string) string {
	if strings.HasSuffix(strings.ToLower(key), ".json") {
		return ContentTypeFHIRJSON
	}
	return "application/octet-stream"
}
