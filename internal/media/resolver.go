package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// StoredFile is a resolved upload.
type StoredFile struct {
	ID          string
	Name        string
	Path        string
	ContentType string
	Size        int64
}

// Resolver finds the stored file for an identifier within one root.
// Hits are served from an LRU index of id -> file name; misses fall back to
// a directory scan. An index entry is only trusted while the root's mtime
// still equals the stamp taken before the scan that produced it, so any file
// added, removed or renamed since forces a rescan and a cold and a warm
// resolver always give the same answer.
type Resolver struct {
	root  string
	class Class
	index *lru.Cache[string, indexEntry]
}

type indexEntry struct {
	name  string
	stamp rootStamp
}

// rootStamp is the root directory's mtime observed before a scan. settled
// means the clock had already moved past the mtime's granule, so any later
// change to the directory is guaranteed to produce a different mtime.
type rootStamp struct {
	mod     time.Time
	settled bool
}

// mtimeGranule covers filesystems with coarse directory timestamps.
const mtimeGranule = 2 * time.Second

func NewResolver(root string, class Class, capacity int) (*Resolver, error) {
	if capacity <= 0 {
		capacity = 1
	}
	index, err := lru.New[string, indexEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &Resolver{root: root, class: class, index: index}, nil
}

func (r *Resolver) Root() string {
	return r.root
}

func (r *Resolver) Class() Class {
	return r.class
}

// Resolve returns the single file whose stem equals id.
func (r *Resolver) Resolve(id string) (*StoredFile, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}

	if e, ok := r.index.Get(id); ok {
		if f, ok := r.fromIndex(id, e); ok {
			return f, nil
		}
		r.index.Remove(id)
	}

	stamp, err := r.stampRoot()
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %v", ErrNotFound, r.root, err)
	}

	name, err := r.scan(id)
	if err != nil {
		return nil, err
	}

	f, err := r.stat(id, name)
	if err != nil {
		// deleted between ReadDir and Stat
		return nil, ErrNotFound
	}
	r.remember(id, name, stamp)
	return f, nil
}

func (r *Resolver) Forget(id string) {
	r.index.Remove(id)
}

func (r *Resolver) Indexed() int {
	return r.index.Len()
}

// remember records a match found by a full listing taken after stamp.
func (r *Resolver) remember(id, name string, stamp rootStamp) {
	r.index.Add(id, indexEntry{name: name, stamp: stamp})
}

func (r *Resolver) fromIndex(id string, e indexEntry) (*StoredFile, bool) {
	if !e.stamp.settled {
		return nil, false
	}
	info, err := os.Stat(r.root)
	if err != nil || !info.ModTime().Equal(e.stamp.mod) {
		return nil, false
	}
	f, err := r.stat(id, e.name)
	if err != nil {
		return nil, false
	}
	return f, true
}

func (r *Resolver) stampRoot() (rootStamp, error) {
	info, err := os.Stat(r.root)
	if err != nil {
		return rootStamp{}, err
	}
	mod := info.ModTime()
	return rootStamp{mod: mod, settled: time.Since(mod) > mtimeGranule}, nil
}

func (r *Resolver) scan(id string) (string, error) {
	entries, err := os.ReadDir(r.root)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrNotFound, r.root, err)
	}

	var match string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		if stem(name) != id {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s and %s", ErrAmbiguous, match, name)
		}
		match = name
	}

	if match == "" {
		return "", ErrNotFound
	}
	return match, nil
}

func (r *Resolver) stat(id, name string) (*StoredFile, error) {
	p := filepath.Join(r.root, name)
	info, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, ErrNotFound
	}
	return &StoredFile{
		ID:          id,
		Name:        name,
		Path:        p,
		ContentType: ContentType(name),
		Size:        info.Size(),
	}, nil
}

func validID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`)
}
