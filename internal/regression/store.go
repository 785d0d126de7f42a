// Package regression persists named reference results and detects
// behavior drift by re-running strategies against them.
package regression

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jsj9346/spock-sub005/internal/errors"
)

// SchemaVersion of the on-disk reference format. The schema evolves
// additively: new fields may appear, existing field names and meanings
// must not change without a version bump.
const SchemaVersion = 1

// ReferenceResult is a named, versioned snapshot of a performance report
// plus the identity that produced it. References are never auto-deleted.
type ReferenceResult struct {
	SchemaVersion int                `json:"schema_version"`
	TestName      string             `json:"test_name"`
	CreatedAt     time.Time          `json:"created_at"`
	GeneratorName string             `json:"generator_name"`
	Parameters    map[string]float64 `json:"parameters"`
	Metrics       map[string]float64 `json:"metrics"`
}

// Store abstracts reference persistence so an alternative backing store
// can be substituted without touching the tester.
type Store interface {
	Save(ref *ReferenceResult, force bool) error
	Load(name string) (*ReferenceResult, error)
	List() ([]string, error)
}

// FileStore keeps one JSON file per named reference with an in-process
// cache. Commits are atomic: write to a temp file, then rename.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	cache map[string]*ReferenceResult
}

// NewFileStore opens a reference store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating reference directory")
	}
	return &FileStore{
		dir:   dir,
		cache: make(map[string]*ReferenceResult),
	}, nil
}

// Save persists a reference. An existing name is rejected with
// ErrReferenceConflict unless force is set.
func (s *FileStore) Save(ref *ReferenceResult, force bool) error {
	if ref.TestName == "" {
		return errors.NewValidationError("test_name", ref.TestName, "must not be empty")
	}
	// Names map directly to file names; a separator would escape the
	// store directory and never show up in List.
	if strings.ContainsAny(ref.TestName, `/\`) {
		return errors.NewValidationError("test_name", ref.TestName, "must not contain path separators")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(ref.TestName)
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.NewReferenceError(ref.TestName, errors.ErrReferenceConflict)
		}
	}

	ref.SchemaVersion = SchemaVersion
	data, err := json.MarshalIndent(ref, "", "  ")
	if err != nil {
		return errors.NewReferenceError(ref.TestName, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".ref-*.tmp")
	if err != nil {
		return errors.NewReferenceError(ref.TestName, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewReferenceError(ref.TestName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewReferenceError(ref.TestName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewReferenceError(ref.TestName, err)
	}

	s.cache[ref.TestName] = ref
	return nil
}

// Load fetches a reference by name, from cache when possible.
func (s *FileStore) Load(name string) (*ReferenceResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ref, ok := s.cache[name]; ok {
		return ref, nil
	}

	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewReferenceError(name, errors.ErrReferenceNotFound)
		}
		return nil, errors.NewReferenceError(name, err)
	}

	var ref ReferenceResult
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, errors.NewReferenceError(name, err)
	}
	if ref.SchemaVersion < 1 {
		ref.SchemaVersion = 1
	}

	s.cache[name] = &ref
	return &ref, nil
}

// List returns the stored reference names, sorted.
func (s *FileStore) List() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "reading reference directory")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}

var _ Store = (*FileStore)(nil)
