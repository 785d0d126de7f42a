package validator

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/jsj9346/spock-sub005/internal/errors"
	"github.com/jsj9346/spock-sub005/internal/models"
)

// History is an append-only validation log: one JSON document per line.
// Writers are serialized behind a mutex so concurrent validation runs
// cannot interleave partial lines; reads take the same lock only long
// enough to snapshot the file.
type History struct {
	path string
	mu   sync.Mutex
}

// NewHistory opens (or creates the directory for) a validation history
// log at path.
func NewHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating history directory")
	}
	return &History{path: path}, nil
}

// Append writes one report to the log.
func (h *History) Append(report *models.ValidationReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, "opening history log")
	}
	defer f.Close()

	data, err := json.Marshal(report)
	if err != nil {
		return errors.Wrap(err, "encoding validation report")
	}
	data = append(data, '\n')
	if _, err := f.Write(data); err != nil {
		return errors.Wrap(err, "appending validation report")
	}
	return nil
}

// List returns all recorded reports, oldest first. generator filters by
// signal generator name; empty matches all.
func (h *History) List(generator string) ([]models.ValidationReport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	f, err := os.Open(h.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "opening history log")
	}
	defer f.Close()

	var reports []models.ValidationReport
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var report models.ValidationReport
		if err := json.Unmarshal(line, &report); err != nil {
			// A torn trailing line from a crashed writer is skipped, not
			// fatal.
			continue
		}
		if generator == "" || report.GeneratorName == generator {
			reports = append(reports, report)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading history log")
	}
	return reports, nil
}
