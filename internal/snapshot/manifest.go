package snapshot

import (
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/raoulx24/snapmirror/internal/fs"
)

// ManifestName is the file written into every snapshot root.
const ManifestName = ".snapmirror.yaml"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
	StatusFailed     Status = "failed"
)

// Manifest records how a snapshot was produced. Failed cycles leave their
// partial snapshot on disk and the manifest says so.
type Manifest struct {
	CycleID    string        `yaml:"cycle_id"`
	Name       string        `yaml:"name"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at,omitempty"`
	Status     Status        `yaml:"status"`
	Error      string        `yaml:"error,omitempty"`
	Sources    []SourceEntry `yaml:"sources"`
}

// SourceEntry describes one source inside a snapshot.
type SourceEntry struct {
	Source      string        `yaml:"source"`
	Destination string        `yaml:"destination"`
	Status      Status        `yaml:"status"`
	ExitCode    int           `yaml:"exit_code"`
	Lines       int           `yaml:"lines"`
	Duration    time.Duration `yaml:"duration"`
}

// WriteManifest stores m in the snapshot directory dir.
func WriteManifest(f fs.FS, dir string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	if err := f.WriteFile(filepath.Join(dir, ManifestName), data); err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	return nil
}

// ReadManifest loads the manifest of the snapshot directory dir.
func ReadManifest(f fs.FS, dir string) (*Manifest, error) {
	data, err := f.ReadFile(filepath.Join(dir, ManifestName))
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "parsing manifest")
	}
	return &m, nil
}
