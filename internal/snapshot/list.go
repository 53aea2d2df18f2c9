package snapshot

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/raoulx24/snapmirror/internal/fs"
)

// List returns the directories under root, oldest first. Directories whose
// name does not parse keep a zero Timestamp; a missing manifest leaves
// Manifest nil.
func List(f fs.FS, root string, loc *time.Location) ([]Snapshot, error) {
	entries, err := f.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", root)
	}

	var out []Snapshot
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		s := Snapshot{Name: e.Name, Path: e.Path}
		if ts, err := Parse(e.Name, loc); err == nil {
			s.Timestamp = ts
		}
		if m, err := ReadManifest(f, e.Path); err == nil {
			s.Manifest = m
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
