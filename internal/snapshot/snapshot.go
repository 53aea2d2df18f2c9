// Package snapshot derives snapshot names and layouts and builds snapshots
// by driving the mirror tool once per source.
package snapshot

import (
	"path/filepath"
	"strings"
	"time"
)

// Layout names snapshot directories. Lexicographic order of formatted names
// equals chronological order, and minute resolution keeps two scheduling
// ticks apart.
const Layout = "2006-01-02~1504"

// Snapshot represents a single snapshot directory under the destination root.
type Snapshot struct {
	Name      string
	Path      string
	Timestamp time.Time
	// Manifest is nil when the directory has no readable manifest.
	Manifest *Manifest
}

// Name formats t as a snapshot directory name.
func Name(t time.Time) string {
	return t.Format(Layout)
}

// Parse reads a snapshot name back into a time in loc.
func Parse(name string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(Layout, name, loc)
}

// IsName reports whether name has the snapshot layout.
func IsName(name string) bool {
	_, err := Parse(name, time.UTC)
	return err == nil
}

// FolderName returns the last path segment of source, ignoring trailing
// separators: "/a/b/project/" and "/a/b/project" both give "project".
// Remote rsync sources ("host:/srv/app/") are handled the same way.
func FolderName(source string) string {
	trimmed := strings.TrimRight(source, "/"+string(filepath.Separator))
	if trimmed == "" {
		return ""
	}
	idx := strings.LastIndexAny(trimmed, "/:"+string(filepath.Separator))
	return trimmed[idx+1:]
}
