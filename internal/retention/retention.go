// Package retention keeps the destination root at the configured number of
// snapshots by removing the oldest ones.
package retention

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/snapshot"
)

// Pruner removes all but the newest snapshots of a destination root.
// Snapshot names sort chronologically, so newest means greatest name.
type Pruner struct {
	fs            fs.FS
	log           logging.Logger
	onlySnapshots bool
}

type Option func(*Pruner)

// OnlySnapshots ignores directories whose name is not a snapshot name.
func OnlySnapshots(enabled bool) Option {
	return func(p *Pruner) { p.onlySnapshots = enabled }
}

func NewPruner(filesystem fs.FS, log logging.Logger, opts ...Option) *Pruner {
	if filesystem == nil {
		filesystem = fs.New()
	}
	p := &Pruner{fs: filesystem, log: log}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan returns the paths Apply would remove, oldest first.
func (p *Pruner) Plan(root string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, snaperrors.MarkConfig(errors.Newf("retention count must be positive, got %d", keep))
	}

	candidates, err := p.candidates(root)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= keep {
		return nil, nil
	}

	victims := make([]string, 0, len(candidates)-keep)
	for _, c := range candidates[:len(candidates)-keep] {
		victims = append(victims, c.Path)
	}
	return victims, nil
}

// Count returns how many directories under root retention considers.
func (p *Pruner) Count(root string) (int, error) {
	candidates, err := p.candidates(root)
	return len(candidates), err
}

// candidates lists the prunable directories under root, oldest first.
func (p *Pruner) candidates(root string) ([]fs.FileInfo, error) {
	entries, err := p.fs.ReadDir(root)
	if err != nil {
		return nil, snaperrors.MarkFilesystem(errors.Wrapf(err, "listing %s", root))
	}

	out := make([]fs.FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir {
			continue
		}
		if p.onlySnapshots && !snapshot.IsName(e.Name) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Apply removes the oldest directories so that at most keep remain. It stops
// at the first removal that fails and returns what was removed until then.
func (p *Pruner) Apply(ctx context.Context, root string, keep int) ([]string, error) {
	victims, err := p.Plan(root, keep)
	if err != nil {
		return nil, err
	}

	p.log.Info("REMOVE: %v", victims)
	if len(victims) == 0 {
		return nil, nil
	}

	removed := make([]string, 0, len(victims))
	for _, v := range victims {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := p.fs.RemoveAll(v); err != nil {
			return removed, snaperrors.MarkFilesystem(errors.Wrapf(err, "removing %s", v))
		}
		removed = append(removed, v)
	}
	return removed, nil
}
