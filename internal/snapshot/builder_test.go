package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	snaperrors "github.com/raoulx24/snapmirror/internal/errors"
	"github.com/raoulx24/snapmirror/internal/fs"
	"github.com/raoulx24/snapmirror/internal/logging"
	"github.com/raoulx24/snapmirror/internal/mirror"
)

type mockMirror struct {
	mock.Mock
}

func (m *mockMirror) Run(ctx context.Context, req mirror.Request) (mirror.Result, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(mirror.Result), args.Error(1)
}

func forSource(src string) any {
	return mock.MatchedBy(func(r mirror.Request) bool { return r.Source == src })
}

var testNow = time.Date(2024, 3, 5, 14, 7, 0, 0, time.UTC)

func newTestBuilder(m Mirror, opts ...Option) *Builder {
	opts = append([]Option{WithLocation(time.UTC)}, opts...)
	return NewBuilder(nil, m, logging.NewRecorder(), opts...)
}

func TestBuilder_Layout(t *testing.T) {
	b := newTestBuilder(nil)
	snapPath, targets := b.Layout(Plan{
		Root:    "/backups",
		Sources: []string{"/data/app1/", "/data/app2/"},
		Now:     testNow,
	})

	assert.Equal(t, filepath.Join("/backups", "2024-03-05~1407"), snapPath)
	require.Len(t, targets, 2)
	assert.Equal(t, Target{Source: "/data/app1/", Destination: filepath.Join("/backups", "2024-03-05~1407", "app1"), Label: "app1"}, targets[0])
	assert.Equal(t, Target{Source: "/data/app2/", Destination: filepath.Join("/backups", "2024-03-05~1407", "app2"), Label: "app2"}, targets[1])
}

func TestBuilder_CreatesDirectoriesBeforeMirroring(t *testing.T) {
	root := t.TempDir()
	m := &mockMirror{}

	var order []string
	for _, app := range []string{"app1", "app2"} {
		dst := filepath.Join(root, "2024-03-05~1407", app)
		m.On("Run", mock.Anything, forSource("/data/"+app+"/")).
			Run(func(args mock.Arguments) {
				req := args.Get(1).(mirror.Request)
				assert.Equal(t, dst, req.Destination)
				assert.Equal(t, app, req.Label)
				st, err := os.Stat(req.Destination)
				require.NoError(t, err)
				assert.True(t, st.IsDir())
				order = append(order, app)
			}).
			Return(mirror.Result{ExitCode: 0, Lines: 4}, nil).Once()
	}

	b := newTestBuilder(m)
	snap, err := b.Build(context.Background(), Plan{
		Root:    root,
		Sources: []string{"/data/app1/", "/data/app2/"},
		Now:     testNow,
		CycleID: "01TEST",
	})
	require.NoError(t, err)
	m.AssertExpectations(t)

	assert.Equal(t, []string{"app1", "app2"}, order)
	assert.Equal(t, "2024-03-05~1407", snap.Name)

	man, err := ReadManifest(fs.New(), snap.Path)
	require.NoError(t, err)
	assert.Equal(t, StatusComplete, man.Status)
	assert.Equal(t, "01TEST", man.CycleID)
	require.Len(t, man.Sources, 2)
	assert.Equal(t, 4, man.Sources[1].Lines)
	assert.Equal(t, StatusComplete, man.Sources[1].Status)
}

func TestBuilder_FirstFailureStopsTheBuild(t *testing.T) {
	root := t.TempDir()
	m := &mockMirror{}
	m.On("Run", mock.Anything, forSource("/data/app1/")).
		Return(mirror.Result{ExitCode: 23}, snaperrors.MarkMirror(errors.New("exit 23"))).Once()

	b := newTestBuilder(m)
	snap, err := b.Build(context.Background(), Plan{
		Root:    root,
		Sources: []string{"/data/app1/", "/data/app2/"},
		Now:     testNow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))
	m.AssertNotCalled(t, "Run", mock.Anything, forSource("/data/app2/"))

	// The partial snapshot is left on disk.
	_, statErr := os.Stat(filepath.Join(root, "2024-03-05~1407", "app1"))
	assert.NoError(t, statErr)
	_, statErr = os.Stat(filepath.Join(root, "2024-03-05~1407", "app2"))
	assert.True(t, os.IsNotExist(statErr))

	man, err := ReadManifest(fs.New(), snap.Path)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, man.Status)
	assert.Equal(t, 23, man.Sources[0].ExitCode)
	assert.Equal(t, StatusFailed, man.Sources[0].Status)
	assert.Equal(t, StatusPending, man.Sources[1].Status)
}

func TestBuilder_UnmarkedMirrorErrorIsMarked(t *testing.T) {
	m := &mockMirror{}
	m.On("Run", mock.Anything, mock.Anything).Return(mirror.Result{ExitCode: -1}, errors.New("transport")).Once()

	_, err := newTestBuilder(m).Build(context.Background(), Plan{Root: t.TempDir(), Sources: []string{"/x/"}, Now: testNow})
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))
}

func TestBuilder_CollisionFailsLoudly(t *testing.T) {
	root := t.TempDir()
	m := &mockMirror{}
	m.On("Run", mock.Anything, forSource("/data/app1/")).Return(mirror.Result{}, nil).Once()

	b := newTestBuilder(m)
	first, err := b.Build(context.Background(), Plan{Root: root, Sources: []string{"/data/app1/"}, Now: testNow, CycleID: "first"})
	require.NoError(t, err)

	manifestPath := filepath.Join(first.Path, ManifestName)
	before, err := os.ReadFile(manifestPath)
	require.NoError(t, err)

	// A second cycle in the same minute.
	second, err := b.Build(context.Background(), Plan{Root: root, Sources: []string{"/data/app1/"}, Now: testNow, CycleID: "second"})
	require.Error(t, err)
	assert.Nil(t, second)
	assert.True(t, errors.Is(err, snaperrors.ErrFilesystem))
	m.AssertNumberOfCalls(t, "Run", 1)

	after, err := os.ReadFile(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "the earlier snapshot's manifest is untouched")

	mf, err := ReadManifest(fs.New(), first.Path)
	require.NoError(t, err)
	assert.Equal(t, "first", mf.CycleID)
	assert.Equal(t, StatusComplete, mf.Status)
}

type failingMkdirFS struct {
	*fs.OSFS
}

func (failingMkdirFS) MkdirAll(string) error { return os.ErrPermission }

func TestBuilder_SnapshotRootCreationFails(t *testing.T) {
	m := &mockMirror{}
	b := NewBuilder(failingMkdirFS{fs.New()}, m, logging.Nop{})

	_, err := b.Build(context.Background(), Plan{Root: t.TempDir(), Sources: []string{"/data/app1/"}, Now: testNow})
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperrors.ErrFilesystem))
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestBuilder_Parallel(t *testing.T) {
	root := t.TempDir()
	m := &mockMirror{}

	var mu sync.Mutex
	seen := map[string]bool{}
	m.On("Run", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(mirror.Request)
			_, err := os.Stat(req.Destination)
			assert.NoError(t, err)
			mu.Lock()
			seen[req.Label] = true
			mu.Unlock()
		}).
		Return(mirror.Result{}, nil).Times(3)

	b := newTestBuilder(m, WithParallelism(2))
	_, err := b.Build(context.Background(), Plan{
		Root:    root,
		Sources: []string{"/data/a/", "/data/b/", "/data/c/"},
		Now:     testNow,
	})
	require.NoError(t, err)
	m.AssertExpectations(t)
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, seen)
}

func TestBuilder_ParallelFailure(t *testing.T) {
	m := &mockMirror{}
	m.On("Run", mock.Anything, forSource("/data/bad/")).
		Return(mirror.Result{ExitCode: 12}, snaperrors.MarkMirror(errors.New("exit 12")))
	m.On("Run", mock.Anything, mock.Anything).Return(mirror.Result{}, nil).Maybe()

	b := newTestBuilder(m, WithParallelism(4))
	_, err := b.Build(context.Background(), Plan{
		Root:    t.TempDir(),
		Sources: []string{"/data/bad/", "/data/ok/"},
		Now:     testNow,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, snaperrors.ErrMirrorFailed))
}

func TestList(t *testing.T) {
	root := t.TempDir()
	f := fs.New()
	for _, name := range []string{"2024-03-06~0000", "2024-03-05~1407", "lost+found"} {
		require.NoError(t, f.Mkdir(filepath.Join(root, name)))
	}
	require.NoError(t, WriteManifest(f, filepath.Join(root, "2024-03-05~1407"), &Manifest{Name: "2024-03-05~1407", Status: StatusComplete}))
	require.NoError(t, f.WriteFile(filepath.Join(root, ".snapmirror.lock"), nil))

	snaps, err := List(f, root, time.UTC)
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	assert.Equal(t, "2024-03-05~1407", snaps[0].Name)
	require.NotNil(t, snaps[0].Manifest)
	assert.Equal(t, StatusComplete, snaps[0].Manifest.Status)
	assert.Equal(t, "2024-03-06~0000", snaps[1].Name)
	assert.Nil(t, snaps[1].Manifest)
	assert.Equal(t, "lost+found", snaps[2].Name)
	assert.True(t, snaps[2].Timestamp.IsZero())
}
