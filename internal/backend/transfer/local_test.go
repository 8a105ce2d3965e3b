package transfer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesseldata/vesseldata/internal/backend/plan"
	"github.com/vesseldata/vesseldata/internal/backend/proc"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

func writeTestFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func localDef() types.TransferDefinition {
	return types.TransferDefinition{
		ID:           "micro",
		Category:     types.CategoryCollectionSystem,
		TransferType: types.TransferLocalDir,
	}
}

func TestLocalTest(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	a := &localAdapter{def: localDef()}

	report := a.Test(context.Background(), Paths{SourceDir: src, DestDir: dst})
	assert.True(t, report.OK)

	report = a.Test(context.Background(), Paths{SourceDir: filepath.Join(src, "missing"), DestDir: dst})
	assert.False(t, report.OK)
}

func TestEnumerateLocal(t *testing.T) {
	src := t.TempDir()
	writeTestFile(t, src, "a.raw", "12345")
	writeTestFile(t, src, "sub/b.raw", "1")

	entries, err := enumerateLocal(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	byPath := map[string]plan.FileInfo{}
	for _, e := range entries {
		byPath[e.Path] = e
	}
	assert.Equal(t, int64(5), byPath["a.raw"].Size)
	assert.True(t, byPath["sub"].IsDir)
	assert.Equal(t, int64(1), byPath["sub/b.raw"].Size)
}

func TestLocalCopy(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "a.raw", "hello")
	writeTestFile(t, src, "sub/b.raw", "world!")

	a := &localAdapter{def: localDef()}
	p := plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files:     []plan.File{{Path: "a.raw", Size: 5}, {Path: "sub/b.raw", Size: 6}},
		Dirs:      []string{"sub", "empty"},
	}

	var gotHandle bool
	res, err := a.Copy(context.Background(), p, func(h proc.Handle) { gotHandle = true })
	require.NoError(t, err)
	assert.True(t, gotHandle)
	assert.Equal(t, int64(11), res.BytesMoved)
	assert.Equal(t, int64(2), res.FilesMoved)
	assert.Empty(t, res.Failures)

	got, err := os.ReadFile(filepath.Join(dst, "a.raw"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	info, err := os.Stat(filepath.Join(dst, "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Sources stay put by default.
	_, err = os.Stat(filepath.Join(src, "a.raw"))
	assert.NoError(t, err)
}

func TestLocalCopyRemoveSourceFiles(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "a.raw", "data")

	def := localDef()
	def.RemoveSourceFiles = true
	a := &localAdapter{def: def}

	_, err := a.Copy(context.Background(), plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files:     []plan.File{{Path: "a.raw", Size: 4}},
	}, nil)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(src, "a.raw"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "a.raw"))
	assert.NoError(t, err)
}

func TestLocalCopySyncToDestPrunes(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "keep.raw", "k")
	writeTestFile(t, dst, "stale.raw", "s")

	def := localDef()
	def.SyncToDest = true
	a := &localAdapter{def: def}

	res, err := a.Copy(context.Background(), plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files:     []plan.File{{Path: "keep.raw", Size: 1}},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	_, err = os.Stat(filepath.Join(dst, "stale.raw"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dst, "keep.raw"))
	assert.NoError(t, err)
}

func TestLocalCopySyncToDestKeepsDeferred(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "cast.raw", "still being written")
	writeTestFile(t, dst, "cast.raw", "last complete copy")
	writeTestFile(t, dst, "stale.raw", "s")

	def := localDef()
	def.SyncToDest = true
	a := &localAdapter{def: def}

	// The plan deferred cast.raw (too fresh), so this run carries no
	// files; the destination copy from the previous run must survive.
	res, err := a.Copy(context.Background(), plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Deferred:  []string{"cast.raw"},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Failures)

	_, err = os.Stat(filepath.Join(dst, "cast.raw"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dst, "stale.raw"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalCopyAccumulatesFailures(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "good.raw", "ok")

	a := &localAdapter{def: localDef()}
	res, err := a.Copy(context.Background(), plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files: []plan.File{
			{Path: "gone.raw", Size: 1},
			{Path: "good.raw", Size: 2},
		},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.FilesMoved)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "gone.raw", res.Failures[0].Path)
}

func TestLocalCopyPreservesModTime(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "a.raw", "x")

	old := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(src, "a.raw"), old, old))

	a := &localAdapter{def: localDef()}
	_, err := a.Copy(context.Background(), plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files:     []plan.File{{Path: "a.raw", Size: 1}},
	}, nil)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "a.raw"))
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(old))
}

func TestLocalCopyCancellation(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeTestFile(t, src, "a.raw", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &localAdapter{def: localDef()}
	_, err := a.Copy(ctx, plan.Plan{
		SourceDir: src,
		DestDir:   dst,
		Files:     []plan.File{{Path: "a.raw", Size: 1}},
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewBandwidthLimiter(t *testing.T) {
	assert.Nil(t, newBandwidthLimiter(0))

	l := newBandwidthLimiter(100)
	require.NotNil(t, l)
	assert.Equal(t, float64(100*1024), float64(l.Limit()))
}
