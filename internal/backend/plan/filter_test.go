package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func candidate(path string, size int64, age time.Duration) FileInfo {
	return FileInfo{Path: path, Size: size, ModTime: testNow.Add(-age)}
}

func dirCandidate(path string) FileInfo {
	return FileInfo{Path: path, IsDir: true}
}

func baseDef() types.TransferDefinition {
	return types.TransferDefinition{
		ID:        "gravimeter",
		Category:  types.CategoryCollectionSystem,
		SourceDir: "/mnt/gravimeter",
		DestDir:   "/data/warehouse/{cruiseID}/gravimeter",
	}
}

func baseVctx() types.VoyageContext {
	return types.VoyageContext{CruiseID: "FK240315"}
}

func planPaths(p Plan) []string {
	out := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		out = append(out, f.Path)
	}
	return out
}

func TestBuildResolvesTemplates(t *testing.T) {
	p, err := Build(baseDef(), baseVctx(), nil, testNow)
	require.NoError(t, err)
	assert.Equal(t, "/mnt/gravimeter", p.SourceDir)
	assert.Equal(t, "/data/warehouse/FK240315/gravimeter", p.DestDir)
}

func TestBuildIncludeExclude(t *testing.T) {
	def := baseDef()
	def.IncludeFilter = "*.raw,*.log"
	def.ExcludeFilter = "*debug*"

	candidates := []FileInfo{
		candidate("a.raw", 10, time.Hour),
		candidate("b.log", 10, time.Hour),
		candidate("c.tmp", 10, time.Hour),
		candidate("debug/d.raw", 10, time.Hour),
	}

	p, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.raw", "b.log"}, planPaths(p))
	assert.Equal(t, int64(20), p.TotalBytes)
}

func TestBuildIgnoreDominatesInclude(t *testing.T) {
	def := baseDef()
	def.IncludeFilter = "*.raw"
	def.IgnoreFilter = "secret/*"

	candidates := []FileInfo{
		candidate("ok.raw", 1, time.Hour),
		candidate("secret/hidden.raw", 1, time.Hour),
	}

	p, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.raw"}, planPaths(p))
}

func TestBuildStalenessDefersFreshFiles(t *testing.T) {
	def := baseDef()
	def.Staleness = 300

	candidates := []FileInfo{
		candidate("closed.raw", 1, 10*time.Minute),
		candidate("open.raw", 1, 30*time.Second),
	}

	p, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"closed.raw"}, planPaths(p))
	assert.Equal(t, []string{"open.raw"}, p.Deferred)
}

func TestBuildStalenessIgnoredForCruiseData(t *testing.T) {
	def := baseDef()
	def.Category = types.CategoryCruiseData
	def.SourceDir = "/data/warehouse/{cruiseID}"
	def.Staleness = 300

	p, err := Build(def, baseVctx(), []FileInfo{candidate("fresh.raw", 1, time.Second)}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh.raw"}, planPaths(p))
	assert.Empty(t, p.Deferred)
}

func TestBuildSkipEmptyFiles(t *testing.T) {
	def := baseDef()
	def.SkipEmptyFiles = true

	p, err := Build(def, baseVctx(), []FileInfo{
		candidate("empty.raw", 0, time.Hour),
		candidate("full.raw", 5, time.Hour),
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"full.raw"}, planPaths(p))
}

func TestBuildSkipEmptyDirs(t *testing.T) {
	def := baseDef()
	def.SkipEmptyDirs = true

	p, err := Build(def, baseVctx(), []FileInfo{
		dirCandidate("full"),
		dirCandidate("empty"),
		candidate("full/a.raw", 1, time.Hour),
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"full"}, p.Dirs)
}

func TestBuildKeepsEmptyDirsByDefault(t *testing.T) {
	p, err := Build(baseDef(), baseVctx(), []FileInfo{dirCandidate("empty")}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"empty"}, p.Dirs)
}

func TestBuildHidesChecksumManifests(t *testing.T) {
	candidates := []FileInfo{
		candidate(constants.MD5SummaryFilename, 1, time.Hour),
		candidate("sub/"+constants.MD5SummaryMD5Filename, 1, time.Hour),
		candidate("data.raw", 1, time.Hour),
	}

	p, err := Build(baseDef(), baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"data.raw"}, planPaths(p))

	def := baseDef()
	def.IncludeSystemFiles = true
	p, err = Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Len(t, p.Files, 3)
}

func TestBuildCruiseDataExclusions(t *testing.T) {
	def := baseDef()
	def.Category = types.CategoryCruiseData
	def.ExcludedCollectionSystems = []string{"adcp"}
	def.ExcludedExtraDirectories = []string{"scratch"}

	candidates := []FileInfo{
		candidate("adcp/ping.raw", 1, time.Hour),
		candidate("scratch/tmp.txt", 1, time.Hour),
		candidate("gravimeter/g.raw", 1, time.Hour),
	}

	p, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"gravimeter/g.raw"}, planPaths(p))
}

func TestBuildUseStartDate(t *testing.T) {
	def := baseDef()
	def.UseStartDate = true
	vctx := baseVctx()
	vctx.CruiseStart = testNow.Add(-24 * time.Hour)

	p, err := Build(def, vctx, []FileInfo{
		candidate("old.raw", 1, 48*time.Hour),
		candidate("new.raw", 1, time.Hour),
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"new.raw"}, planPaths(p))
}

func TestBuildGlobCrossesSeparators(t *testing.T) {
	def := baseDef()
	def.IncludeFilter = "*.raw"

	p, err := Build(def, baseVctx(), []FileInfo{
		candidate("deep/nested/dir/x.raw", 1, time.Hour),
	}, testNow)
	require.NoError(t, err)
	assert.Equal(t, []string{"deep/nested/dir/x.raw"}, planPaths(p))
}

func TestBuildDeterministic(t *testing.T) {
	def := baseDef()
	candidates := []FileInfo{
		candidate("z.raw", 1, time.Hour),
		candidate("a.raw", 1, time.Hour),
		candidate("m.raw", 1, time.Hour),
	}

	first, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)
	second, err := Build(def, baseVctx(), candidates, testNow)
	require.NoError(t, err)

	assert.Equal(t, []string{"a.raw", "m.raw", "z.raw"}, planPaths(first))
	assert.Equal(t, first, second)
}

func TestBuildInvalidPattern(t *testing.T) {
	def := baseDef()
	def.IncludeFilter = "[unclosed"
	_, err := Build(def, baseVctx(), nil, testNow)
	assert.Error(t, err)
}
