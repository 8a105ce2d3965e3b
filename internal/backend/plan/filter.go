package plan

import (
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/vesseldata/vesseldata/internal/store/constants"
	"github.com/vesseldata/vesseldata/internal/store/types"
)

// FileInfo is one candidate entry under a transfer's source directory,
// as enumerated by its protocol adapter. Paths are source-relative and
// slash-separated.
type FileInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// File is one entry of a resolved copy plan.
type File struct {
	Path string
	Size int64
}

// Plan is the concrete, ordered outcome of filtering one definition
// against one candidate set. Adapters consume plans; they never see the
// raw filter strings.
type Plan struct {
	SourceDir string
	DestDir   string

	Files []File
	// Dirs lists directories that must exist at the destination,
	// including ones that carry no planned files (unless the
	// definition skips empty dirs).
	Dirs []string
	// Deferred lists candidates excluded from this run because their
	// modification time fell inside the staleness window. They become
	// eligible on a later evaluation.
	Deferred []string

	TotalBytes int64
}

type matcher struct {
	globs []glob.Glob
}

// compileMatcher builds a matcher from resolved patterns. A path need
// only match one pattern to be affected. '*' crosses directory
// boundaries; patterns match the full source-relative path.
func compileMatcher(patterns []string) (*matcher, error) {
	m := &matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid filter pattern %q: %w", p, err)
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

func (m *matcher) empty() bool {
	return len(m.globs) == 0
}

func (m *matcher) match(p string) bool {
	for _, g := range m.globs {
		if g.Match(p) {
			return true
		}
	}
	return false
}

// systemFilePatterns hide the engine's own metadata files from
// transfers unless the definition opts in.
var systemFilePatterns = []string{
	constants.MD5SummaryFilename,
	constants.MD5SummaryMD5Filename,
	"*/" + constants.MD5SummaryFilename,
	"*/" + constants.MD5SummaryMD5Filename,
}

// Build resolves a definition's templates and filters against the
// candidate set and produces the copy plan for this run. now anchors
// both date-token substitution and the staleness window.
func Build(def types.TransferDefinition, vctx types.VoyageContext, candidates []FileInfo, now time.Time) (Plan, error) {
	sourceDir, err := ResolveTokens(def.SourceDir, vctx, now)
	if err != nil {
		return Plan{}, err
	}
	destDir, err := ResolveTokens(def.DestDir, vctx, now)
	if err != nil {
		return Plan{}, err
	}

	ignore, err := buildIgnore(def, vctx, now)
	if err != nil {
		return Plan{}, err
	}
	includePatterns, err := resolveList(def.IncludeFilter, vctx, now)
	if err != nil {
		return Plan{}, err
	}
	include, err := compileMatcher(includePatterns)
	if err != nil {
		return Plan{}, err
	}
	excludePatterns, err := resolveList(def.ExcludeFilter, vctx, now)
	if err != nil {
		return Plan{}, err
	}
	exclude, err := compileMatcher(excludePatterns)
	if err != nil {
		return Plan{}, err
	}

	p := Plan{SourceDir: sourceDir, DestDir: destDir}
	dirHasFiles := make(map[string]bool)
	var dirs []string

	staleness := time.Duration(def.Staleness) * time.Second

	for _, c := range candidates {
		rel := strings.TrimPrefix(path.Clean(c.Path), "/")
		if rel == "." || rel == "" {
			continue
		}

		// Ignore dominates everything, include filter included.
		if ignore.match(rel) {
			continue
		}

		if c.IsDir {
			dirs = append(dirs, rel)
			continue
		}

		if !include.empty() && !include.match(rel) {
			continue
		}
		if exclude.match(rel) {
			continue
		}

		if def.Category == types.CategoryCollectionSystem && staleness > 0 {
			if now.Sub(c.ModTime) < staleness {
				p.Deferred = append(p.Deferred, rel)
				continue
			}
		}

		if def.UseStartDate && !vctx.CruiseStart.IsZero() && c.ModTime.Before(vctx.CruiseStart) {
			continue
		}

		if def.SkipEmptyFiles && c.Size == 0 {
			continue
		}

		p.Files = append(p.Files, File{Path: rel, Size: c.Size})
		p.TotalBytes += c.Size
		for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
			dirHasFiles[dir] = true
		}
	}

	for _, dir := range dirs {
		if def.SkipEmptyDirs && !dirHasFiles[dir] {
			continue
		}
		p.Dirs = append(p.Dirs, dir)
	}

	sort.Slice(p.Files, func(i, j int) bool { return p.Files[i].Path < p.Files[j].Path })
	sort.Strings(p.Dirs)
	sort.Strings(p.Deferred)

	return p, nil
}

// buildIgnore assembles the ignore matcher: the definition's own ignore
// filter, the engine metadata files when not opted in, and the named
// cruise-data exclusions.
func buildIgnore(def types.TransferDefinition, vctx types.VoyageContext, now time.Time) (*matcher, error) {
	patterns, err := resolveList(def.IgnoreFilter, vctx, now)
	if err != nil {
		return nil, err
	}

	if !def.IncludeSystemFiles {
		patterns = append(patterns, systemFilePatterns...)
	}

	if def.Category == types.CategoryCruiseData {
		for _, name := range def.ExcludedCollectionSystems {
			patterns = append(patterns, name, name+"/*")
		}
		for _, name := range def.ExcludedExtraDirectories {
			patterns = append(patterns, name, name+"/*")
		}
	}

	return compileMatcher(patterns)
}
