package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/vesseldata/vesseldata/internal/store/types"
)

// Sentinel error values.
var (
	// ErrContextUnavailable means a template references voyage state
	// that is not currently set (no active cruise or lowering). The
	// definition is skipped for this cycle, not failed.
	ErrContextUnavailable = errors.New("voyage context unavailable")

	// ErrUnresolvedToken means a template contains a token the engine
	// does not know. This is a configuration error.
	ErrUnresolvedToken = errors.New("unresolved path token")
)

var tokenPattern = regexp.MustCompile(`\{[A-Za-z]+\}`)

// ResolveTokens substitutes every path token in s using the voyage
// context and the reference time. Date tokens resolve in UTC.
func ResolveTokens(s string, vctx types.VoyageContext, now time.Time) (string, error) {
	now = now.UTC()

	if strings.Contains(s, "{cruiseID}") {
		if vctx.CruiseID == "" {
			return "", fmt.Errorf("%w: no active cruise for template %q", ErrContextUnavailable, s)
		}
		s = strings.ReplaceAll(s, "{cruiseID}", vctx.CruiseID)
	}
	if strings.Contains(s, "{loweringID}") {
		if vctx.LoweringID == "" {
			return "", fmt.Errorf("%w: no active lowering for template %q", ErrContextUnavailable, s)
		}
		s = strings.ReplaceAll(s, "{loweringID}", vctx.LoweringID)
	}

	replacer := strings.NewReplacer(
		"{YYYY}", now.Format("2006"),
		"{YY}", now.Format("06"),
		"{mm}", now.Format("01"),
		"{DD}", now.Format("02"),
		"{HH}", now.Format("15"),
		"{MM}", now.Format("04"),
	)
	s = replacer.Replace(s)

	if leftover := tokenPattern.FindString(s); leftover != "" {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedToken, leftover)
	}
	return s, nil
}

// resolveList applies ResolveTokens to each comma-separated pattern.
func resolveList(csv string, vctx types.VoyageContext, now time.Time) ([]string, error) {
	if strings.TrimSpace(csv) == "" {
		return nil, nil
	}

	var out []string
	for _, raw := range strings.Split(csv, ",") {
		pattern := strings.TrimSpace(raw)
		if pattern == "" {
			continue
		}
		resolved, err := ResolveTokens(pattern, vctx, now)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}
