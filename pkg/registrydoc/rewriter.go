package registrydoc

import (
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Rewrite hides, in place, every published version of doc whose Time entry
// is strictly after cutoff, and repairs any dist-tag that pointed at a
// hidden version. It reports whether it changed anything.
//
// A version with no parseable Time entry is never hidden: the rewriter only
// ever removes versions it can positively prove were published after the
// cutoff.
func Rewrite(doc *Document, cutoff time.Time) bool {
	if doc == nil {
		return false
	}

	hidden := map[string]bool{}
	for version := range doc.Versions {
		ts, ok := publishTime(doc.Time, version)
		if !ok {
			continue
		}
		if ts.After(cutoff) {
			hidden[version] = true
		}
	}
	if len(hidden) == 0 {
		return false
	}

	for version := range hidden {
		delete(doc.Versions, version)
		delete(doc.Time, version)
	}

	remaining := make([]string, 0, len(doc.Versions))
	for version := range doc.Versions {
		remaining = append(remaining, version)
	}

	for tag, version := range doc.DistTags {
		if !hidden[version] {
			continue
		}
		if next, ok := latestOf(remaining, doc.Time); ok {
			doc.DistTags[tag] = next
		} else {
			delete(doc.DistTags, tag)
		}
	}

	return true
}

// RewriteAbbreviated applies the same cutoff logic to the compact variant,
// given the Time map recovered from a secondary full-document fetch (the
// abbreviated document itself carries no per-version timestamps other than
// Modified).
func RewriteAbbreviated(doc *AbbreviatedDocument, timeMap map[string]string, cutoff time.Time) bool {
	if doc == nil {
		return false
	}

	hidden := map[string]bool{}
	for version := range doc.Versions {
		ts, ok := publishTime(timeMap, version)
		if !ok {
			continue
		}
		if ts.After(cutoff) {
			hidden[version] = true
		}
	}
	if len(hidden) == 0 {
		return false
	}

	for version := range hidden {
		delete(doc.Versions, version)
	}

	remaining := make([]string, 0, len(doc.Versions))
	for version := range doc.Versions {
		remaining = append(remaining, version)
	}

	for tag, version := range doc.DistTags {
		if !hidden[version] {
			continue
		}
		if next, ok := latestOf(remaining, timeMap); ok {
			doc.DistTags[tag] = next
		} else {
			delete(doc.DistTags, tag)
		}
	}

	return true
}

// publishTime returns the parsed Time entry for version, ignoring reserved
// (non-version) keys and anything that doesn't parse as RFC3339.
func publishTime(timeMap map[string]string, version string) (time.Time, bool) {
	if IsReservedTimeKey(version) {
		return time.Time{}, false
	}
	raw, ok := timeMap[version]
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// latestOf picks the surviving version that should become the new target of
// a dist-tag that pointed at a hidden version: latest publish time, ties
// broken by highest semver, then lexicographically.
func latestOf(versions []string, timeMap map[string]string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}

	type candidate struct {
		version string
		ts      time.Time
		hasTS   bool
	}
	cands := make([]candidate, 0, len(versions))
	for _, v := range versions {
		ts, ok := publishTime(timeMap, v)
		cands = append(cands, candidate{version: v, ts: ts, hasTS: ok})
	}

	sort.Slice(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.hasTS && b.hasTS && !a.ts.Equal(b.ts) {
			return a.ts.After(b.ts)
		}
		if a.hasTS != b.hasTS {
			return a.hasTS
		}
		sa, errA := semver.NewVersion(a.version)
		sb, errB := semver.NewVersion(b.version)
		if errA == nil && errB == nil && sa.Compare(sb) != 0 {
			return sa.Compare(sb) > 0
		}
		return a.version > b.version
	})

	return cands[0].version, true
}
