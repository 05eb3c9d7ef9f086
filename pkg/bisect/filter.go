package bisect

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Filter decides which packages the driver is allowed to vary the cutoff
// for, via --only/--ignore semver constraints.
type Filter struct {
	only   map[string]*semver.Constraints
	ignore map[string]*semver.Constraints
}

// NewFilter builds a Filter from --only and --ignore flag values, each a
// map of package name to a semver constraint string (e.g. "^2.0.0").
func NewFilter(only, ignore map[string]string) (*Filter, error) {
	f := &Filter{
		only:   map[string]*semver.Constraints{},
		ignore: map[string]*semver.Constraints{},
	}
	for pkg, expr := range only {
		if expr == "" {
			f.only[pkg] = nil
			continue
		}
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return nil, fmt.Errorf("parse --only constraint for %s (%q): %w", pkg, expr, err)
		}
		f.only[pkg] = c
	}
	for pkg, expr := range ignore {
		if expr == "" {
			f.ignore[pkg] = nil
			continue
		}
		c, err := semver.NewConstraint(expr)
		if err != nil {
			return nil, fmt.Errorf("parse --ignore constraint for %s (%q): %w", pkg, expr, err)
		}
		f.ignore[pkg] = c
	}
	return f, nil
}

// Allows reports whether a publication of pkg@version should participate in
// the bisection search. A nil *semver.Constraints stored against a package
// means the flag named the bare package with no range, i.e. "every version".
func (f *Filter) Allows(pkg, version string) bool {
	if f == nil {
		return true
	}

	if c, ok := f.ignore[pkg]; ok {
		if c == nil {
			return false
		}
		if v, err := semver.NewVersion(version); err == nil && c.Check(v) {
			return false
		}
	}

	if len(f.only) == 0 {
		return true
	}
	c, ok := f.only[pkg]
	if !ok {
		return false
	}
	if c == nil {
		return true
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		// Can't evaluate constraints against an unparseable version; err on
		// the side of including it so it isn't silently dropped.
		return true
	}
	return c.Check(v)
}
