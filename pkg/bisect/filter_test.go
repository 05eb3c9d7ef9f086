package bisect_test

import (
	"testing"

	"github.com/pkgbisect/pkgbisect/pkg/bisect"
)

func TestFilter_BareNameMatchesEveryVersion(t *testing.T) {
	t.Parallel()

	f, err := bisect.NewFilter(nil, map[string]string{"a": ""})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	if f.Allows("a", "1.0.1") {
		t.Errorf("Allows(a, 1.0.1) = true, want false: bare --ignore entry should hide every version")
	}
	if !f.Allows("b", "2.0.0") {
		t.Errorf("Allows(b, 2.0.0) = false, want true: b is not in --ignore")
	}
}

func TestFilter_ScopedBareNameMatchesEveryVersion(t *testing.T) {
	t.Parallel()

	f, err := bisect.NewFilter(nil, map[string]string{"@scope/pkg": ""})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	if f.Allows("@scope/pkg", "1.0.0") {
		t.Errorf("Allows(@scope/pkg, 1.0.0) = true, want false")
	}
}

func TestFilter_IgnoreRangeHidesOnlyMatchingVersions(t *testing.T) {
	t.Parallel()

	f, err := bisect.NewFilter(nil, map[string]string{"a": "^1.0.0"})
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	if f.Allows("a", "1.0.1") {
		t.Errorf("Allows(a, 1.0.1) = true, want false: matches ignore range ^1.0.0")
	}
	if !f.Allows("a", "2.0.0") {
		t.Errorf("Allows(a, 2.0.0) = false, want true: outside ignore range ^1.0.0")
	}
}

func TestFilter_OnlyAllowlistsNamedPackages(t *testing.T) {
	t.Parallel()

	f, err := bisect.NewFilter(map[string]string{"a": ""}, nil)
	if err != nil {
		t.Fatalf("NewFilter: %v", err)
	}

	if !f.Allows("a", "1.0.1") {
		t.Errorf("Allows(a, 1.0.1) = false, want true: a is in --only")
	}
	if f.Allows("b", "2.0.0") {
		t.Errorf("Allows(b, 2.0.0) = true, want false: b is not in --only")
	}
}

func TestFilter_NilFilterAllowsEverything(t *testing.T) {
	t.Parallel()

	var f *bisect.Filter
	if !f.Allows("anything", "1.2.3") {
		t.Errorf("Allows on a nil Filter = false, want true")
	}
}
