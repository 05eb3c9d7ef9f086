package registrydoc_test

import (
	"testing"
	"time"

	"github.com/pkgbisect/pkgbisect/pkg/registrydoc"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse time %q: %v", s, err)
	}
	return ts
}

func TestRewrite(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		doc        *registrydoc.Document
		cutoff     string
		wantChange bool
		wantVers   []string
		wantLatest string
	}{
		{
			name: "hides versions published after cutoff",
			doc: &registrydoc.Document{
				Name: "left-pad",
				DistTags: map[string]string{
					"latest": "1.2.0",
				},
				Versions: map[string]registrydoc.VersionInfo{
					"1.0.0": {Version: "1.0.0"},
					"1.1.0": {Version: "1.1.0"},
					"1.2.0": {Version: "1.2.0"},
				},
				Time: map[string]string{
					"created":  "2020-01-01T00:00:00Z",
					"modified": "2021-03-01T00:00:00Z",
					"1.0.0":    "2020-01-01T00:00:00Z",
					"1.1.0":    "2020-06-01T00:00:00Z",
					"1.2.0":    "2021-01-01T00:00:00Z",
				},
			},
			cutoff:     "2020-07-01T00:00:00Z",
			wantChange: true,
			wantVers:   []string{"1.0.0", "1.1.0"},
			wantLatest: "1.1.0",
		},
		{
			name: "no-op when nothing published after cutoff",
			doc: &registrydoc.Document{
				Name: "left-pad",
				DistTags: map[string]string{
					"latest": "1.0.0",
				},
				Versions: map[string]registrydoc.VersionInfo{
					"1.0.0": {Version: "1.0.0"},
				},
				Time: map[string]string{
					"1.0.0": "2020-01-01T00:00:00Z",
				},
			},
			cutoff:     "2025-01-01T00:00:00Z",
			wantChange: false,
			wantVers:   []string{"1.0.0"},
			wantLatest: "1.0.0",
		},
		{
			name: "removes dist-tag when no versions survive",
			doc: &registrydoc.Document{
				Name: "left-pad",
				DistTags: map[string]string{
					"latest": "1.0.0",
					"next":   "1.0.0",
				},
				Versions: map[string]registrydoc.VersionInfo{
					"1.0.0": {Version: "1.0.0"},
				},
				Time: map[string]string{
					"1.0.0": "2021-01-01T00:00:00Z",
				},
			},
			cutoff:     "2020-01-01T00:00:00Z",
			wantChange: true,
			wantVers:   []string{},
		},
		{
			name: "version with no time entry is never hidden",
			doc: &registrydoc.Document{
				Name: "left-pad",
				DistTags: map[string]string{
					"latest": "2.0.0",
				},
				Versions: map[string]registrydoc.VersionInfo{
					"1.0.0": {Version: "1.0.0"},
					"2.0.0": {Version: "2.0.0"},
				},
				Time: map[string]string{
					"1.0.0": "2020-01-01T00:00:00Z",
				},
			},
			cutoff:     "2019-01-01T00:00:00Z",
			wantChange: true,
			wantVers:   []string{"2.0.0"},
			wantLatest: "2.0.0",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cutoff := mustParse(t, tc.cutoff)
			changed := registrydoc.Rewrite(tc.doc, cutoff)
			if changed != tc.wantChange {
				t.Errorf("Rewrite() changed = %v, want %v", changed, tc.wantChange)
			}

			gotVers := make([]string, 0, len(tc.doc.Versions))
			for v := range tc.doc.Versions {
				gotVers = append(gotVers, v)
			}
			if len(gotVers) != len(tc.wantVers) {
				t.Errorf("surviving versions = %v, want %v", gotVers, tc.wantVers)
			}
			for _, v := range tc.wantVers {
				if _, ok := tc.doc.Versions[v]; !ok {
					t.Errorf("expected version %q to survive, it did not", v)
				}
			}

			if tc.wantLatest != "" {
				if got := tc.doc.DistTags["latest"]; got != tc.wantLatest {
					t.Errorf("dist-tags.latest = %q, want %q", got, tc.wantLatest)
				}
			}
		})
	}
}

func TestRewrite_reservedKeysNeverHidden(t *testing.T) {
	t.Parallel()

	doc := &registrydoc.Document{
		Name:     "left-pad",
		DistTags: map[string]string{"latest": "1.0.0"},
		Versions: map[string]registrydoc.VersionInfo{
			"1.0.0": {Version: "1.0.0"},
		},
		Time: map[string]string{
			"created":  "2099-01-01T00:00:00Z",
			"modified": "2099-01-01T00:00:00Z",
			"1.0.0":    "2020-01-01T00:00:00Z",
		},
	}

	registrydoc.Rewrite(doc, mustParse(t, "2019-01-01T00:00:00Z"))

	if _, ok := doc.Time["created"]; !ok {
		t.Errorf("reserved key %q should never be deleted by Rewrite", "created")
	}
}

func TestRewriteAbbreviated(t *testing.T) {
	t.Parallel()

	doc := &registrydoc.AbbreviatedDocument{
		Name:     "left-pad",
		DistTags: map[string]string{"latest": "1.2.0"},
		Versions: map[string]registrydoc.AbbreviatedVersion{
			"1.0.0": {Version: "1.0.0"},
			"1.2.0": {Version: "1.2.0"},
		},
	}
	timeMap := map[string]string{
		"1.0.0": "2020-01-01T00:00:00Z",
		"1.2.0": "2021-01-01T00:00:00Z",
	}

	changed := registrydoc.RewriteAbbreviated(doc, timeMap, mustParse(t, "2020-06-01T00:00:00Z"))
	if !changed {
		t.Fatalf("expected RewriteAbbreviated to report a change")
	}
	if _, ok := doc.Versions["1.2.0"]; ok {
		t.Errorf("version 1.2.0 should have been hidden")
	}
	if got := doc.DistTags["latest"]; got != "1.0.0" {
		t.Errorf("dist-tags.latest = %q, want %q", got, "1.0.0")
	}
}
