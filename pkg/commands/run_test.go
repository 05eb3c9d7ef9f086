package commands

import (
	"testing"
	"time"

	"github.com/abcxyz/pkg/testutil"
)

func TestRunFlagsValidate(t *testing.T) {
	t.Parallel()

	goodTime := "2024-01-01T00:00:00Z"
	badTime := "2024-06-01T00:00:00Z"

	cases := []struct {
		name    string
		flags   runFlags
		wantErr string
	}{
		{
			name: "all fields set",
			flags: runFlags{
				projectDir: t.TempDir(),
				goodStr:    goodTime,
				badStr:     badTime,
				runCmd:     "npm test",
			},
			wantErr: "",
		},
		{
			name: "missing bad leaves it zero for Run to prompt/default",
			flags: runFlags{
				projectDir: t.TempDir(),
				goodStr:    goodTime,
				runCmd:     "npm test",
			},
			wantErr: "",
		},
		{
			name: "missing run command is fine, oracle falls back to prompting",
			flags: runFlags{
				projectDir: t.TempDir(),
				goodStr:    goodTime,
				badStr:     badTime,
			},
			wantErr: "",
		},
		{
			name: "invalid bad timestamp",
			flags: runFlags{
				projectDir: t.TempDir(),
				goodStr:    goodTime,
				badStr:     "not-a-timestamp",
				runCmd:     "npm test",
			},
			wantErr: "invalid --bad time",
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.flags.Validate()
			if diff := testutil.DiffErrString(err, tc.wantErr); diff != "" {
				t.Errorf("Validate() returned unexpected error (-got, +want): %s", diff)
			}
		})
	}
}

func TestRunFlagsValidate_DefaultsProxyAndUpstream(t *testing.T) {
	t.Parallel()

	f := runFlags{
		projectDir: t.TempDir(),
		goodStr:    "2024-01-01T00:00:00Z",
		badStr:     "2024-06-01T00:00:00Z",
		runCmd:     "npm test",
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if f.upstream != defaultUpstream {
		t.Errorf("upstream = %q, want default %q", f.upstream, defaultUpstream)
	}
	if f.proxyPort == "" {
		t.Errorf("expected proxyPort to get a default")
	}
}

func TestRunFlagsValidate_MissingBadLeavesItZero(t *testing.T) {
	t.Parallel()

	f := runFlags{
		projectDir: t.TempDir(),
		goodStr:    "2024-01-01T00:00:00Z",
		runCmd:     "npm test",
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !f.bad.IsZero() {
		t.Errorf("bad = %s, want zero (Run prompts/defaults it)", f.bad)
	}
}

func TestParseConstraintList(t *testing.T) {
	t.Parallel()

	got, err := parseConstraintList("left-pad@^1.0.0, is-odd@>=3, lodash, @scope/pkg, @scope/pkg2@^2.0.0")
	if err != nil {
		t.Fatalf("parseConstraintList: %v", err)
	}
	want := map[string]string{
		"left-pad":    "^1.0.0",
		"is-odd":      ">=3",
		"lodash":      "",
		"@scope/pkg":  "",
		"@scope/pkg2": "^2.0.0",
	}
	for k, v := range want {
		got, ok := got[k]
		if !ok {
			t.Errorf("parseConstraintList()[%q] missing, want %q", k, v)
			continue
		}
		if got != v {
			t.Errorf("parseConstraintList()[%q] = %q, want %q", k, got, v)
		}
	}
}

func TestRunFlagsValidate_GoodTimeIsParsed(t *testing.T) {
	t.Parallel()

	f := runFlags{
		projectDir: t.TempDir(),
		goodStr:    "2024-01-01T00:00:00Z",
		badStr:     "2024-06-01T00:00:00Z",
		runCmd:     "npm test",
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	want, _ := time.Parse(time.RFC3339, "2024-01-01T00:00:00Z")
	if !f.good.Equal(want) {
		t.Errorf("good = %s, want %s", f.good, want)
	}
}
