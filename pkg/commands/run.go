package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	survey "github.com/AlecAivazis/survey/v2"
	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/pkgbisect/pkgbisect/pkg/bisect"
	"github.com/pkgbisect/pkgbisect/pkg/gitinfo"
	"github.com/pkgbisect/pkgbisect/pkg/oracle"
	"github.com/pkgbisect/pkgbisect/pkg/probe"
	"github.com/pkgbisect/pkgbisect/pkg/proxy"
	"github.com/pkgbisect/pkgbisect/pkg/report"
	"github.com/pkgbisect/pkgbisect/pkg/timeline"
)

const defaultUpstream = "https://registry.npmjs.org"

type runFlags struct {
	projectDir string
	goodStr    string
	badStr     string
	runCmd     string
	ignoreStr  string
	onlyStr    string
	yarn       bool
	candidates bool
	debug      bool
	upstream   string
	proxyPort  string

	good time.Time
	bad  time.Time
}

func (f *runFlags) Validate() error {
	var merr error

	if f.projectDir == "" {
		f.projectDir = "."
	}

	// f.bad is left zero when --bad is omitted; Run prompts for it (falling
	// back to time.Now()) since that needs interactive I/O this method
	// intentionally stays free of, to keep it unit-testable.
	if f.badStr != "" {
		t, err := time.Parse(time.RFC3339, f.badStr)
		if err != nil {
			merr = errors.Join(merr, fmt.Errorf("invalid --bad time %q: %w", f.badStr, err))
		} else {
			f.bad = t
		}
	}

	if f.goodStr == "" {
		if ts, err := gitinfo.HeadCommitTime(f.projectDir); err == nil {
			f.good = ts
		} else {
			merr = errors.Join(merr, fmt.Errorf("--good not supplied and could not be inferred from git HEAD: %w", err))
		}
	} else {
		t, err := time.Parse(time.RFC3339, f.goodStr)
		if err != nil {
			merr = errors.Join(merr, fmt.Errorf("invalid --good time %q: %w", f.goodStr, err))
		} else {
			f.good = t
		}
	}

	if f.upstream == "" {
		f.upstream = defaultUpstream
	}
	if f.proxyPort == "" {
		f.proxyPort = "4873"
	}

	return merr
}

// parseConstraintList parses a comma-separated list of entries, each either
// a bare package name ("left-pad", matching every version of it) or a
// pkg@range pair ("left-pad@^1.0.0"). The range is split off the last "@" so
// a leading scope marker ("@scope/pkg", "@scope/pkg@^1.0.0") survives intact.
func parseConstraintList(raw string) (map[string]string, error) {
	out := map[string]string{}
	if raw == "" {
		return out, nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.LastIndex(part, "@")
		if idx <= 0 {
			out[part] = ""
			continue
		}
		out[part[:idx]] = part[idx+1:]
	}
	return out, nil
}

// RunCommand bisects a registry-publication regression.
type RunCommand struct {
	cli.BaseCommand

	flags *runFlags
}

func (c *RunCommand) Desc() string {
	return "Binary-search registry publications to find the one that broke the project."
}

func (c *RunCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

Finds the npm/yarn registry publication that introduced a regression,
by reinstalling the project's dependency tree as of successively narrower
cutoff times and asking whether it still works.
`
}

func (c *RunCommand) Flags() *cli.FlagSet {
	c.flags = &runFlags{}
	set := c.NewFlagSet()
	sec := set.NewSection("OPTIONS")

	sec.StringVar(&cli.StringVar{
		Name:   "project-dir",
		Usage:  "The project directory to reinstall and test. Defaults to the current directory.",
		EnvVar: "PKGBISECT_PROJECT_DIR",
		Target: &c.flags.projectDir,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "good",
		Usage:  "RFC3339 timestamp at which the project is known to work. Defaults to the HEAD commit time.",
		EnvVar: "PKGBISECT_GOOD",
		Target: &c.flags.goodStr,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "bad",
		Usage:  "RFC3339 timestamp at which the project is known to be broken. Prompted if omitted; defaults to now if left blank.",
		EnvVar: "PKGBISECT_BAD",
		Target: &c.flags.badStr,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "run",
		Usage:  "Shell command whose exit code determines pass (0) or fail (nonzero). If omitted, prompts interactively after each probe.",
		EnvVar: "PKGBISECT_RUN",
		Target: &c.flags.runCmd,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "ignore",
		Usage:  "Comma-separated pkg@semver-range list of publications to exclude from the search.",
		EnvVar: "PKGBISECT_IGNORE",
		Target: &c.flags.ignoreStr,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "only",
		Usage:  "Comma-separated pkg@semver-range allowlist; publications outside it are never treated as a candidate.",
		EnvVar: "PKGBISECT_ONLY",
		Target: &c.flags.onlyStr,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "upstream",
		Usage:  "The real registry to forward to.",
		EnvVar: "PKGBISECT_UPSTREAM",
		Target: &c.flags.upstream,
	})

	sec.StringVar(&cli.StringVar{
		Name:   "proxy-port",
		Usage:  "Port for the local intercept proxy. Defaults to 4873.",
		EnvVar: "PKGBISECT_PROXY_PORT",
		Target: &c.flags.proxyPort,
	})

	sec.BoolVar(&cli.BoolVar{
		Name:   "yarn",
		Usage:  "Use yarn instead of npm to reinstall dependencies.",
		EnvVar: "PKGBISECT_YARN",
		Target: &c.flags.yarn,
	})

	sec.BoolVar(&cli.BoolVar{
		Name:   "candidates",
		Usage:  "Print the candidate publications found by the initial probes and exit without bisecting.",
		EnvVar: "PKGBISECT_CANDIDATES",
		Target: &c.flags.candidates,
	})

	sec.BoolVar(&cli.BoolVar{
		Name:   "debug",
		Usage:  "Print the estimated number of remaining probes before each step. The good/bad interval bounds are not printed.",
		EnvVar: "PKGBISECT_DEBUG",
		Target: &c.flags.debug,
	})

	return set
}

func (c *RunCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	if err := c.flags.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := logging.NewFromEnv("PKGBISECT_")
	ctx = logging.WithLogger(ctx, logger)

	if c.flags.bad.IsZero() {
		answer := ""
		prompt := &survey.Input{Message: "RFC3339 timestamp the project is known to be broken at (blank for now):"}
		if err := survey.AskOne(prompt, &answer); err != nil {
			return fmt.Errorf("prompt for --bad: %w", err)
		}
		if answer == "" {
			c.flags.bad = time.Now()
		} else {
			t, err := time.Parse(time.RFC3339, answer)
			if err != nil {
				return fmt.Errorf("invalid --bad time %q: %w", answer, err)
			}
			c.flags.bad = t
		}
	}

	ignore, err := parseConstraintList(c.flags.ignoreStr)
	if err != nil {
		return fmt.Errorf("invalid --ignore: %w", err)
	}
	only, err := parseConstraintList(c.flags.onlyStr)
	if err != nil {
		return fmt.Errorf("invalid --only: %w", err)
	}
	filter, err := bisect.NewFilter(only, ignore)
	if err != nil {
		return fmt.Errorf("build filter: %w", err)
	}

	manager := probe.NPM
	if c.flags.yarn {
		manager = probe.Yarn
	}

	var orc oracle.Oracle
	if c.flags.runCmd != "" {
		orc = &oracle.ShellOracle{Command: c.flags.runCmd, Dir: c.flags.projectDir}
	} else {
		orc = &oracle.PromptOracle{}
	}

	printer := report.New(os.Stdout)

	driver := &bisect.Driver{
		Filter: filter,
		Prober: &cliProber{
			projectDir: c.flags.projectDir,
			upstream:   c.flags.upstream,
			proxyPort:  c.flags.proxyPort,
			manager:    manager,
			oracle:     orc,
		},
	}

	if err := driver.Init(ctx, c.flags.good, c.flags.bad); err != nil {
		return fmt.Errorf("initialize bisection: %w", err)
	}

	if c.flags.candidates {
		printer.Candidates(driver.Candidates())
		return nil
	}

	for !driver.Done() {
		if c.flags.debug {
			printer.Interval(driver.RemainingSteps())
		}
		if err := driver.Step(ctx); err != nil {
			return fmt.Errorf("bisection step failed: %w", err)
		}
	}

	culprit, err := driver.Culprit()
	if err != nil {
		return fmt.Errorf("determine culprit: %w", err)
	}
	printer.Culprit(culprit)
	return nil
}

// cliProber wires pkg/proxy + pkg/probe + the chosen oracle into the
// bisect.Prober interface for one probe at a given cutoff.
type cliProber struct {
	projectDir string
	upstream   string
	proxyPort  string
	manager    probe.PackageManager
	oracle     oracle.Oracle
}

func (p *cliProber) Probe(ctx context.Context, cutoff time.Time) (bool, []timeline.Event, error) {
	tl := timeline.New()
	srv, handler, err := proxy.New(p.proxyPort, proxy.Config{
		Upstream: p.upstream,
		Cutoff:   cutoff,
		Timeline: tl,
	})
	if err != nil {
		return false, nil, fmt.Errorf("start proxy: %w", err)
	}

	proxyCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- srv.Start(proxyCtx, handler) }()
	defer func() {
		cancel()
		<-done
	}()

	runner := &probe.Runner{
		ProjectDir: p.projectDir,
		ProxyAddr:  srv.Addr(),
		Manager:    p.manager,
	}
	result, err := runner.Run(ctx, cutoff)
	if err != nil {
		return false, nil, fmt.Errorf("run probe: %w", err)
	}
	if result.InstallErr != nil {
		return false, nil, fmt.Errorf("probe install at cutoff %s failed: %w", cutoff, result.InstallErr)
	}

	works, err := p.oracle.Works(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("evaluate oracle: %w", err)
	}

	events := append(result.Events, tl.Events()...)
	return works, events, nil
}
