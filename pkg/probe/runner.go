package probe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/abcxyz/pkg/logging"
	"github.com/pkgbisect/pkgbisect/pkg/timeline"
)

// Result is the outcome of one probe: whether the reinstall succeeded, and
// any timeline events found in the install's stderr marker lines.
type Result struct {
	InstallErr error
	Events     []timeline.Event
}

// Runner drives one reinstall cycle against a proxy at ProxyAddr for a
// given cutoff: wipe the dependency tree, set a fresh per-probe cache dir,
// reinstall under the proxy's registry, and tear down unconditionally.
type Runner struct {
	ProjectDir string
	ProxyAddr  string
	Manager    PackageManager
}

// Run executes one probe for cutoff and returns the recorded timeline
// events and any install failure. Cleanup (removing the per-probe cache
// dir) happens on every return path, including a context cancellation.
func (r *Runner) Run(ctx context.Context, cutoff time.Time) (Result, error) {
	logger := logging.FromContext(ctx)

	depDir := filepath.Join(r.ProjectDir, r.Manager.DependencyDir())
	if err := os.RemoveAll(depDir); err != nil {
		return Result{}, fmt.Errorf("wipe dependency dir %s: %w", depDir, err)
	}

	cacheDir, err := os.MkdirTemp("", fmt.Sprintf("pkgbisect-cache-%d-", cutoff.Unix()))
	if err != nil {
		return Result{}, fmt.Errorf("create per-probe cache dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(cacheDir); rmErr != nil {
			logger.WarnContext(ctx, "failed to remove per-probe cache dir", "dir", cacheDir, "error", rmErr)
		}
	}()

	cmd := exec.CommandContext(ctx, r.Manager.Name(), r.Manager.InstallArgs()...)
	cmd.Dir = r.ProjectDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("%s=%s", r.Manager.RegistryEnvVar(), "http://"+r.ProxyAddr+"/"),
		fmt.Sprintf("%s=%s", r.Manager.CacheDirEnvVar(), cacheDir),
		fmt.Sprintf("NPM_BISECT_IGNORE_NEWER_THAN=%s", cutoff.Format(time.RFC3339)),
		"NPM_BISECT_COMPUTE_TIMELINE=1",
	)

	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return Result{}, fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stderr = stderrW
	cmd.Stdout = os.Stdout

	runErr := cmd.Start()
	if runErr == nil {
		runErr = cmd.Wait()
	}
	_ = stderrW.Close()

	events, scanErr := timeline.ScanMarkers(stderrR)
	if scanErr != nil {
		logger.WarnContext(ctx, "failed to scan probe stderr for timeline markers", "error", scanErr)
	}

	if runErr != nil {
		return Result{InstallErr: fmt.Errorf("install failed: %w", runErr), Events: events}, nil
	}
	return Result{Events: events}, nil
}
