// Package probe runs one dependency-reinstall-and-test cycle at a given
// cutoff: it wipes the dependency tree, points the package manager at the
// proxy, installs under a fresh cache directory, and reports the outcome.
package probe

// PackageManager describes the bits of npm/yarn behavior the probe runner
// needs to know to drive either one identically.
type PackageManager interface {
	// Name identifies the manager for logging, e.g. "npm" or "yarn".
	Name() string
	// InstallArgs returns the argv (excluding the binary itself) used to
	// reinstall the dependency tree from the project's lockfile.
	InstallArgs() []string
	// RegistryEnvVar is the environment variable that overrides the
	// registry URL for this manager.
	RegistryEnvVar() string
	// CacheDirEnvVar is the environment variable that overrides the
	// package cache directory for this manager.
	CacheDirEnvVar() string
	// DependencyDir is the directory, relative to the project root, that
	// must be wiped before each probe.
	DependencyDir() string
}

type npmManager struct{}

func (npmManager) Name() string           { return "npm" }
func (npmManager) InstallArgs() []string  { return []string{"install", "--no-audit", "--no-fund"} }
func (npmManager) RegistryEnvVar() string { return "npm_config_registry" }
func (npmManager) CacheDirEnvVar() string { return "npm_config_cache" }
func (npmManager) DependencyDir() string  { return "node_modules" }

type yarnManager struct{}

func (yarnManager) Name() string           { return "yarn" }
func (yarnManager) InstallArgs() []string  { return []string{"install", "--ignore-scripts=false"} }
func (yarnManager) RegistryEnvVar() string { return "YARN_REGISTRY" }
func (yarnManager) CacheDirEnvVar() string { return "YARN_CACHE_FOLDER" }
func (yarnManager) DependencyDir() string  { return "node_modules" }

// NPM is the default package manager.
var NPM PackageManager = npmManager{}

// Yarn is selected with --yarn.
var Yarn PackageManager = yarnManager{}
