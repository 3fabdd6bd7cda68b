package config

import "time"

// File is the on-disk configuration document.
type File struct {
	// Settings controls where the engine keeps its own files.
	Settings Settings `yaml:"settings"`

	// Profile describes what the seven provisioning phases install.
	Profile Profile `yaml:"profile"`
}

// Settings holds engine-level paths and toggles. Relative paths are resolved
// against DataDir, and DataDir itself against Home.
type Settings struct {
	// Home is the root that backups mirror and dotfiles link into.
	Home string `yaml:"home" validate:"required"`

	// DataDir holds state, log, journal and backups.
	DataDir string `yaml:"data_dir" validate:"required"`

	// StateFile is the durable phase completion file.
	StateFile string `yaml:"state_file" validate:"required"`

	// LogFile is the durable, append-only log.
	LogFile string `yaml:"log_file" validate:"required"`

	// BackupRoot is the parent directory of timestamped snapshots.
	BackupRoot string `yaml:"backup_root" validate:"required"`

	// JournalPath is the SQLite run journal. Empty disables the journal.
	JournalPath string `yaml:"journal_path"`

	// WorkDir holds transient downloads; removed on every exit.
	WorkDir string `yaml:"work_dir" validate:"required"`

	// VolumesDir is where installer images get mounted.
	VolumesDir string `yaml:"volumes_dir" validate:"required"`

	// MountPattern is a glob (relative to VolumesDir) of transient mounts to
	// detach during cleanup.
	MountPattern string `yaml:"mount_pattern"`

	// MetricsFile receives a Prometheus textfile dump at exit.
	MetricsFile string `yaml:"metrics_file"`

	// LogLevel is the terminal log level.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Tracing configures span export.
	Tracing TracingSettings `yaml:"tracing"`

	// VerifyCompleted re-checks completed phases and re-runs those whose
	// artifacts are gone.
	VerifyCompleted bool `yaml:"verify_completed"`

	// SkipPlatformCheck disables the host platform precondition.
	SkipPlatformCheck bool `yaml:"skip_platform_check"`

	// InstallTimeout bounds waits on external installers.
	InstallTimeout time.Duration `yaml:"install_timeout" validate:"gt=0"`

	// PollInterval is the increment used while waiting on installers.
	PollInterval time.Duration `yaml:"poll_interval" validate:"gt=0"`

	// Policies lists extra Rego files or directories guarding gateway actions.
	Policies []string `yaml:"policies"`

	// DisabledPolicies names built-in or loaded policies to skip.
	DisabledPolicies []string `yaml:"disabled_policies"`
}

// TracingSettings configures span export.
type TracingSettings struct {
	Exporter string `yaml:"exporter" validate:"omitempty,oneof=none stdout otlp"`
	Endpoint string `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure bool   `yaml:"insecure"`
}

// Profile describes the provisioned machine.
type Profile struct {
	// Platform is the required host OS (runtime.GOOS value).
	Platform string `yaml:"platform" validate:"required"`

	// MinFreeGB is the free disk space required before any phase runs.
	MinFreeGB uint64 `yaml:"min_free_gb"`

	Homebrew   HomebrewProfile  `yaml:"homebrew"`
	Identity   IdentityProfile  `yaml:"identity"`
	Shell      ShellProfile     `yaml:"shell"`
	Dotfiles   DotfilesProfile  `yaml:"dotfiles"`
	Toolchains ToolchainProfile `yaml:"toolchains"`
	Apps       AppsProfile      `yaml:"apps"`

	// Tweaks are command lines run by the final phase. They are split into
	// argv with shell-word rules and never passed to a shell.
	Tweaks []string `yaml:"tweaks" validate:"dive,required"`

	// RestartProcesses are killed after tweaks so they pick up new defaults.
	RestartProcesses []string `yaml:"restart_processes"`
}

// HomebrewProfile configures the package manager.
type HomebrewProfile struct {
	InstallURL   string   `yaml:"install_url" validate:"required,url"`
	UninstallURL string   `yaml:"uninstall_url" validate:"required,url"`
	Prefix       string   `yaml:"prefix" validate:"required"`
	Formulae     []string `yaml:"formulae" validate:"dive,required"`
}

// IdentityProfile configures git identity and the ssh credential.
type IdentityProfile struct {
	Name       string `yaml:"name"`
	Email      string `yaml:"email" validate:"omitempty,email"`
	KeyPath    string `yaml:"key_path" validate:"required"`
	KeyComment string `yaml:"key_comment"`
	// UploadURL is opened so the user can register the public key.
	UploadURL  string `yaml:"upload_url" validate:"omitempty,url"`
	SkipUpload bool   `yaml:"skip_upload"`
}

// ShellProfile configures the shell framework and rc file.
type ShellProfile struct {
	FrameworkDir string   `yaml:"framework_dir" validate:"required"`
	InstallURL   string   `yaml:"install_url" validate:"required,url"`
	RCFile       string   `yaml:"rc_file" validate:"required"`
	Theme        string   `yaml:"theme"`
	Plugins      []string `yaml:"plugins"`
	ExtraLines   []string `yaml:"extra_lines"`
	LoginShell   string   `yaml:"login_shell" validate:"required"`
	// FallbackShell is restored by rollback.
	FallbackShell string `yaml:"fallback_shell" validate:"required"`
}

// DotfilesProfile configures personal configuration linkage.
type DotfilesProfile struct {
	Repo string `yaml:"repo"`
	Dir  string `yaml:"dir" validate:"required"`
	// Links maps repo-relative sources to home-relative link paths.
	Links map[string]string `yaml:"links"`
}

// ToolchainProfile configures language runtimes.
type ToolchainProfile struct {
	Node   RuntimeProfile `yaml:"node"`
	Python RuntimeProfile `yaml:"python"`
}

// RuntimeProfile configures one version-managed runtime.
type RuntimeProfile struct {
	// Manager is the brew formula of the version manager.
	Manager  string   `yaml:"manager"`
	Dir      string   `yaml:"dir"`
	Versions []string `yaml:"versions" validate:"dive,required"`
	Default  string   `yaml:"default"`
}

// AppsProfile configures GUI application installation.
type AppsProfile struct {
	ApplicationsDir string   `yaml:"applications_dir" validate:"required"`
	Casks           []string `yaml:"casks" validate:"dive,required"`
	DMGs            []DMGApp `yaml:"dmgs" validate:"dive"`
}

// DMGApp is an application shipped as a disk image.
type DMGApp struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,url"`
	// App is the bundle name inside the image, e.g. "Foo.app".
	App string `yaml:"app" validate:"required"`
}
