package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath returns the config file location under home.
func DefaultConfigPath(home string) string {
	return filepath.Join(home, ".config", "bootstrap", "config.yaml")
}

// ResolveHome returns override when set, otherwise the current user's home.
func ResolveHome(override string) (string, error) {
	if override != "" {
		expanded, err := homedir.Expand(override)
		if err != nil {
			return "", fmt.Errorf("failed to expand home %q: %w", override, err)
		}
		return filepath.Abs(expanded)
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to determine home directory: %w", err)
	}
	return home, nil
}

// Default returns the built-in configuration for home.
func Default(home string) *File {
	return &File{
		Settings: Settings{
			Home:         home,
			DataDir:      ".bootstrap",
			StateFile:    "state",
			LogFile:      "bootstrap.log",
			BackupRoot:   "backups",
			JournalPath:  "journal.db",
			WorkDir:      "work",
			VolumesDir:   "/Volumes",
			MountPattern: "bootstrap-*",
			LogLevel:     "info",
			Tracing: TracingSettings{
				Exporter: "none",
				Insecure: true,
			},
			InstallTimeout: 15 * time.Minute,
			PollInterval:   5 * time.Second,
		},
		Profile: Profile{
			Platform:  "darwin",
			MinFreeGB: 20,
			Homebrew: HomebrewProfile{
				InstallURL:   "https://raw.githubusercontent.com/Homebrew/install/HEAD/install.sh",
				UninstallURL: "https://raw.githubusercontent.com/Homebrew/install/HEAD/uninstall.sh",
				Prefix:       defaultBrewPrefix(),
				Formulae:     []string{"git", "gh", "jq", "ripgrep", "wget"},
			},
			Identity: IdentityProfile{
				KeyPath:    ".ssh/id_ed25519",
				KeyComment: "bootstrap",
				UploadURL:  "https://github.com/settings/ssh/new",
			},
			Shell: ShellProfile{
				FrameworkDir:  ".oh-my-zsh",
				InstallURL:    "https://raw.githubusercontent.com/ohmyzsh/ohmyzsh/master/tools/install.sh",
				RCFile:        ".zshrc",
				Theme:         "robbyrussell",
				Plugins:       []string{"git"},
				LoginShell:    "/bin/zsh",
				FallbackShell: "/bin/bash",
			},
			Dotfiles: DotfilesProfile{
				Dir:   ".dotfiles",
				Links: map[string]string{},
			},
			Toolchains: ToolchainProfile{
				Node: RuntimeProfile{
					Manager:  "nvm",
					Dir:      ".nvm",
					Versions: []string{"lts/*"},
					Default:  "lts/*",
				},
				Python: RuntimeProfile{
					Manager: "pyenv",
					Dir:     ".pyenv",
				},
			},
			Apps: AppsProfile{
				ApplicationsDir: "/Applications",
			},
			Tweaks: []string{
				"defaults write com.apple.finder AppleShowAllFiles -bool true",
				"defaults write com.apple.dock autohide -bool true",
				"defaults write NSGlobalDomain KeyRepeat -int 2",
			},
			RestartProcesses: []string{"Dock", "Finder"},
		},
	}
}

func defaultBrewPrefix() string {
	if runtime.GOARCH == "arm64" {
		return "/opt/homebrew"
	}
	return "/usr/local"
}

// Load reads the config file at path on top of the defaults for home. A
// missing file is not an error. The result has absolute paths and has been
// validated.
func Load(path, home string) (*File, error) {
	cfg := Default(home)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		// The CLI home override wins over the file.
		if home != "" {
			cfg.Settings.Home = home
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.Resolve(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve makes every path absolute: DataDir against Home, engine files
// against DataDir. Paths starting with ~/ are taken relative to Home.
func (f *File) Resolve() error {
	s := &f.Settings

	home, err := homedir.Expand(s.Home)
	if err != nil {
		return fmt.Errorf("failed to expand home: %w", err)
	}
	s.Home = filepath.Clean(home)

	s.DataDir = under(s.Home, s.Home, s.DataDir)
	s.StateFile = under(s.Home, s.DataDir, s.StateFile)
	s.LogFile = under(s.Home, s.DataDir, s.LogFile)
	s.BackupRoot = under(s.Home, s.DataDir, s.BackupRoot)
	s.WorkDir = under(s.Home, s.DataDir, s.WorkDir)
	if s.JournalPath != "" {
		s.JournalPath = under(s.Home, s.DataDir, s.JournalPath)
	}
	if s.MetricsFile != "" {
		s.MetricsFile = under(s.Home, s.DataDir, s.MetricsFile)
	}
	for i, p := range s.Policies {
		s.Policies[i] = under(s.Home, s.Home, p)
	}
	return nil
}

// HomePath resolves a home-relative profile path.
func (f *File) HomePath(rel string) string {
	return under(f.Settings.Home, f.Settings.Home, rel)
}

// under resolves p against base. A leading ~/ refers to home, the
// configured home root, not the home of the invoking user.
func under(home, base, p string) string {
	if p == "" {
		return base
	}
	if p == "~" {
		return home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(home, strings.TrimPrefix(p, "~/"))
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(base, p)
}

// Validate checks struct constraints and cross-field rules.
func (f *File) Validate() error {
	v := validator.New()
	if err := v.Struct(f); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if f.Profile.Dotfiles.Repo == "" && len(f.Profile.Dotfiles.Links) > 0 {
		if _, err := os.Stat(f.HomePath(f.Profile.Dotfiles.Dir)); err != nil {
			return fmt.Errorf("invalid configuration: dotfiles links require a repo or an existing %s", f.Profile.Dotfiles.Dir)
		}
	}
	for src, dst := range f.Profile.Dotfiles.Links {
		if filepath.IsAbs(src) || filepath.IsAbs(dst) {
			return fmt.Errorf("invalid configuration: dotfiles link %s -> %s must use relative paths", src, dst)
		}
	}
	return nil
}

// SortedLinks returns dotfiles links ordered by home-relative destination.
func (p *DotfilesProfile) SortedLinks() [][2]string {
	out := make([][2]string, 0, len(p.Links))
	for src, dst := range p.Links {
		out = append(out, [2]string{src, dst})
	}
	sort.Slice(out, func(i, j int) bool { return out[i][1] < out[j][1] })
	return out
}

// Marshal renders the configuration as YAML.
func (f *File) Marshal() ([]byte, error) {
	return yaml.Marshal(f)
}
