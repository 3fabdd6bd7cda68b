package commands

import (
	"context"
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/openfroyo/bootstrap/pkg/clock"
	"github.com/openfroyo/bootstrap/pkg/config"
	"github.com/openfroyo/bootstrap/pkg/engine"
	"github.com/openfroyo/bootstrap/pkg/gateway"
	"github.com/openfroyo/bootstrap/pkg/policy"
	"github.com/openfroyo/bootstrap/pkg/prompt"
	"github.com/openfroyo/bootstrap/pkg/telemetry"
	"github.com/spf13/afero"
)

// session is the wiring shared by commands that touch the machine: config,
// telemetry, the guarded gateway and the finalizer that ends the process.
type session struct {
	cfg       *config.File
	fs        afero.Fs
	tel       *telemetry.Telemetry
	gw        *gateway.Gateway
	finalizer *engine.Finalizer
	preview   bool
}

// loadConfig resolves the home root and reads the configuration file.
func loadConfig() (*config.File, string, error) {
	home, err := config.ResolveHome(homeDir)
	if err != nil {
		return nil, "", engine.NewValidationError("cannot resolve home directory", err)
	}

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath(home)
	}

	cfg, err := config.Load(path, home)
	if err != nil {
		return nil, path, engine.NewValidationError("cannot load configuration", err)
	}
	return cfg, path, nil
}

// telemetryConfig maps settings onto the telemetry configuration. Preview
// runs leave no metrics file behind.
func telemetryConfig(cfg *config.File, preview bool) *telemetry.Config {
	s := cfg.Settings

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.Logging.Level = s.LogLevel
	if env := os.Getenv("LOG_LEVEL"); env != "" {
		tcfg.Logging.Level = env
	}
	if verbose {
		tcfg.Logging.Level = "debug"
		tcfg.Logging.ShowFields = true
	}
	tcfg.Logging.File = s.LogFile

	tcfg.Tracing.Exporter = s.Tracing.Exporter
	tcfg.Tracing.Endpoint = s.Tracing.Endpoint
	tcfg.Tracing.Insecure = s.Tracing.Insecure

	if !preview {
		tcfg.Metrics.TextfilePath = s.MetricsFile
	}
	return tcfg
}

// newGuard builds the policy engine guarding gateway effects.
func newGuard(ctx context.Context, fs afero.Fs, cfg *config.File, logger *telemetry.Logger) (*policy.Engine, error) {
	guard, err := policy.NewEngine(ctx, logger)
	if err != nil {
		return nil, err
	}
	if err := guard.LoadPolicies(ctx, fs, cfg.Settings.Policies); err != nil {
		return nil, engine.NewValidationError("cannot load policies", err)
	}
	for _, name := range cfg.Settings.DisabledPolicies {
		if err := guard.DisablePolicy(name); err != nil {
			return nil, engine.NewValidationError("cannot disable policy", err)
		}
	}
	return guard, nil
}

// sessionTerminal receives the outcome of sessions that fail before their
// telemetry exists.
var sessionTerminal io.Writer = os.Stderr

// abortSession ends a session that failed while it was being opened. The
// outcome goes through a finalizer like any other exit: to tel when it was
// created, otherwise to the terminal.
func abortSession(tel *telemetry.Telemetry, err error) error {
	if tel == nil {
		tel = telemetry.NewNopTelemetry()
		tel.Logger = telemetry.NewLoggerWithWriters(telemetry.LoggingConfig{Level: "info"}, sessionTerminal, nil,
			!isatty.IsTerminal(os.Stderr.Fd()), clock.RealClock{})
	}
	f := engine.NewFinalizer(engine.FinalizerOptions{Telemetry: tel})
	return &exitError{code: f.Finish(err)}
}

// openSession loads everything a mutating command needs. Once it returns,
// the caller must end the process through s.finish. Failures while opening
// are finalized here and come back as an *exitError.
func openSession(ctx context.Context, preview bool, successMessage string) (*session, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, abortSession(nil, err)
	}

	tel, err := telemetry.NewTelemetry(telemetryConfig(cfg, preview))
	if err != nil {
		return nil, abortSession(nil, engine.NewValidationError("cannot initialize telemetry", err))
	}

	fs := afero.NewOsFs()
	guard, err := newGuard(ctx, fs, cfg, tel.Logger)
	if err != nil {
		return nil, abortSession(tel, err)
	}

	mode := gateway.ModeApply
	if preview {
		mode = gateway.ModePreview
	}
	gw := gateway.New(gateway.Options{
		Mode:      mode,
		FS:        fs,
		Guard:     guard,
		Home:      cfg.Settings.Home,
		Telemetry: tel,
	})

	finalizer := engine.NewFinalizer(engine.FinalizerOptions{
		Gateway:        gw,
		VolumesDir:     cfg.Settings.VolumesDir,
		MountPattern:   cfg.Settings.MountPattern,
		WorkDir:        cfg.Settings.WorkDir,
		Telemetry:      tel,
		SuccessMessage: successMessage,
	})

	return &session{
		cfg:       cfg,
		fs:        fs,
		tel:       tel,
		gw:        gw,
		finalizer: finalizer,
		preview:   preview,
	}, nil
}

// finish runs the finalizer and converts its exit code into the command
// result.
func (s *session) finish(err error) error {
	if code := s.finalizer.Finish(err); code != engine.ExitSuccess {
		return &exitError{code: code}
	}
	return nil
}

// confirmer returns the confirmation source for a command. Forced and
// preview runs never ask.
func (s *session) confirmer(force bool) (prompt.Confirmer, error) {
	if force || s.preview {
		return prompt.Always(), nil
	}
	p, err := prompt.Stdin()
	if errors.Is(err, prompt.ErrNotInteractive) {
		return nil, engine.NewPreconditionError("confirmation needed: run in a terminal or pass --force", err)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
