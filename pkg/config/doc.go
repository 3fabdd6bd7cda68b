// Package config loads the bootstrap configuration: engine settings (where
// state, logs, journal and backups live) and the provisioning profile (what
// each phase installs).
//
// The document is YAML, layered over built-in defaults, with relative paths
// resolved against the home root and the data directory. Struct constraints
// are enforced with go-playground/validator.
//
//	cfg, err := config.Load(config.DefaultConfigPath(home), home)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Settings.StateFile)
package config
