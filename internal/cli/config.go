package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultConfigFile is picked up from the working directory when no --config
// flag is given.
const DefaultConfigFile = "revenant.cue"

// Config is the CUE-backed configuration file. All fields are optional;
// command-line flags override them.
type Config struct {
	Database string `json:"database"`
	Format   string `json:"format"`
	Verbose  bool   `json:"verbose"`
}

// LoadConfig loads a CUE config file. With an empty path, the default file
// is loaded when present and a nil config returned when it is not. An
// explicitly named file must exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err != nil {
			return nil, nil
		}
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("read config %s", path), err)
	}

	val := cuecontext.New().CompileBytes(data, cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("parse config %s", path), err)
	}
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("validate config %s: all fields must be concrete", path), err)
	}

	var cfg Config
	if err := val.Decode(&cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("decode config %s", path), err)
	}
	if cfg.Format != "" && !isValidFormat(cfg.Format) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("config %s: invalid format %q: must be one of %v", path, cfg.Format, ValidFormats))
	}
	return &cfg, nil
}
