package shim

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/MarcinKonowalczyk/bfvm/flags"
)

const configFilename = "config.json"

// The env entries a bundle can set to cap the interpreter of its init
// process. They map directly onto bf.Config.
const (
	envMaxSteps = "BF_MAX_STEPS"
	envMaxCells = "BF_MAX_CELLS"
	envOnEOF    = "BF_ON_EOF"
)

type root struct {
	// Path is the path to the rootfs
	Path string `json:"path"`
}

type process struct {
	// Args is the command to run
	Args []string `json:"args"`
	// Env is the environment variables to set
	Env []string `json:"env"`
}

type config struct {
	Root    root    `json:"root"`
	Process process `json:"process"`
}

// Config is the subset of the bundle config the shim acts on: where the
// rootfs is, which source file to run, and the interpreter limits.
type Config struct {
	Root       string
	Entrypoint string
	Options    flags.Options
}

// ReadConfig reads and validates the bundle config at path. The image CMD
// must be a single .bf (or .brainfuck) file that exists under the rootfs.
func ReadConfig(path string) (*Config, error) {
	filePath := filepath.Join(path, configFilename)
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s not found", configFilename)
		}
		return nil, err
	}

	var config config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}

	if config.Root.Path == "" {
		return nil, fmt.Errorf("root path not found in config file %s", configFilename)
	}

	if len(config.Process.Args) != 1 {
		return nil, fmt.Errorf("incorrect number of args in the CMD. Expected 1, got %d", len(config.Process.Args))
	}

	arg0 := config.Process.Args[0]

	if !(filepath.Ext(arg0) == ".bf" || filepath.Ext(arg0) == ".brainfuck") {
		return nil, fmt.Errorf("entry point (%s) is not a .bf file", arg0)
	}

	script := filepath.Join(config.Root.Path, arg0)
	if _, err := os.Stat(script); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("script %s does not exist: %w", arg0, err)
		}
		return nil, fmt.Errorf("checking script %s: %w", arg0, err)
	}

	opts := flags.Options{Filename: script}
	if err := parseLimits(config.Process.Env, &opts); err != nil {
		return nil, err
	}

	return &Config{
		Root:       config.Root.Path,
		Entrypoint: arg0,
		Options:    opts,
	}, nil
}

func parseLimits(env []string, opts *flags.Options) error {
	for _, entry := range env {
		key, value, found := strings.Cut(entry, "=")
		if !found {
			continue
		}
		switch key {
		case envMaxSteps:
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("parsing %s=%s: %w", key, value, err)
			}
			opts.Config.MaxSteps = n
		case envMaxCells:
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return fmt.Errorf("parsing %s=%s: not a non-negative integer", key, value)
			}
			opts.Config.MaxCells = n
		case envOnEOF:
			eof, err := flags.ParseEOF(value)
			if err != nil {
				return fmt.Errorf("parsing %s=%s: %w", key, value, err)
			}
			opts.Config.OnEOF = eof
		}
	}
	return nil
}

func (c *Config) FullPath() string {
	return filepath.Join(c.Root, c.Entrypoint)
}
