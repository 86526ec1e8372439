package shim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/MarcinKonowalczyk/bfvm/bf"
	"github.com/MarcinKonowalczyk/bfvm/utils"
)

func writeBundle(t *testing.T, args []string, env []string) string {
	t.Helper()
	bundle := t.TempDir()
	rootfs := filepath.Join(bundle, "rootfs")
	if err := os.MkdirAll(rootfs, 0755); err != nil {
		t.Fatal(err)
	}
	for _, arg := range args {
		script := filepath.Join(rootfs, arg)
		if err := os.WriteFile(script, []byte("+[-]"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := config{
		Root:    root{Path: rootfs},
		Process: process{Args: args, Env: env},
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bundle, configFilename), data, 0644); err != nil {
		t.Fatal(err)
	}
	return bundle
}

func TestReadConfig(t *testing.T) {
	bundle := writeBundle(t, []string{"program.bf"}, nil)
	cfg, err := ReadConfig(bundle)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, cfg.Entrypoint, "program.bf")
	utils.AssertEqual(t, cfg.FullPath(), filepath.Join(cfg.Root, "program.bf"))
	utils.AssertEqual(t, cfg.Options.Filename, cfg.FullPath())
	utils.AssertEqual(t, cfg.Options.Config, bf.Config{})
}

func TestReadConfig_Limits(t *testing.T) {
	bundle := writeBundle(t, []string{"program.bf"}, []string{
		"PATH=/usr/bin:/bin",
		"BF_MAX_STEPS=5000",
		"BF_MAX_CELLS=30000",
		"BF_ON_EOF=keep",
	})
	cfg, err := ReadConfig(bundle)
	utils.AssertNoError(t, err)
	utils.AssertEqual(t, cfg.Options.Config, bf.Config{
		MaxSteps: 5000,
		MaxCells: 30000,
		OnEOF:    bf.EOFLeaveUnchanged,
	})
}

func TestReadConfig_BadLimit(t *testing.T) {
	bundle := writeBundle(t, []string{"program.bf"}, []string{"BF_MAX_STEPS=lots"})
	_, err := ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_MissingConfig(t *testing.T) {
	_, err := ReadConfig(t.TempDir())
	utils.AssertError(t, err)
}

func TestReadConfig_WrongExtension(t *testing.T) {
	bundle := writeBundle(t, []string{"program.sh"}, nil)
	_, err := ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_TooManyArgs(t *testing.T) {
	bundle := writeBundle(t, []string{"a.bf", "b.bf"}, nil)
	_, err := ReadConfig(bundle)
	utils.AssertError(t, err)
}

func TestReadConfig_MissingScript(t *testing.T) {
	bundle := writeBundle(t, []string{"program.bf"}, nil)
	if err := os.Remove(filepath.Join(bundle, "rootfs", "program.bf")); err != nil {
		t.Fatal(err)
	}
	_, err := ReadConfig(bundle)
	utils.AssertError(t, err)
}
