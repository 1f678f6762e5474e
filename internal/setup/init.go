// Package setup handles pipeline root initialization.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smizuno/caplog/internal/model"
	"github.com/smizuno/caplog/internal/recordio"
	"github.com/smizuno/caplog/internal/vault"
)

const caplogDir = ".caplog"

// Root resolves the pipeline root directory under projectDir.
func Root(projectDir string) string {
	return filepath.Join(projectDir, caplogDir)
}

// Run initializes the .caplog/ directory structure in the given project
// directory. projectName overrides the auto-detected name (defaults to the
// directory basename if empty); vaultPath is required since the publisher
// cannot run without one.
func Run(projectDir, projectName, vaultPath string) error {
	absDir, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("resolve project dir: %w", err)
	}
	if vaultPath == "" {
		return fmt.Errorf("vault path is required")
	}

	base := filepath.Join(absDir, caplogDir)

	if _, err := os.Stat(base); err == nil {
		return fmt.Errorf("%s already exists", base)
	}

	// Create directory structure
	dirs := []string{
		string(model.StageIncoming),
		string(model.StageVoices),
		string(model.StageProcessed),
		string(model.StageReady),
		filepath.Join(string(model.StageArchive), "texts"),
		filepath.Join(string(model.StageArchive), "voices"),
		filepath.Join(string(model.StageArchive), "ready"),
		string(model.StageDeadLetter),
		"quarantine",
		"locks",
		"logs",
	}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(base, d), 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", d, err)
		}
	}

	// Generate and write config.yaml with auto-filled fields
	cfg := generateConfig(absDir, projectName, vaultPath)
	if err := recordio.AtomicWrite(filepath.Join(base, "config.yaml"), cfg); err != nil {
		return fmt.Errorf("write config.yaml: %w", err)
	}

	// Create daemon.lock (empty)
	if err := os.WriteFile(filepath.Join(base, "locks", "daemon.lock"), nil, 0600); err != nil {
		return fmt.Errorf("create daemon.lock: %w", err)
	}

	// Seed the vault capture folders so the first publish never races folder
	// creation.
	if err := vault.EnsureFolders(vaultPath, cfg.Vault.CapturesFolder); err != nil {
		return err
	}

	return nil
}

func generateConfig(projectDir, projectName, vaultPath string) *model.Config {
	cfg := &model.Config{}
	cfg.ApplyDefaults()

	if projectName != "" {
		cfg.Project.Name = projectName
	} else {
		cfg.Project.Name = filepath.Base(projectDir)
	}
	cfg.Project.Created = time.Now().Format(time.RFC3339)
	cfg.Vault.Path = vaultPath
	cfg.Vault.DigestEnabled = true
	cfg.Notify.Enabled = true

	// Engine and model paths have no sensible defaults; leave placeholders
	// the operator must fill in before starting the daemon.
	cfg.Transcriber.EnginePath = "whisper-cli"
	cfg.Transcriber.ModelPath = filepath.Join(projectDir, "models", "ggml-base.bin")

	return cfg
}
