package recordio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Quarantine moves an unparseable record file into root/quarantine under a
// timestamped name. The file is preserved for manual inspection; the stage
// directory is cleared so the watcher stops re-reporting it.
func Quarantine(root, filePath string) (string, error) {
	quarantineDir := filepath.Join(root, "quarantine")
	if err := os.MkdirAll(quarantineDir, 0755); err != nil {
		return "", fmt.Errorf("create quarantine dir: %w", err)
	}

	baseName := filepath.Base(filePath)
	timestamp := time.Now().Format("20060102T150405")
	quarantinePath := filepath.Join(quarantineDir, fmt.Sprintf("%s.%s.corrupt", baseName, timestamp))

	if err := os.Rename(filePath, quarantinePath); err != nil {
		return "", fmt.Errorf("move to quarantine: %w", err)
	}
	return quarantinePath, nil
}
