package scenes

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"scenegen/internal/domain"
)

var snapshotHeader = []string{"scene_number", "script_line", "scene_type", "props"}

// WriteSnapshot writes scenes as CSV. Props are comma-joined and the style
// column is omitted, so Load reads the file back without styles.
func WriteSnapshot(w io.Writer, scenes []domain.Scene) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(snapshotHeader); err != nil {
		return err
	}
	for _, sc := range scenes {
		row := []string{
			strconv.Itoa(sc.SceneNumber),
			sc.ScriptLine,
			sc.SceneType,
			strings.Join(sc.Props, ","),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSnapshotFile writes the CSV snapshot to path, creating parent directories.
func WriteSnapshotFile(path string, scenes []domain.Scene) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("scenes: ensure snapshot dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("scenes: create snapshot: %w", err)
	}
	if err := WriteSnapshot(f, scenes); err != nil {
		_ = f.Close()
		return fmt.Errorf("scenes: write snapshot: %w", err)
	}
	return f.Close()
}
