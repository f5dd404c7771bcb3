package fl

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileExporter writes final global models to a directory as JSON.
type FileExporter struct {
	dir string
	mu  sync.RWMutex
}

func NewFileExporter(dir string) (*FileExporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return &FileExporter{dir: dir}, nil
}

// Export writes m and returns the path of the written file.
func (e *FileExporter) Export(m Model) (string, error) {
	name, err := e.fileName(m.SessionID, m.Version)
	if err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal model: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write model file: %w", err)
	}

	return path, nil
}

func (e *FileExporter) Load(sessionID string, version uint64) (Model, error) {
	name, err := e.fileName(sessionID, version)
	if err != nil {
		return Model{}, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(e.dir, name))
	if err != nil {
		return Model{}, fmt.Errorf("failed to read model file: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return Model{}, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	return m, nil
}

// Versions lists the exported versions of a session in ascending order.
func (e *FileExporter) Versions(sessionID string) ([]uint64, error) {
	prefix := "model_" + sanitizeName(sessionID) + "_v"

	e.mu.RLock()
	defer e.mu.RUnlock()

	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, err
	}

	var versions []uint64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		var version uint64
		if _, err := fmt.Sscanf(strings.TrimPrefix(entry.Name(), prefix), "%d.json", &version); err == nil {
			versions = append(versions, version)
		}
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	return versions, nil
}

func (e *FileExporter) fileName(sessionID string, version uint64) (string, error) {
	name := sanitizeName(sessionID)
	if name == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, sessionID)
	}

	return fmt.Sprintf("model_%s_v%d.json", name, version), nil
}

// sanitizeName keeps only characters that are safe in a file name.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
