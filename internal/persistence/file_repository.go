package persistence

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"bumpin-grid-bot-go/internal/models"
)

// fileRepository persists the engine state as a single JSON document.
// The file path is derived deterministically from the symbol/market
// pair so multiple engines in one process never share a file.
type fileRepository struct {
	path string
}

// NewFileRepository creates a repository backed by a JSON file under
// dir. Dir is created if it does not exist.
func NewFileRepository(dir, symbol string, marketIndex int) (StateRepository, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建状态目录失败: %w", err)
	}
	path := filepath.Join(dir, "."+StateKey(symbol, marketIndex)+".json")
	return &fileRepository{path: path}, nil
}

// SaveState writes the serialized state to a temp file and renames it
// into place, so a crash mid-write never leaves a truncated snapshot.
func (r *fileRepository) SaveState(state *models.EngineState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, r.path)
}

// LoadState reads and parses the state file if present. Absence and
// parse failure are both reported as (nil, nil).
func (r *fileRepository) LoadState() (*models.EngineState, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var state models.EngineState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt snapshot: treat as no state rather than failing the engine.
		return nil, nil
	}
	return &state, nil
}

func (r *fileRepository) Close() error { return nil }
