package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"bumpin-grid-bot-go/internal/models"
)

// Ledger appends one immutable, timestamped record per executed trade
// to an append-only NDJSON file (one JSON object per line). Prior
// entries are never rewritten or compacted; the engine only writes,
// it never reads the log back.
type Ledger struct {
	mu   sync.Mutex
	path string
}

// New creates a Ledger writing to a file derived from the
// symbol/market pair under dir. Dir is created if it does not exist.
func New(dir, symbol string, marketIndex int) (*Ledger, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建交易日志目录失败: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf(".trade-log-%s-%d.jsonl", symbol, marketIndex))
	return &Ledger{path: path}, nil
}

// Append writes a single trade record as one line, preserving call
// order. The file is opened in append mode per call so a crash never
// corrupts earlier lines.
func (l *Ledger) Append(record *models.TradeRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(append(line, '\n'))
	return err
}

// Path returns the log file location, mainly for status reporting.
func (l *Ledger) Path() string {
	return l.path
}
