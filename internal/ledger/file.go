package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// fileRecord is the line format of the external ledger file. Consumers
// tail and parse it independently of the primary store.
type fileRecord struct {
	TransactionID string         `json:"transaction_id,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	Kind          string         `json:"kind,omitempty"`
	Amount        int64          `json:"amount"`
	BalanceAfter  *balanceAfter  `json:"balance_after,omitempty"`
	Description   string         `json:"description,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	Category      string         `json:"category"`
	Details       map[string]any `json:"details,omitempty"`
}

type balanceAfter struct {
	Available int64 `json:"available"`
	Reserved  int64 `json:"reserved"`
}

// fileSink appends line-delimited JSON to a single file. Writes are
// best-effort; the caller logs failures and moves on.
type fileSink struct {
	mu   sync.Mutex
	file *os.File
}

func newFileSink(path string) (*fileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &fileSink{file: file}, nil
}

func (s *fileSink) Append(record fileRecord) error {
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.file.Write(append(line, '\n'))
	return err
}

func (s *fileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
