package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"github.com/pscheid92/votepulse/internal/ledger"
)

type encodeFunc func(w io.Writer, doc *ledger.Document) error

func encodeJSON(w io.Writer, doc *ledger.Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// writeAtomic writes doc next to path, reads it back, and swaps it into place.
// On any failure the pending file is removed and path is left untouched.
func writeAtomic(path string, doc *ledger.Document, encode encodeFunc) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithTempDir(filepath.Dir(path)), renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if err := encode(pending, doc); err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := pending.Sync(); err != nil {
		return fmt.Errorf("sync pending file: %w", err)
	}

	if _, err := pending.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind pending file: %w", err)
	}
	var check ledger.Document
	if err := json.NewDecoder(pending).Decode(&check); err != nil {
		return fmt.Errorf("verify pending file: %w", err)
	}
	if err := check.Validate(); err != nil {
		return fmt.Errorf("verify pending file: %w", err)
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace ledger file: %w", err)
	}
	return nil
}

// load reads the ledger at path. A missing file yields an empty document. A file that
// cannot be decoded is moved aside and an empty document is returned.
func load(path string, now int64) (*ledger.Document, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("No ledger file found, starting empty", "path", path)
		return ledger.NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger file: %w", err)
	}

	doc, decodeErr := decode(data)
	if decodeErr == nil {
		return doc, nil
	}

	quarantine := fmt.Sprintf("%s.corrupt-%d", path, now)
	if err := os.Rename(path, quarantine); err != nil {
		return nil, fmt.Errorf("quarantine corrupt ledger: %w", err)
	}
	slog.Error("Ledger file corrupt, moved aside and starting empty",
		"path", path, "quarantine", quarantine, "error", decodeErr)
	return ledger.NewDocument(), nil
}

func decode(data []byte) (*ledger.Document, error) {
	var doc ledger.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	for _, id := range doc.Normalize() {
		slog.Warn("Vote aggregate clamped at zero", "product_id", id, "source", "load")
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}
