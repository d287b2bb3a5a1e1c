package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aqua777/scico/internal/bibitem"
)

// ledgerPath returns the sidecar file Store's metadata ledger persists
// to, or "" for an in-memory store. The CLI runs each operation
// (index/search/ask/stats) as its own process (spec.md's local,
// single-user model), so the ledger must survive the process exit the
// same way chromem-go's own persistent DB does — chromem-go exposes no
// enumeration primitive to reconstruct it from the collection alone, so
// Store keeps its own copy on disk, one JSON file per collection.
func ledgerPath(persistPath, collectionName string) string {
	if persistPath == "" {
		return ""
	}
	return filepath.Join(persistPath, collectionName+".ledger.json")
}

// loadLedger reads the sidecar file if present. A missing file is not an
// error — it means either an in-memory store or a fresh collection.
func loadLedger(path string) (map[string]bibitem.Chunk, error) {
	if path == "" {
		return make(map[string]bibitem.Chunk), nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]bibitem.Chunk), nil
	}
	if err != nil {
		return nil, fmt.Errorf("vectorstore: read ledger %s: %w", path, err)
	}

	ledger := make(map[string]bibitem.Chunk)
	if err := json.Unmarshal(data, &ledger); err != nil {
		return nil, fmt.Errorf("vectorstore: decode ledger %s: %w", path, err)
	}
	return ledger, nil
}

// saveLedger persists the ledger after every mutating call (Add,
// DeleteByItem, Clear). No-op for in-memory stores. Written via a
// temp-file-then-rename so a crash mid-write never leaves a truncated
// ledger that disagrees with chromem-go's own on-disk state.
func saveLedger(path string, ledger map[string]bibitem.Chunk) error {
	if path == "" {
		return nil
	}

	data, err := json.Marshal(ledger)
	if err != nil {
		return fmt.Errorf("vectorstore: encode ledger %s: %w", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("vectorstore: write ledger temp file %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("vectorstore: rename ledger temp file to %s: %w", path, err)
	}
	return nil
}
