package station

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// diskRecord is the on-disk shape for one station, kept separate from
// Station so JSON tags don't leak into the in-memory type.
type diskRecord struct {
	Station
}

// Persist writes the entire station table to path as gzip-compressed
// JSON, via a write-to-temp-then-rename so a crash mid-write never
// corrupts the previous snapshot.
func (db *DB) Persist(path string) error {
	db.mu.Lock()
	records := make([]diskRecord, 0, len(db.stations))
	for _, sta := range db.stations {
		records = append(records, diskRecord{Station: sta.snapshot()})
	}
	db.mu.Unlock()

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".station-db-*.tmp")
	if err != nil {
		return fmt.Errorf("station: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once the rename below succeeds

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	if err := enc.Encode(records); err != nil {
		tmp.Close()
		return fmt.Errorf("station: encode: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("station: flush gzip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("station: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("station: rename into place: %w", err)
	}
	return nil
}

// Load replaces the in-memory table with the contents of path. A
// missing file is not an error (fresh start); a corrupt file is
// reported to the caller so it can log a warning and continue with an
// empty database rather than refusing to start.
func (db *DB) Load(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("station: open: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("station: gzip reader: %w", err)
	}
	defer gz.Close()

	var records []diskRecord
	if err := json.NewDecoder(gz).Decode(&records); err != nil {
		return fmt.Errorf("station: decode: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	db.stations = make(map[string]*Station, len(records))
	for _, r := range records {
		sta := r.Station
		db.stations[sta.Callsign] = &sta
	}
	return nil
}
