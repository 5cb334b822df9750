package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"nostatus/internal/filex"
)

// ErrNoRecord is returned by LoadRecord when no key record exists at the
// given path, i.e. this is a first run.
var ErrNoRecord = errors.New("no key record")

// LoadRecord reads and decodes the encrypted key record from path.
func LoadRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoRecord
		}
		return nil, fmt.Errorf("reading key record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return &rec, nil
}

// SaveRecord writes the record to path, readable by the owner only.
func SaveRecord(path string, rec *Record) error {
	if _, err := filex.EnsureParentDir(path); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing key record: %w", err)
	}
	return nil
}
