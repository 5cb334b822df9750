package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"nostatus/internal/dbx"
	"nostatus/internal/models"
)

// markerKey is the meta entry that records a completed legacy migration.
// Its presence short-circuits every later run.
const markerKey = "legacy_migration"

// Legacy cache files are named <64-hex-pubkey>_<kind>.json.
var legacyFileRe = regexp.MustCompile(`^([a-f0-9]{64})_(followed|nip65|profile)\.json$`)

// MigrationReport summarizes one MigrateFromLegacy run.
type MigrationReport struct {
	RunID       string    `json:"run_id"`
	AlreadyDone bool      `json:"already_done"`
	Migrated    int       `json:"migrated"`
	Failed      int       `json:"failed"`
	FinishedAt  time.Time `json:"finished_at"`
}

// legacyEnvelope is the old file format: a value wrapped with the time it
// was cached.
type legacyEnvelope struct {
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// MigrateFromLegacy converts the old file-based cache at dir into store
// entries, exactly once. The completion marker is checked first, so a
// second run is a no-op with zero writes. Individual files that fail to
// convert are logged and counted, never fatal; the converted entries and
// the marker are committed in one transaction.
func (s *Store) MigrateFromLegacy(ctx context.Context, dir string) (*MigrationReport, error) {
	report := &MigrationReport{RunID: uuid.NewString()}
	log := s.log.With("run_id", report.RunID)

	_, err := s.Get(ctx, KindMeta, markerKey)
	switch {
	case err == nil:
		report.AlreadyDone = true
		return report, nil
	case errors.Is(err, ErrNotFound):
		// first run, proceed
	default:
		// The marker itself is unreadable; migrating again could double
		// apply, so this one is fatal.
		return nil, fmt.Errorf("checking migration marker: %w", err)
	}

	type converted struct {
		kind, key string
		value     []byte
	}
	var entries []converted

	files, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading legacy cache dir: %w", err)
	}

	for _, f := range files {
		if f.IsDir() {
			continue
		}
		m := legacyFileRe.FindStringSubmatch(f.Name())
		if m == nil {
			continue
		}
		pubkey, legacyKind := m[1], m[2]

		kind, value, convErr := convertLegacyFile(filepath.Join(dir, f.Name()), pubkey, legacyKind)
		if convErr != nil {
			log.Warn(ctx, "skipping legacy cache entry", "file", f.Name(), "error", convErr)
			report.Failed++
			continue
		}
		entries = append(entries, converted{kind: kind, key: pubkey, value: value})
	}

	report.FinishedAt = time.Now()
	marker, err := json.Marshal(report)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, e := range entries {
			if err := putEntry(ctx, tx, e.kind, e.key, e.value); err != nil {
				return err
			}
		}
		return putEntry(ctx, tx, KindMeta, markerKey, marker)
	})
	if err != nil {
		return nil, fmt.Errorf("writing migrated entries: %w", err)
	}

	report.Migrated = len(entries)
	if report.Migrated > 0 || report.Failed > 0 {
		log.Info(ctx, "legacy cache migrated", "migrated", report.Migrated, "failed", report.Failed)
	}
	return report, nil
}

// convertLegacyFile reads one legacy file and re-encodes its value in the
// current schema.
func convertLegacyFile(path, pubkey, legacyKind string) (kind string, value []byte, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}

	var env legacyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("decoding envelope: %w", err)
	}
	updatedAt := nostr.Timestamp(env.Timestamp.Unix())

	switch legacyKind {
	case "followed":
		var follows []string
		if err := json.Unmarshal(env.Data, &follows); err != nil {
			return "", nil, fmt.Errorf("decoding followed list: %w", err)
		}
		list := models.FollowList{PubKey: pubkey, Follows: follows, UpdatedAt: updatedAt}
		value, err = json.Marshal(list)
		return KindFollowList, value, err

	case "nip65":
		// Old format: a list of [url, policy] pairs, policy null meaning
		// read+write.
		var pairs [][]*string
		if err := json.Unmarshal(env.Data, &pairs); err != nil {
			return "", nil, fmt.Errorf("decoding relay pairs: %w", err)
		}
		list := models.RelayList{PubKey: pubkey, UpdatedAt: updatedAt}
		for _, pair := range pairs {
			if len(pair) == 0 || pair[0] == nil || *pair[0] == "" {
				continue
			}
			desc := models.RelayDescriptor{URL: *pair[0], Read: true, Write: true}
			if len(pair) > 1 && pair[1] != nil {
				switch *pair[1] {
				case "read":
					desc.Write = false
				case "write":
					desc.Read = false
				}
			}
			list.Relays = append(list.Relays, desc)
		}
		value, err = json.Marshal(list)
		return KindRelayList, value, err

	case "profile":
		var profile models.ProfileMetadata
		if err := json.Unmarshal(env.Data, &profile); err != nil {
			return "", nil, fmt.Errorf("decoding profile: %w", err)
		}
		value, err = json.Marshal(profile)
		return KindProfile, value, err

	default:
		return "", nil, fmt.Errorf("unknown legacy kind %q", legacyKind)
	}
}
