package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/jobtrail/internal/model"
	"github.com/roach88/jobtrail/internal/publish"
)

var _ publish.Ledger = (*Journal)(nil)

// ExternalID returns the last hosted record id written for an identity key.
func (j *Journal) ExternalID(ctx context.Context, key string) (string, bool, error) {
	var id string
	err := sq.Select("record_id").
		From("external_records").
		Where(sq.Eq{"identity_key": key}).
		RunWith(j.db).
		QueryRowContext(ctx).
		Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("external id: %w", err)
	}
	return id, true, nil
}

// RecordExternal stores the hosted record id written for an identity key.
// created_utc is kept from the first write.
func (j *Journal) RecordExternal(ctx context.Context, key, recordID string) error {
	now := model.Stamp(j.clock.Now())
	_, err := sq.Insert("external_records").
		Columns("identity_key", "record_id", "created_utc", "updated_utc").
		Values(key, recordID, now, now).
		Suffix("ON CONFLICT(identity_key) DO UPDATE SET record_id = excluded.record_id, updated_utc = excluded.updated_utc").
		RunWith(j.db).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("record external %s: %w", key, err)
	}
	return nil
}

// ExternalRecord is a stored identity key to hosted record mapping.
type ExternalRecord struct {
	IdentityKey string `json:"identity_key"`
	RecordID    string `json:"record_id"`
	CreatedUTC  string `json:"created_utc"`
	UpdatedUTC  string `json:"updated_utc"`
}

// External returns the full mapping for an identity key.
func (j *Journal) External(ctx context.Context, key string) (ExternalRecord, bool, error) {
	var r ExternalRecord
	err := sq.Select("identity_key", "record_id", "created_utc", "updated_utc").
		From("external_records").
		Where(sq.Eq{"identity_key": key}).
		RunWith(j.db).
		QueryRowContext(ctx).
		Scan(&r.IdentityKey, &r.RecordID, &r.CreatedUTC, &r.UpdatedUTC)
	if errors.Is(err, sql.ErrNoRows) {
		return ExternalRecord{}, false, nil
	}
	if err != nil {
		return ExternalRecord{}, false, fmt.Errorf("external record: %w", err)
	}
	return r, true, nil
}
