package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"publishd/internal/media"
)

const recordColumns = "id, original_path, package_type, title, state, last_state, last_transition, " +
	"platform, media_id, package_dir, file_name, thumbnail_path, metadata_json, " +
	"error_code, error_message, created_at, updated_at"

// Insert persists a brand-new package record.
func (s *Store) Insert(ctx context.Context, rec *media.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.execWithRetry(
		ctx,
		`INSERT INTO packages (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.OriginalPath,
		rec.PackageType,
		nullableString(rec.Title),
		string(rec.State),
		nullableString(string(rec.LastState)),
		nullableString(rec.LastTransition),
		nullableString(rec.Platform),
		nullableString(rec.MediaID),
		nullableString(rec.PackageDir),
		nullableString(rec.FileName),
		nullableString(rec.ThumbnailPath),
		nullableString(rec.MetadataJSON),
		int(rec.ErrorCode),
		nullableString(rec.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

// Update persists changes to an existing package record.
func (s *Store) Update(ctx context.Context, rec *media.Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.execWithRetry(
		ctx,
		`UPDATE packages
         SET original_path = ?, package_type = ?, title = ?, state = ?, last_state = ?,
             last_transition = ?, platform = ?, media_id = ?, package_dir = ?, file_name = ?,
             thumbnail_path = ?, metadata_json = ?, error_code = ?, error_message = ?, updated_at = ?
         WHERE id = ?`,
		rec.OriginalPath,
		rec.PackageType,
		nullableString(rec.Title),
		string(rec.State),
		nullableString(string(rec.LastState)),
		nullableString(rec.LastTransition),
		nullableString(rec.Platform),
		nullableString(rec.MediaID),
		nullableString(rec.PackageDir),
		nullableString(rec.FileName),
		nullableString(rec.ThumbnailPath),
		nullableString(rec.MetadataJSON),
		int(rec.ErrorCode),
		nullableString(rec.ErrorMessage),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update package: %w", err)
	}
	return nil
}

// GetByID fetches a package record by identifier, nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*media.Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+recordColumns+` FROM packages WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return rec, nil
}

// FindByOriginalPath returns the record tracking the given source path, nil
// when the path was never submitted.
func (s *Store) FindByOriginalPath(ctx context.Context, path string) (*media.Record, error) {
	row := s.db.QueryRowContext(
		ensureContext(ctx),
		`SELECT `+recordColumns+` FROM packages WHERE original_path = ? LIMIT 1`,
		path,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by original path: %w", err)
	}
	return rec, nil
}

// List returns package records filtered by state set (or all records when no
// state is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, states ...media.State) ([]*media.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM packages`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY created_at`
	return s.queryRecords(ctx, query, args...)
}

// ListExcluding returns package records whose state is outside the given
// set, ordered by creation time. This backs the startup recovery sweep.
func (s *Store) ListExcluding(ctx context.Context, states ...media.State) ([]*media.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM packages`
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		query += ` WHERE state NOT IN (` + makePlaceholders(len(states)) + `)`
		for _, state := range states {
			args = append(args, string(state))
		}
	}
	query += ` ORDER BY created_at`
	return s.queryRecords(ctx, query, args...)
}

// UpdateState persists a bare state change.
func (s *Store) UpdateState(ctx context.Context, id string, state media.State) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET state = ?, updated_at = ? WHERE id = ?`,
		string(state),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	return nil
}

// UpdatePlatform persists a target platform change.
func (s *Store) UpdatePlatform(ctx context.Context, id string, platform string) error {
	_, err := s.execWithRetry(
		ctx,
		`UPDATE packages SET platform = ?, updated_at = ? WHERE id = ?`,
		nullableString(platform),
		time.Now().UTC().Format(time.RFC3339Nano),
		id,
	)
	if err != nil {
		return fmt.Errorf("update platform: %w", err)
	}
	return nil
}

// Stats returns a count of records grouped by state.
func (s *Store) Stats(ctx context.Context) (map[media.State]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT state, COUNT(1) FROM packages GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("package stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[media.State]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[media.State(state)] = count
	}
	return stats, rows.Err()
}

// Remove deletes a record by identifier.
func (s *Store) Remove(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM packages WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete package: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ClearStable removes records resting in stable states. Mid-pipeline records
// are kept so the recovery sweep still sees them.
func (s *Store) ClearStable(ctx context.Context) (int64, error) {
	stable := media.StableStates()
	args := make([]any, 0, len(stable))
	for _, state := range stable {
		args = append(args, string(state))
	}
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM packages WHERE state IN (`+makePlaceholders(len(stable))+`)`,
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear stable packages: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*media.Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query packages: %w", err)
	}
	defer rows.Close()

	var records []*media.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*media.Record, error) {
	var (
		id             string
		originalPath   string
		packageType    string
		title          sql.NullString
		stateStr       string
		lastState      sql.NullString
		lastTransition sql.NullString
		platform       sql.NullString
		mediaID        sql.NullString
		packageDir     sql.NullString
		fileName       sql.NullString
		thumbnailPath  sql.NullString
		metadataJSON   sql.NullString
		errorCode      int
		errorMessage   sql.NullString
		createdRaw     sql.NullString
		updatedRaw     sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&originalPath,
		&packageType,
		&title,
		&stateStr,
		&lastState,
		&lastTransition,
		&platform,
		&mediaID,
		&packageDir,
		&fileName,
		&thumbnailPath,
		&metadataJSON,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &media.Record{
		ID:             id,
		OriginalPath:   originalPath,
		PackageType:    packageType,
		Title:          title.String,
		State:          media.State(stateStr),
		LastState:      media.State(lastState.String),
		LastTransition: lastTransition.String,
		Platform:       platform.String,
		MediaID:        mediaID.String,
		PackageDir:     packageDir.String,
		FileName:       fileName.String,
		ThumbnailPath:  thumbnailPath.String,
		MetadataJSON:   metadataJSON.String,
		ErrorCode:      media.ErrorCode(errorCode),
		ErrorMessage:   errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
