package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/feedline/feedline/internal/models"
)

// ProfileRepository handles author profile persistence.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new ProfileRepository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Upsert inserts or replaces a profile.
func (r *ProfileRepository) Upsert(ctx context.Context, profile models.Profile) error {
	if profile.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, display_name, avatar) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET display_name = excluded.display_name, avatar = excluded.avatar
	`, profile.ID, profile.DisplayName, nullIfEmpty(profile.Avatar))
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}

// GetProfiles returns profiles for the given ids. Unknown ids are
// silently omitted; callers fall back to the raw id for display.
func (r *ProfileRepository) GetProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf(`SELECT id, display_name, avatar FROM profiles WHERE id IN (%s)`, strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var profile models.Profile
		var avatar sql.NullString
		if err := rows.Scan(&profile.ID, &profile.DisplayName, &avatar); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profile.Avatar = avatar.String
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}
