package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/foxxcyber/loan-tracker/internal/models"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
)

// GetProfile retrieves the profile of a user
func (db *DB) GetProfile(ctx context.Context, userID int) (*models.Profile, error) {
	p := &models.Profile{}

	err := db.Pool.QueryRow(ctx, `
		SELECT user_id, display_name, avatar_key, updated_at
		FROM profiles
		WHERE user_id = $1
	`, userID).Scan(&p.UserID, &p.DisplayName, &p.AvatarKey, &p.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	return p, nil
}

// UpsertProfile creates or replaces the display name of a user's profile
func (db *DB) UpsertProfile(ctx context.Context, userID int, displayName string) (*models.Profile, error) {
	p := &models.Profile{}

	err := db.Pool.QueryRow(ctx, `
		INSERT INTO profiles (user_id, display_name, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    updated_at = NOW()
		RETURNING user_id, display_name, avatar_key, updated_at
	`, userID, displayName).Scan(&p.UserID, &p.DisplayName, &p.AvatarKey, &p.UpdatedAt)

	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return p, nil
}

// SetProfileAvatar stores a new avatar object key and returns the previous one
func (db *DB) SetProfileAvatar(ctx context.Context, userID int, avatarKey string) (previous *string, err error) {
	err = db.Pool.QueryRow(ctx, `
		WITH old AS (
			SELECT avatar_key FROM profiles WHERE user_id = $1
		)
		INSERT INTO profiles (user_id, avatar_key, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET avatar_key = EXCLUDED.avatar_key,
		    updated_at = NOW()
		RETURNING (SELECT avatar_key FROM old)
	`, userID, avatarKey).Scan(&previous)

	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	return previous, nil
}
