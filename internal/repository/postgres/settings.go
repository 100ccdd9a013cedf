package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

type SettingsRepo struct {
	DB DBTX
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (string, bool, error) {
	const getSetting = `
	SELECT value FROM platform_settings
	WHERE key = $1
	`

	var value string
	err := r.DB.QueryRow(ctx, getSetting, key).Scan(&value)

	switch {
	case err == nil:
		return value, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return "", false, nil
	default:
		return "", false, fmt.Errorf("db error: %w", err)
	}
}

func (r *SettingsRepo) Set(ctx context.Context, key string, value string) error {
	const setSetting = `
	INSERT INTO platform_settings (key, value)
	VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`

	_, err := r.DB.Exec(ctx, setSetting, key, value)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
