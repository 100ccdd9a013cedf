package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nvoloshin/callmeter/internal/models"
)

type CatalogRepo struct {
	DB DBTX
}

func (r *CatalogRepo) CreatePackage(ctx context.Context, pack models.CoinPackage) (models.CoinPackage, error) {
	const createPackage = `
	INSERT INTO coin_packages (name, price, minutes, total_coins, is_active)
	VALUES ($1, $2, $3, $4, $5)
	RETURNING id, name, price, minutes, total_coins, is_active
	`

	rows, _ := r.DB.Query(ctx, createPackage, pack.Name, pack.Price, pack.Minutes, pack.TotalCoins, pack.IsActive)
	created, err := pgx.CollectOneRow(rows, rowToPackage)
	if err != nil {
		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

func (r *CatalogRepo) ListActivePackages(ctx context.Context) ([]models.CoinPackage, error) {
	const listActive = `
	SELECT id, name, price, minutes, total_coins, is_active
	FROM coin_packages
	WHERE is_active
	ORDER BY price
	`

	rows, _ := r.DB.Query(ctx, listActive)
	packages, err := pgx.CollectRows(rows, rowToPackage)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return packages, nil
}

func rowToPackage(row pgx.CollectableRow) (models.CoinPackage, error) {
	var p models.CoinPackage
	err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Minutes, &p.TotalCoins, &p.IsActive)
	return p, err
}
