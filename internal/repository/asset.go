package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetAssetBySymbol retrieves an Asset by its exchange symbol.
func (db *Database) GetAssetBySymbol(ctx context.Context, symbol string) (Asset, error) {
	asset, err := db.assets.GetAssetBySymbol(ctx, symbol)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Asset{}, fmt.Errorf("symbol %s: %w", symbol, ErrAssetNotFound)
		}
		return Asset{}, err
	}
	return asset, nil
}
