package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/rl1809/stock-validator/internal/core/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// RunMigrations brings the catalog and inventory schema up to date.
func (m *MySQLAdapter) RunMigrations() error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	driver, err := migratemysql.WithInstance(m.db, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	mg, err := migrate.NewWithInstance("iofs", source, "mysql", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) StoreExists(ctx context.Context, storeID string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM stores WHERE store_id = ? AND deleted_at IS NULL)`, storeID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query store: %w", err)
	}
	return exists, nil
}

func (m *MySQLAdapter) ResolveItems(ctx context.Context, itemIDs []string) ([]domain.CatalogItem, error) {
	if len(itemIDs) == 0 {
		return nil, nil
	}

	query := `
		SELECT menu_id, store_id, name, price, is_hidden
		FROM menus
		WHERE menu_id IN (` + placeholders(len(itemIDs)) + `)
		  AND is_hidden = FALSE AND deleted_at IS NULL`

	rows, err := m.db.QueryContext(ctx, query, anySlice(itemIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query menus: %w", err)
	}
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		var item domain.CatalogItem
		if err := rows.Scan(&item.ItemID, &item.StoreID, &item.Name, &item.UnitPrice, &item.Hidden); err != nil {
			return nil, fmt.Errorf("scan menu: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (m *MySQLAdapter) LoadInventory(ctx context.Context, itemIDs []string) (map[string]domain.InventoryRecord, error) {
	records := make(map[string]domain.InventoryRecord, len(itemIDs))
	if len(itemIDs) == 0 {
		return records, nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, stock, version
		FROM inventory WHERE item_id IN (`+placeholders(len(itemIDs))+`)`,
		anySlice(itemIDs)...,
	)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		records[inv.ItemID] = inv
	}
	return records, rows.Err()
}

// CompareAndSwapInventory writes every record in one transaction, each guarded
// by the version it was loaded at. One stale version rolls back the whole batch.
func (m *MySQLAdapter) CompareAndSwapInventory(ctx context.Context, records []domain.InventoryRecord) (domain.WriteStatus, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.WriteFatal, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, inv := range records {
		result, err := tx.ExecContext(ctx, `
			UPDATE inventory
			SET stock = ?, version = version + 1, updated_at = NOW()
			WHERE item_id = ? AND version = ?`,
			inv.Quantity, inv.ItemID, inv.Version,
		)
		if err != nil {
			return domain.WriteFatal, fmt.Errorf("update inventory: %w", err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return domain.WriteFatal, fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return domain.WriteVersionConflict, nil
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.WriteFatal, fmt.Errorf("commit inventory: %w", err)
	}
	return domain.WriteOK, nil
}

func (m *MySQLAdapter) ListInventory(ctx context.Context) ([]domain.InventoryRecord, error) {
	rows, err := m.db.QueryContext(ctx, `SELECT item_id, stock, version FROM inventory`)
	if err != nil {
		return nil, fmt.Errorf("query inventory: %w", err)
	}
	defer rows.Close()

	var records []domain.InventoryRecord
	for rows.Next() {
		inv, err := scanInventory(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, inv)
	}
	return records, rows.Err()
}

// SeedItem upserts a store, a menu row and its inventory. Used by the stress
// tool and tests; the catalog is otherwise owned by the store service.
func (m *MySQLAdapter) SeedItem(ctx context.Context, item domain.CatalogItem, stock int64) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stores (store_id, name) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE deleted_at = NULL`, item.StoreID, "store-"+item.StoreID,
	); err != nil {
		return fmt.Errorf("upsert store: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO menus (menu_id, store_id, name, price, is_hidden) VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE store_id = VALUES(store_id), name = VALUES(name),
			price = VALUES(price), is_hidden = VALUES(is_hidden), deleted_at = NULL`,
		item.ItemID, item.StoreID, item.Name, item.UnitPrice, item.Hidden,
	); err != nil {
		return fmt.Errorf("upsert menu: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO inventory (item_id, stock, version) VALUES (?, ?, 0)
		ON DUPLICATE KEY UPDATE stock = VALUES(stock), version = 0`,
		item.ItemID, stock,
	); err != nil {
		return fmt.Errorf("upsert inventory: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInventory(row rowScanner) (domain.InventoryRecord, error) {
	var inv domain.InventoryRecord
	if err := row.Scan(&inv.ItemID, &inv.Quantity, &inv.Version); err != nil {
		return inv, fmt.Errorf("scan inventory: %w", err)
	}
	return inv, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func anySlice(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
