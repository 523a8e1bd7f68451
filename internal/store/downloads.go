package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

const downloadColumns = `id, title, status, price, variable_pricing, variable_prices, files,
	sales, earnings, created_at, updated_at`

// GetDownloadByID retrieves a download by ID
func (s *Store) GetDownloadByID(ctx context.Context, id int64) (*models.Download, error) {
	var d models.Download
	err := s.db.GetContext(ctx, &d, "SELECT "+downloadColumns+" FROM downloads WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("download %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDownloadsByIDs retrieves multiple downloads by IDs, keyed by id. Missing
// ids are simply absent from the result.
func (s *Store) GetDownloadsByIDs(ctx context.Context, ids []int64) (map[int64]*models.Download, error) {
	out := make(map[int64]*models.Download, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In("SELECT "+downloadColumns+" FROM downloads WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var downloads []models.Download
	if err := s.db.SelectContext(ctx, &downloads, query, args...); err != nil {
		return nil, err
	}
	for i := range downloads {
		out[downloads[i].ID] = &downloads[i]
	}
	return out, nil
}

// ListDownloads retrieves published downloads
func (s *Store) ListDownloads(ctx context.Context) ([]models.Download, error) {
	var downloads []models.Download
	err := s.db.SelectContext(ctx, &downloads,
		"SELECT "+downloadColumns+" FROM downloads WHERE status = $1 ORDER BY id", models.DownloadStatusPublished)
	return downloads, err
}

// RecordPurchaseStats adds one sale per item to the download counters and
// marks eventID processed, all in one transaction. It reports false without
// touching any counter when the event was already applied.
func (s *Store) RecordPurchaseStats(ctx context.Context, eventID, eventType string, items []models.PaymentItemData) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if inserted == 0 {
		return false, nil
	}

	for _, item := range items {
		_, err := tx.ExecContext(ctx,
			"UPDATE downloads SET sales = sales + 1, earnings = earnings + $1, updated_at = NOW() WHERE id = $2",
			item.Amount, item.DownloadID)
		if err != nil {
			return false, fmt.Errorf("failed to record sale for download %d: %w", item.DownloadID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}
