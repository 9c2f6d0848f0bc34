package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/rotisserie/eris"

	"leadcaller/models"
)

const leadColumnCount = 17

// PostgresWriter mirrors the current dataset into the leads table.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(ctx context.Context, dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, eris.Wrap(ctx.Err(), "postgres: ping")
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: ping failed after retries")
	}

	pw := NewPostgresWriterFromDB(db)
	if err := pw.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, eris.Wrap(err, "postgres: migrate")
	}

	return pw, nil
}

// NewPostgresWriterFromDB wraps an already-open handle without migrating.
func NewPostgresWriterFromDB(db *sql.DB) *PostgresWriter {
	return &PostgresWriter{db: db}
}

func (pw *PostgresWriter) migrate(ctx context.Context) error {
	_, err := pw.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS leads (
			id              SERIAL PRIMARY KEY,
			cycle_id        TEXT        NOT NULL,
			position        INTEGER     NOT NULL,
			name            TEXT        NOT NULL DEFAULT '',
			website         TEXT        NOT NULL DEFAULT '',
			introduction    TEXT        NOT NULL DEFAULT '',
			phone           TEXT        NOT NULL DEFAULT '',
			address         TEXT        NOT NULL DEFAULT '',
			review_count    TEXT        NOT NULL DEFAULT '',
			average_rating  TEXT        NOT NULL DEFAULT '',
			store_shopping  BOOLEAN     NOT NULL DEFAULT FALSE,
			in_store_pickup BOOLEAN     NOT NULL DEFAULT FALSE,
			delivery        BOOLEAN     NOT NULL DEFAULT FALSE,
			type            TEXT        NOT NULL DEFAULT '',
			opens_at        TEXT        NOT NULL DEFAULT '',
			question        TEXT        NOT NULL DEFAULT '',
			answer          TEXT        NOT NULL DEFAULT '',
			meets_criteria  BOOLEAN     NOT NULL DEFAULT FALSE,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_leads_phone    ON leads(phone);
		CREATE INDEX IF NOT EXISTS idx_leads_criteria ON leads(meets_criteria);
	`)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func clearLeads(ctx context.Context, ex execer) error {
	if _, err := ex.ExecContext(ctx, "DELETE FROM leads"); err != nil {
		return eris.Wrap(err, "postgres: clear")
	}
	return nil
}

// Write replaces the table content with the dataset, batch-inserting rows
// in dataset order. The delete and all inserts share one transaction.
func (pw *PostgresWriter) Write(ctx context.Context, ds *models.Dataset) (err error) {
	if ds == nil || len(ds.Leads) == 0 {
		return nil
	}

	tx, err := pw.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = clearLeads(ctx, tx); err != nil {
		return err
	}

	const batchSize = 50
	for i := 0; i < len(ds.Leads); i += batchSize {
		end := i + batchSize
		if end > len(ds.Leads) {
			end = len(ds.Leads)
		}
		if err = insertBatch(ctx, tx, ds.CycleID, i, ds.Leads[i:end]); err != nil {
			return eris.Wrap(err, "postgres: insert batch")
		}
	}

	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return nil
}

func insertBatch(ctx context.Context, ex execer, cycleID string, offset int, batch []*models.Lead) error {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*leadColumnCount)

	for idx, l := range batch {
		base := idx * leadColumnCount
		placeholders := make([]string, leadColumnCount)
		for p := range placeholders {
			placeholders[p] = fmt.Sprintf("$%d", base+p+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		valueArgs = append(valueArgs,
			cycleID, offset+idx, l.Name, l.Website, l.Introduction, l.Phone, l.Address,
			l.ReviewCount, l.AverageRating, l.StoreShopping, l.InStorePickup, l.Delivery,
			l.Type, l.OpensAt, l.Question, l.Answer, l.MeetsCriteria)
	}

	query := fmt.Sprintf(`
		INSERT INTO leads (cycle_id, position, name, website, introduction, phone, address,
			review_count, average_rating, store_shopping, in_store_pickup, delivery,
			type, opens_at, question, answer, meets_criteria)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	_, err := ex.ExecContext(ctx, query, valueArgs...)
	return err
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}

// FetchAll reads the mirrored dataset back in row order.
func (pw *PostgresWriter) FetchAll(ctx context.Context) (*models.Dataset, error) {
	rows, err := pw.db.QueryContext(ctx, `
		SELECT cycle_id, name, website, introduction, phone, address, review_count,
			average_rating, store_shopping, in_store_pickup, delivery, type,
			opens_at, question, answer, meets_criteria
		FROM leads
		ORDER BY position
	`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch all")
	}
	defer rows.Close()

	ds := &models.Dataset{}
	for rows.Next() {
		l := &models.Lead{}
		if err := rows.Scan(
			&ds.CycleID, &l.Name, &l.Website, &l.Introduction, &l.Phone, &l.Address,
			&l.ReviewCount, &l.AverageRating, &l.StoreShopping, &l.InStorePickup,
			&l.Delivery, &l.Type, &l.OpensAt, &l.Question, &l.Answer, &l.MeetsCriteria,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan row")
		}
		ds.Leads = append(ds.Leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate rows")
	}
	return ds, nil
}
