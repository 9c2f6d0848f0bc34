package storage

import (
	"context"
	"database/sql/driver"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadcaller/models"
)

func leadArgs(cycleID string, pos int, l *models.Lead) []driver.Value {
	return []driver.Value{
		cycleID, pos, l.Name, l.Website, l.Introduction, l.Phone, l.Address,
		l.ReviewCount, l.AverageRating, l.StoreShopping, l.InStorePickup, l.Delivery,
		l.Type, l.OpensAt, l.Question, l.Answer, l.MeetsCriteria,
	}
}

func TestPostgresWriter_Write(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := sampleDataset()
	var args []driver.Value
	for i, l := range ds.Leads {
		args = append(args, leadArgs(ds.CycleID, i, l)...)
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM leads").WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectExec("INSERT INTO leads").WithArgs(args...).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	pw := NewPostgresWriterFromDB(db)
	require.NoError(t, pw.Write(context.Background(), ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_WriteBatches(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := &models.Dataset{CycleID: "c"}
	for i := 0; i < 120; i++ {
		ds.Leads = append(ds.Leads, &models.Lead{Name: "lead"})
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM leads").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 20))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresWriterFromDB(db).Write(context.Background(), ds))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_WriteEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, NewPostgresWriterFromDB(db).Write(context.Background(), &models.Dataset{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_ClearError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM leads").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewPostgresWriterFromDB(db).Write(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: clear")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_FailedBatchRollsBackDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ds := &models.Dataset{CycleID: "c"}
	for i := 0; i < 80; i++ {
		ds.Leads = append(ds.Leads, &models.Lead{Name: "lead"})
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM leads").WillReturnResult(sqlmock.NewResult(0, 12))
	mock.ExpectExec("INSERT INTO leads").WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectExec("INSERT INTO leads").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewPostgresWriterFromDB(db).Write(context.Background(), ds)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: insert batch")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_BeginError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(assert.AnError)

	err = NewPostgresWriterFromDB(db).Write(context.Background(), sampleDataset())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: begin")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriter_FetchAll(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"cycle_id", "name", "website", "introduction", "phone", "address", "review_count",
		"average_rating", "store_shopping", "in_store_pickup", "delivery", "type",
		"opens_at", "question", "answer", "meets_criteria",
	}).
		AddRow("c1", "Demo Lead", "", "", "+1999", "", "", "", false, false, false, "", "", "Q?", "yes", true).
		AddRow("c1", "Roaster A", "a.example", "", "+1", "1 Main", "1204", "4.6", true, false, true, "Coffee shop", "", "", "", false)

	mock.ExpectQuery("SELECT (.+) FROM leads").WillReturnRows(rows)

	ds, err := NewPostgresWriterFromDB(db).FetchAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Leads, 2)
	assert.Equal(t, "c1", ds.CycleID)
	assert.True(t, ds.Leads[0].MeetsCriteria)
	assert.Equal(t, "Coffee shop", ds.Leads[1].Type)
	assert.True(t, ds.Leads[1].Delivery)
	assert.NoError(t, mock.ExpectationsWereMet())
}
