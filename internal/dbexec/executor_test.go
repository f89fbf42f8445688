package dbexec

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanMapsConvertsBytes(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id", "title", "__f__foo---title"}).
			AddRow(int64(1), []byte("First Bar"), nil).
			AddRow(int64(2), "Second Bar", []byte("Second Foo")),
	)

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	maps, err := ScanMaps(rows)
	require.NoError(t, err)

	assert.Equal(t, []map[string]any{
		{"id": int64(1), "title": "First Bar", "__f__foo---title": nil},
		{"id": int64(2), "title": "Second Bar", "__f__foo---title": "Second Foo"},
	}, maps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScanMapsRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rowErr := errors.New("row failed")
	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).RowError(1, rowErr),
	)

	rows, err := NewStandardExecutor(db).QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	_, err = ScanMaps(rows)
	assert.ErrorIs(t, err, rowErr)
}

func TestStandardExecutorWithoutDB(t *testing.T) {
	_, err := NewStandardExecutor(nil).QueryContext(context.Background(), "SELECT 1")
	assert.Error(t, err)
}

func TestRecordingExecutor(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT").WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectQuery("SELECT").WithArgs(2).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rec := NewRecordingExecutor(NewStandardExecutor(db))
	for _, id := range []int{1, 2} {
		rows, err := rec.QueryContext(context.Background(), "SELECT id FROM foos WHERE id = ?", id)
		require.NoError(t, err)
		_, err = ScanMaps(rows)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, rec.Count())
	statements := rec.Statements()
	assert.Equal(t, "SELECT id FROM foos WHERE id = ?", statements[0].SQL)
	assert.Equal(t, []any{2}, statements[1].Args)

	rec.Reset()
	assert.Zero(t, rec.Count())
	require.NoError(t, mock.ExpectationsWereMet())
}
