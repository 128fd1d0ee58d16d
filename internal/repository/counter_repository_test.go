package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestCounterRepositoryNext(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCounterRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO id_counters")).
		WithArgs("CUS").
		WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(int64(42)))

	seq, err := repo.Next(context.Background(), "CUS")
	require.NoError(t, err)
	require.Equal(t, int64(42), seq)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCounterRepositoryNextSequence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCounterRepository(db)
	for _, want := range []int64{1, 2, 3} {
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO id_counters")).
			WithArgs("ORD").
			WillReturnRows(sqlmock.NewRows([]string{"seq"}).AddRow(want))
	}

	for _, want := range []int64{1, 2, 3} {
		got, err := repo.Next(context.Background(), "ORD")
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}
