package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestMirrorRepositoryUpsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewMirrorRepository(db)
	snapshot := []byte(`{"_id":"CUS00001","full_name":"Asha Rao"}`)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO employee_customers")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Upsert(context.Background(), "EMP00001", "CUS00001", snapshot))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorRepositoryListByEmployee(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewMirrorRepository(db)
	rows := sqlmock.NewRows([]string{"employee_id", "customer_id", "snapshot", "updated_at"}).
		AddRow("EMP00001", "CUS00001", []byte(`{}`), time.Now()).
		AddRow("EMP00001", "CUS00002", []byte(`{}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id, customer_id, snapshot, updated_at")).
		WithArgs("EMP00001").
		WillReturnRows(rows)

	list, err := repo.ListByEmployee(context.Background(), "EMP00001")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "CUS00001", list[0].CustomerID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMirrorRepositoryListEmployeesForCustomer(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewMirrorRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT employee_id FROM employee_customers")).
		WithArgs("CUS00001").
		WillReturnRows(sqlmock.NewRows([]string{"employee_id"}).AddRow("EMP00001").AddRow("EMP00002"))

	ids, err := repo.ListEmployeesForCustomer(context.Background(), "CUS00001")
	require.NoError(t, err)
	require.Equal(t, []string{"EMP00001", "EMP00002"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}
