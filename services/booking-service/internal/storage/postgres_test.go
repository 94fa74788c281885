package storage

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/tenantbook/services/booking-service/internal/model"
)

func tenantDoc(t *testing.T, tn model.Tenant) []byte {
	t.Helper()
	tn.Normalize()
	raw, err := json.Marshal(tn)
	require.NoError(t, err)
	return raw
}

func TestPostgresMutateLocksRowAndWritesBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewTenantStore(NewPostgresBackend(mock))
	doc := tenantDoc(t, model.Tenant{ID: "t1", Name: "Salon"})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM tenants WHERE id = $1 FOR UPDATE`)).
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectExec("UPDATE tenants").
		WithArgs("t1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	svc, err := s.AddService(context.Background(), "t1", "Cut", 40)
	require.NoError(t, err)
	assert.Equal(t, 1, svc.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutateMissingRowIsNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewTenantStore(NewPostgresBackend(mock))

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM tenants").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err = s.Update(context.Background(), "missing", TenantPatch{Name: str("x")})
	assert.True(t, apperr.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMutatorErrorRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewTenantStore(NewPostgresBackend(mock))
	doc := tenantDoc(t, model.Tenant{ID: "t1", Name: "Salon"})

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT doc FROM tenants").
		WithArgs("t1").
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).AddRow(doc))
	mock.ExpectRollback()

	err = s.DeleteService(context.Background(), "t1", 3)
	assert.True(t, apperr.IsNotFound(err), "got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewTenantStore(NewPostgresBackend(mock))

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT doc FROM tenants ORDER BY seq`)).
		WillReturnRows(pgxmock.NewRows([]string{"doc"}).
			AddRow(tenantDoc(t, model.Tenant{ID: "a", Name: "A"})).
			AddRow(tenantDoc(t, model.Tenant{ID: "b", Name: "B"})))
	mock.ExpectExec("DELETE FROM tenants").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM tenants").
		WithArgs("a").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	list, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.NotNil(t, list[1].Services)

	ok, err := s.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Delete(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewTenantStore(NewPostgresBackend(mock))
	s.newID = func() string { return "fixed-id" }

	mock.ExpectExec("INSERT INTO tenants").
		WithArgs("fixed-id", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tn, err := s.Create(context.Background(), NewTenant{Name: "Salon"})
	require.NoError(t, err)
	assert.Equal(t, "fixed-id", tn.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
