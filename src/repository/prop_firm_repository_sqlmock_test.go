package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"signalcopier/src/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}

	dialector := postgres.New(postgres.Config{
		DSN:                  "sqlmock_db_0",
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	})

	gdb, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		sqlDB.Close()
		t.Fatalf("failed to open gorm DB with sqlmock: %v", err)
	}

	return gdb, mock
}

func TestPropFirmFindActiveQueryShape(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PropFirmRepository{db: mockDB}

	createdAt := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "name", "full_balance", "available_balance", "is_active", "created_at"}).
		AddRow(1, "FTMO", 100000.0, 98000.0, true, createdAt)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "prop_firms" WHERE is_active = $1 ORDER BY id ASC`)).
		WithArgs(true).
		WillReturnRows(rows)

	firms, err := repo.FindActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error fetching active firms: %v", err)
	}
	if len(firms) != 1 || firms[0].Name != "FTMO" {
		t.Fatalf("unexpected result: %+v", firms)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestRecordTradePlacementRollsBackOnFirmSaveError(t *testing.T) {
	mockDB, mock := newMockDB(t)
	repo := &PropFirmRepository{db: mockDB}

	firm := &model.PropFirm{ID: 1, Name: "FTMO", FullBalance: 100000, AvailableBalance: 97500}
	trade := &model.Trade{PropFirmID: 1, SignalID: 2, PlatformID: "5001"}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "trades"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "prop_firms"`)).
		WillReturnError(gorm.ErrInvalidTransaction)
	mock.ExpectRollback()

	if err := repo.RecordTradePlacement(context.Background(), firm, trade); err == nil {
		t.Fatal("expected placement to fail when the firm save fails")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
