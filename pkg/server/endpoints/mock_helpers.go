package endpoints

import (
	"database/sql"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/config"
	"github.com/aegisid/aegisid/pkg/server"
)

// NewMockTestServer creates a server instance with a mocked database for
// unit testing. Store interfaces on the returned server can be replaced
// with mocks before registering endpoints.
// Returns the server, sqlmock instance, and any error
func NewMockTestServer(tokenKey []byte) (*server.Server, sqlmock.Sqlmock, error) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		return nil, nil, err
	}

	// Wrap with GORM
	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 mockDB,
			PreferSimpleProtocol: true,
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	if err != nil {
		_ = mockDB.Close()
		return nil, nil, err
	}

	s, err := server.NewServer(gormDB, config.Get(), tokenKey, "127.0.0.1", "0")
	if err != nil {
		_ = mockDB.Close()
		return nil, nil, err
	}

	return s, mock, nil
}

// MockDB wraps sqlmock for easier test setup
type MockDB struct {
	DB     *sql.DB
	Mock   sqlmock.Sqlmock
	GormDB *gorm.DB
}

// NewMockDB creates a new mock database connection
func NewMockDB() (*MockDB, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(
		postgres.New(postgres.Config{
			Conn:                 db,
			PreferSimpleProtocol: true,
		}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		},
	)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &MockDB{
		DB:     db,
		Mock:   mock,
		GormDB: gormDB,
	}, nil
}

// Close closes the mock database
func (m *MockDB) Close() error {
	return m.DB.Close()
}

// ExpectChainRecords sets up the expectation for a run's chain read
func ExpectChainRecords(mock sqlmock.Sqlmock, runID string, recs []audit.Record) {
	rows := sqlmock.NewRows([]string{
		"seq", "run_id", "recorded_at", "actor", "action",
		"subject", "payload", "prev_hash", "entry_hash",
	})
	for _, rec := range recs {
		rows.AddRow(rec.Seq, rec.RunID, rec.RecordedAt, rec.Actor, rec.Action,
			rec.Subject, rec.Payload, rec.PrevHash, rec.EntryHash)
	}
	mock.ExpectQuery(`SELECT seq, run_id, .* FROM audit_records`).
		WithArgs(runID).
		WillReturnRows(rows)
}

// ExpectEmptyChain sets up the expectation for a run without chain records
func ExpectEmptyChain(mock sqlmock.Sqlmock, runID string) {
	ExpectChainRecords(mock, runID, nil)
}
