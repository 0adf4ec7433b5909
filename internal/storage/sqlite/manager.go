package sqlite

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
)

// Manager implements the StorageManager interface
type Manager struct {
	db       *SQLiteDB
	queue    interfaces.QueueStorage
	source   interfaces.SourceStorage
	company  interfaces.CompanyStorage
	match    interfaces.MatchStorage
	settings interfaces.SettingsStorage
	logger   arbor.ILogger
}

// NewManager creates a new SQLite storage manager
func NewManager(logger arbor.ILogger, path string) (interfaces.StorageManager, error) {
	db, err := NewSQLiteDB(logger, path)
	if err != nil {
		return nil, err
	}

	return &Manager{
		db:       db,
		queue:    NewQueueStorage(db, logger),
		source:   NewSourceStorage(db, logger),
		company:  NewCompanyStorage(db, logger),
		match:    NewMatchStorage(db, logger),
		settings: NewSettingsStorage(db, logger),
		logger:   logger,
	}, nil
}

// QueueStorage returns the queue storage interface
func (m *Manager) QueueStorage() interfaces.QueueStorage {
	return m.queue
}

// SourceStorage returns the source storage interface
func (m *Manager) SourceStorage() interfaces.SourceStorage {
	return m.source
}

// CompanyStorage returns the company storage interface
func (m *Manager) CompanyStorage() interfaces.CompanyStorage {
	return m.company
}

// MatchStorage returns the match storage interface
func (m *Manager) MatchStorage() interfaces.MatchStorage {
	return m.match
}

// SettingsStorage returns the settings storage interface
func (m *Manager) SettingsStorage() interfaces.SettingsStorage {
	return m.settings
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.DB()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
