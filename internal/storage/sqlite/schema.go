package sqlite

const schemaSQL = `
-- Durable work queue. Items are retained after completion for audit.
CREATE TABLE IF NOT EXISTS job_queue (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	url TEXT,
	company_name TEXT,
	company_id TEXT,
	source TEXT,
	source_id TEXT,
	tracking_id TEXT NOT NULL,
	parent_item_id TEXT,
	sub_task TEXT,
	company_sub_task TEXT,
	pipeline_state TEXT,
	scraped_data TEXT,
	scrape_config TEXT,
	discovery_config TEXT,
	metadata TEXT,
	retry_count INTEGER DEFAULT 0,
	max_retries INTEGER DEFAULT 3,
	result_message TEXT,
	error_details TEXT,
	submitted_by TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	processed_at INTEGER,
	completed_at INTEGER
);

-- One row per URL-bearing item; scrape runs carry no URL and are exempt.
CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_url ON job_queue(url) WHERE url IS NOT NULL AND url != '';
CREATE INDEX IF NOT EXISTS idx_queue_status ON job_queue(status, updated_at);
CREATE INDEX IF NOT EXISTS idx_queue_tracking ON job_queue(tracking_id);
CREATE INDEX IF NOT EXISTS idx_queue_type ON job_queue(type, status);

-- Scraping sources
CREATE TABLE IF NOT EXISTS job_sources (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	source_type TEXT NOT NULL,
	config TEXT,
	status TEXT NOT NULL DEFAULT 'active',
	company_id TEXT,
	aggregator_domain TEXT,
	last_scraped_at INTEGER,
	consecutive_failures INTEGER DEFAULT 0,
	consecutive_zero_jobs INTEGER DEFAULT 0,
	disabled_notes TEXT,
	disabled_tags TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_status ON job_sources(status, last_scraped_at);
CREATE INDEX IF NOT EXISTS idx_sources_company ON job_sources(company_id);

-- Normalised company records. Name comparisons are case-insensitive so
-- "Acme Corp" and "ACME CORP" resolve to one record.
CREATE TABLE IF NOT EXISTS companies (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL COLLATE NOCASE,
	website TEXT,
	about TEXT,
	culture TEXT,
	mission TEXT,
	tech_stack TEXT,
	tier INTEGER DEFAULT 0,
	priority_score INTEGER DEFAULT 0,
	size TEXT,
	has_portland_office INTEGER DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_companies_name ON companies(name);

-- Published listings keyed by normalised URL
CREATE TABLE IF NOT EXISTS job_listings (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	title TEXT NOT NULL,
	company_name TEXT NOT NULL,
	company_id TEXT,
	location TEXT,
	description TEXT,
	source TEXT,
	posted_date TEXT,
	salary TEXT,
	created_at INTEGER NOT NULL
);

-- Scored matches, one per listing
CREATE TABLE IF NOT EXISTS job_matches (
	id TEXT PRIMARY KEY,
	listing_id TEXT NOT NULL,
	url TEXT NOT NULL,
	score INTEGER NOT NULL,
	matched_skills TEXT,
	missing_skills TEXT,
	experience_match TEXT,
	key_strengths TEXT,
	potential_concerns TEXT,
	customization_recommendations TEXT,
	intake_data TEXT,
	tracking_id TEXT,
	queue_item_id TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	notes TEXT,
	document_url TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY (listing_id) REFERENCES job_listings(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_matches_listing ON job_matches(listing_id);
CREATE INDEX IF NOT EXISTS idx_matches_score ON job_matches(score DESC, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_matches_status ON job_matches(status, updated_at DESC);

-- Configuration documents (filters, tech ranks, worker knobs, AI chains)
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// InitSchema initializes the database schema
func (s *SQLiteDB) InitSchema() error {
	_, err := s.db.Exec(schemaSQL)
	if err != nil {
		return err
	}

	// Run migrations for schema evolution
	if err := s.runMigrations(); err != nil {
		return err
	}

	return nil
}

// runMigrations checks for and applies schema migrations for existing databases
func (s *SQLiteDB) runMigrations() error {
	if err := s.migrateTable("job_sources", map[string]string{
		"consecutive_zero_jobs": "INTEGER DEFAULT 0",
		"disabled_tags":         "TEXT",
		"aggregator_domain":     "TEXT",
	}); err != nil {
		return err
	}

	if err := s.migrateTable("job_matches", map[string]string{
		"document_url": "TEXT",
		"notes":        "TEXT",
	}); err != nil {
		return err
	}

	return s.migrateTable("job_queue", map[string]string{
		"discovery_config": "TEXT",
		"submitted_by":     "TEXT",
	})
}

// migrateTable adds any of the given columns that are missing from an
// existing table.
func (s *SQLiteDB) migrateTable(table string, columns map[string]string) error {
	rows, err := s.db.Query(`PRAGMA table_info(` + table + `)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, dfltValue, pk interface{}
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, definition := range columns {
		if existing[column] {
			continue
		}
		s.logger.Info().
			Str("table", table).
			Str("column", column).
			Msg("Running migration: adding column")
		if _, err := s.db.Exec(`ALTER TABLE ` + table + ` ADD COLUMN ` + column + ` ` + definition); err != nil {
			return err
		}
	}

	return nil
}
