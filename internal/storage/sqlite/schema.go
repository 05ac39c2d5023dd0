package sqlite

// Schema creates the record store tables. Timestamps are TEXT in
// storage.TimeLayout; list and map columns hold JSON.
const Schema = `
CREATE TABLE IF NOT EXISTS file_analysis (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path      TEXT    NOT NULL UNIQUE,
	original_name  TEXT    NOT NULL,
	suggested_name TEXT    NOT NULL,
	content        TEXT,
	metadata       TEXT,
	entities       TEXT,
	confidence     REAL,
	reasoning      TEXT,
	vector_id      TEXT,
	event_type     TEXT,
	content_hash   TEXT,
	status         TEXT    NOT NULL DEFAULT 'pending',
	created_at     TEXT    NOT NULL,
	updated_at     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_file_analysis_status ON file_analysis(status);
CREATE INDEX IF NOT EXISTS idx_file_analysis_created_at ON file_analysis(created_at);

CREATE TABLE IF NOT EXISTS entities (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	entity_name TEXT    NOT NULL UNIQUE,
	variations  TEXT    NOT NULL DEFAULT '[]',
	usage_count INTEGER NOT NULL DEFAULT 0,
	first_seen  TEXT    NOT NULL,
	last_seen   TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS document_context (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path       TEXT NOT NULL,
	entities        TEXT,
	content_summary TEXT,
	keywords        TEXT,
	created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_document_context_path ON document_context(file_path);

CREATE TABLE IF NOT EXISTS activity_log (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	activity_type TEXT NOT NULL,
	description   TEXT NOT NULL,
	metadata      TEXT,
	timestamp     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activity_type ON activity_log(activity_type);
CREATE INDEX IF NOT EXISTS idx_activity_timestamp ON activity_log(timestamp);

CREATE TABLE IF NOT EXISTS processing_history (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path      TEXT NOT NULL,
	file_hash      TEXT,
	last_processed TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_processing_history_path ON processing_history(file_path, last_processed);
`

// coreTables lists the tables ClearAllData truncates.
var coreTables = []string{
	"file_analysis",
	"entities",
	"document_context",
	"activity_log",
	"processing_history",
}
