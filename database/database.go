package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"odescreen/logging"
	"odescreen/types"
)

// InitDatabase initializes and returns a database connection
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		operator_id TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		submitted_at TEXT,
		image_count INTEGER,
		left_verdict TEXT,
		right_verdict TEXT,
		analysis TEXT,
		questionnaire TEXT,
		comments TEXT
	);
	CREATE TABLE IF NOT EXISTS session_images (
		session_id TEXT NOT NULL,
		image_id INTEGER NOT NULL,
		ordinal INTEGER NOT NULL,
		eye TEXT NOT NULL,
		sequence_name TEXT NOT NULL,
		PRIMARY KEY (session_id, image_id)
	);
	CREATE INDEX IF NOT EXISTS idx_subject ON sessions(subject_id);
	CREATE INDEX IF NOT EXISTS idx_session_images ON session_images(session_id);`

	_, err = db.Exec(createTableSQL)
	if err != nil {
		return nil, err
	}

	// Check if comments column exists, add it if it doesn't
	var hasCommentsColumn bool
	err = db.QueryRow("SELECT COUNT(*) FROM pragma_table_info('sessions') WHERE name='comments'").Scan(&hasCommentsColumn)
	if err != nil {
		return nil, fmt.Errorf("error checking for comments column: %v", err)
	}

	if !hasCommentsColumn {
		// Add comments column to existing table
		_, err = db.Exec("ALTER TABLE sessions ADD COLUMN comments TEXT;")
		if err != nil {
			return nil, fmt.Errorf("error adding comments column: %v", err)
		}
		logging.DebugLog("Added 'comments' column to existing database schema")
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

// Sink appends submitted session documents. Sessions are append-only:
// a session identifier can be written exactly once.
type Sink struct {
	db *sql.DB
}

// NewSink wraps an initialized database connection.
func NewSink(db *sql.DB) *Sink {
	return &Sink{db: db}
}

// Ready reports whether the sink can accept a session document.
func (s *Sink) Ready() error {
	if s.db == nil {
		return errors.New("database not initialized")
	}
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("database unreachable: %v", err)
	}
	return nil
}

// AppendSession writes one session document and its image metadata rows in
// a single transaction. A duplicate session ID fails the whole write.
func (s *Sink) AppendSession(ctx context.Context, doc types.SessionDocument) error {
	analysisJSON, err := json.Marshal(doc.Analysis)
	if err != nil {
		return fmt.Errorf("cannot encode analysis for session %s: %v", doc.SessionID, err)
	}
	answersJSON, err := json.Marshal(doc.Answers)
	if err != nil {
		return fmt.Errorf("cannot encode questionnaire for session %s: %v", doc.SessionID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin transaction for session %s: %v", doc.SessionID, err)
	}
	defer tx.Rollback()

	now := time.Now().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (
			id, operator_id, subject_id, submitted_at, image_count,
			left_verdict, right_verdict, analysis, questionnaire, comments
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.SessionID,
		doc.OperatorID,
		doc.SubjectID,
		now,
		doc.ImageCount,
		string(doc.Analysis[types.EyeLeft].Verdict),
		string(doc.Analysis[types.EyeRight].Verdict),
		string(analysisJSON),
		string(answersJSON),
		doc.Comments,
	)
	if err != nil {
		return fmt.Errorf("cannot insert session %s: %v", doc.SessionID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_images (session_id, image_id, ordinal, eye, sequence_name)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare image insert for session %s: %v", doc.SessionID, err)
	}
	defer stmt.Close()

	for _, meta := range doc.Images {
		_, err = stmt.ExecContext(ctx, doc.SessionID, meta.ID, meta.Ordinal, string(meta.Eye), meta.SequenceName)
		if err != nil {
			return fmt.Errorf("cannot insert image %s for session %s: %v", meta.SequenceName, doc.SessionID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit session %s: %v", doc.SessionID, err)
	}
	return nil
}

// SessionStats contains statistics across submitted sessions
type SessionStats struct {
	TotalSessions int
	TotalImages   int
	ODESuspected  int
}

// GetSessionStats retrieves statistics about submitted sessions, optionally
// filtered by subject
func GetSessionStats(db *sql.DB, subjectID string) (*SessionStats, error) {
	var stats SessionStats
	var err error

	var totalQuery string
	var args []interface{}

	if subjectID != "" {
		totalQuery = "SELECT COUNT(*) FROM sessions WHERE subject_id = ?"
		args = append(args, subjectID)
	} else {
		totalQuery = "SELECT COUNT(*) FROM sessions"
	}

	err = db.QueryRow(totalQuery, args...).Scan(&stats.TotalSessions)
	if err != nil {
		return nil, fmt.Errorf("failed to get total sessions: %v", err)
	}

	var imageQuery string
	if subjectID != "" {
		imageQuery = "SELECT COALESCE(SUM(image_count), 0) FROM sessions WHERE subject_id = ?"
	} else {
		imageQuery = "SELECT COALESCE(SUM(image_count), 0) FROM sessions"
	}

	err = db.QueryRow(imageQuery, args...).Scan(&stats.TotalImages)
	if err != nil {
		return nil, fmt.Errorf("failed to get total images: %v", err)
	}

	var odeQuery string
	if subjectID != "" {
		odeQuery = "SELECT COUNT(*) FROM sessions WHERE (left_verdict = 'ODE' OR right_verdict = 'ODE') AND subject_id = ?"
	} else {
		odeQuery = "SELECT COUNT(*) FROM sessions WHERE left_verdict = 'ODE' OR right_verdict = 'ODE'"
	}

	err = db.QueryRow(odeQuery, args...).Scan(&stats.ODESuspected)
	if err != nil {
		return nil, fmt.Errorf("failed to get ODE count: %v", err)
	}

	return &stats, nil
}
