package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/clarifai/backend/internal/storage/models"
	"github.com/clarifai/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		full_name TEXT,
		password_hash TEXT NOT NULL,
		disabled INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		last_login INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS lectures (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		title TEXT NOT NULL,
		organized_notes TEXT,
		raw_transcript TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_lectures_user ON lectures(user_id);
	CREATE INDEX IF NOT EXISTS idx_lectures_created ON lectures(created_at);

	CREATE TABLE IF NOT EXISTS concepts (
		id TEXT PRIMARY KEY,
		lecture_id TEXT,
		user_id TEXT,
		concept_name TEXT NOT NULL,
		text_snippet TEXT,
		difficulty_level INTEGER,
		start_position INTEGER,
		end_position INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (lecture_id) REFERENCES lectures(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_concepts_lecture ON concepts(lecture_id);

	CREATE TABLE IF NOT EXISTS flagged_concepts (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		lecture_id TEXT,
		concept_name TEXT NOT NULL,
		context TEXT,
		explanation TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_flagged_user ON flagged_concepts(user_id);
	CREATE INDEX IF NOT EXISTS idx_flagged_created ON flagged_concepts(created_at);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		user_id TEXT,
		title TEXT,
		content TEXT NOT NULL,
		source TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notes_user ON notes(user_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertUser(user *models.User) error {
	query := `INSERT INTO users (id, email, full_name, password_hash, disabled, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	disabled := 0
	if user.Disabled {
		disabled = 1
	}

	_, err := c.db.Exec(
		query,
		user.ID,
		user.Email,
		user.FullName,
		user.PasswordHash,
		disabled,
		user.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	logger.Info("User created", zap.String("user_id", user.ID))
	return nil
}

func (c *Client) GetUserByEmail(email string) (*models.User, error) {
	query := `SELECT id, email, full_name, password_hash, disabled, created_at, last_login FROM users WHERE email = ?`

	var user models.User
	var disabled int
	var createdAt int64
	var lastLogin sql.NullInt64

	err := c.db.QueryRow(query, email).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.PasswordHash,
		&disabled,
		&createdAt,
		&lastLogin,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Disabled = disabled != 0
	user.CreatedAt = time.Unix(createdAt, 0)
	if lastLogin.Valid {
		t := time.Unix(lastLogin.Int64, 0)
		user.LastLogin = &t
	}

	return &user, nil
}

func (c *Client) TouchLastLogin(userID string) error {
	_, err := c.db.Exec(`UPDATE users SET last_login = ? WHERE id = ?`, time.Now().Unix(), userID)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

func (c *Client) InsertLecture(lecture *models.Lecture) error {
	query := `
		INSERT INTO lectures (id, user_id, title, organized_notes, raw_transcript, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			organized_notes = excluded.organized_notes,
			raw_transcript = excluded.raw_transcript
	`

	_, err := c.db.Exec(
		query,
		lecture.ID,
		lecture.UserID,
		lecture.Title,
		lecture.OrganizedNotes,
		lecture.RawTranscript,
		lecture.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert lecture: %w", err)
	}

	logger.Debug("Lecture stored", zap.String("lecture_id", lecture.ID), zap.String("title", lecture.Title))
	return nil
}

func (c *Client) GetLecture(id string) (*models.Lecture, error) {
	query := `SELECT id, user_id, title, organized_notes, raw_transcript, created_at FROM lectures WHERE id = ?`

	var lecture models.Lecture
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&lecture.ID,
		&lecture.UserID,
		&lecture.Title,
		&lecture.OrganizedNotes,
		&lecture.RawTranscript,
		&createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lecture: %w", err)
	}

	lecture.CreatedAt = time.Unix(createdAt, 0)
	return &lecture, nil
}

func (c *Client) GetUserLectures(userID string) ([]models.Lecture, error) {
	query := `
		SELECT id, user_id, title, organized_notes, created_at
		FROM lectures
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get lectures: %w", err)
	}
	defer rows.Close()

	var lectures []models.Lecture
	for rows.Next() {
		var l models.Lecture
		var createdAt int64

		err := rows.Scan(&l.ID, &l.UserID, &l.Title, &l.OrganizedNotes, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		l.CreatedAt = time.Unix(createdAt, 0)
		lectures = append(lectures, l)
	}

	return lectures, nil
}

func (c *Client) InsertConcept(concept *models.Concept) error {
	query := `
		INSERT INTO concepts (id, lecture_id, user_id, concept_name, text_snippet, difficulty_level, start_position, end_position, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		concept.ID,
		concept.LectureID,
		concept.UserID,
		concept.ConceptName,
		concept.TextSnippet,
		concept.DifficultyLevel,
		concept.StartPosition,
		concept.EndPosition,
		concept.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert concept: %w", err)
	}

	return nil
}

func (c *Client) GetConceptsByLecture(lectureID string) ([]models.Concept, error) {
	query := `
		SELECT id, lecture_id, user_id, concept_name, text_snippet, difficulty_level, start_position, end_position, created_at
		FROM concepts
		WHERE lecture_id = ?
		ORDER BY start_position
	`

	rows, err := c.db.Query(query, lectureID)
	if err != nil {
		return nil, fmt.Errorf("failed to get concepts: %w", err)
	}
	defer rows.Close()

	var concepts []models.Concept
	for rows.Next() {
		var con models.Concept
		var createdAt int64

		err := rows.Scan(&con.ID, &con.LectureID, &con.UserID, &con.ConceptName, &con.TextSnippet,
			&con.DifficultyLevel, &con.StartPosition, &con.EndPosition, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		con.CreatedAt = time.Unix(createdAt, 0)
		concepts = append(concepts, con)
	}

	return concepts, nil
}

func (c *Client) InsertFlaggedConcept(flagged *models.FlaggedConcept) error {
	query := `
		INSERT INTO flagged_concepts (id, user_id, lecture_id, concept_name, context, explanation, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		flagged.ID,
		flagged.UserID,
		flagged.LectureID,
		flagged.ConceptName,
		flagged.Context,
		flagged.Explanation,
		flagged.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert flagged concept: %w", err)
	}

	logger.Info("Flagged concept stored",
		zap.String("concept", flagged.ConceptName),
		zap.String("user_id", flagged.UserID),
	)

	return nil
}

func (c *Client) GetFlaggedConcepts(userID string) ([]models.FlaggedConcept, error) {
	query := `
		SELECT id, user_id, lecture_id, concept_name, context, explanation, created_at
		FROM flagged_concepts
		WHERE user_id = ?
		ORDER BY created_at DESC
	`

	rows, err := c.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flagged concepts: %w", err)
	}
	defer rows.Close()

	var flagged []models.FlaggedConcept
	for rows.Next() {
		var f models.FlaggedConcept
		var createdAt int64

		err := rows.Scan(&f.ID, &f.UserID, &f.LectureID, &f.ConceptName, &f.Context, &f.Explanation, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		f.CreatedAt = time.Unix(createdAt, 0)
		flagged = append(flagged, f)
	}

	return flagged, nil
}

func (c *Client) InsertNote(note *models.Note) error {
	query := `INSERT INTO notes (id, user_id, title, content, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		note.ID,
		note.UserID,
		note.Title,
		note.Content,
		note.Source,
		note.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}

	return nil
}

func (c *Client) GetNote(id string) (*models.Note, error) {
	query := `SELECT id, user_id, title, content, source, created_at FROM notes WHERE id = ?`

	var note models.Note
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(
		&note.ID,
		&note.UserID,
		&note.Title,
		&note.Content,
		&note.Source,
		&createdAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get note: %w", err)
	}

	note.CreatedAt = time.Unix(createdAt, 0)
	return &note, nil
}
