package devserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// sqliteStore implements Store on a local sqlite file.
type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	subjects      TEXT NOT NULL DEFAULT '[]',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS chats (
	id                TEXT PRIMARY KEY,
	student_id        TEXT NOT NULL REFERENCES users(id),
	tutor_id          TEXT NOT NULL REFERENCES users(id),
	last_message_text TEXT NOT NULL DEFAULT '',
	updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS messages (
	id              TEXT PRIMARY KEY,
	chat_id         TEXT NOT NULL REFERENCES chats(id),
	sender_id       TEXT NOT NULL REFERENCES users(id),
	text            TEXT NOT NULL,
	kind            TEXT NOT NULL DEFAULT 'text',
	proposal_status TEXT NOT NULL DEFAULT '',
	session_id      TEXT NOT NULL DEFAULT '',
	created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_messages_chat ON messages(chat_id, created_at);
CREATE TABLE IF NOT EXISTS trial_requests (
	id         TEXT PRIMARY KEY,
	student_id TEXT NOT NULL REFERENCES users(id),
	tutor_id   TEXT NOT NULL DEFAULT '',
	chat_id    TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	chat_id          TEXT NOT NULL,
	trial_request_id TEXT NOT NULL DEFAULT '',
	tutor_id         TEXT NOT NULL,
	student_id       TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'SCHEDULED',
	start_time       TIMESTAMP NOT NULL,
	end_time         TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS feedback (
	id            TEXT PRIMARY KEY,
	session_id    TEXT NOT NULL UNIQUE REFERENCES sessions(id),
	tutor_id      TEXT NOT NULL,
	rating        INTEGER NOT NULL,
	feedback_text TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS reviews (
	id         TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id),
	student_id TEXT NOT NULL,
	ratings    TEXT NOT NULL DEFAULT '{}',
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// NewSQLiteStore opens (and if needed initializes) the emulator database.
func NewSQLiteStore(dbPath string) (Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// sqlite behaves best over a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// ==== users ====

func (s *sqliteStore) CreateUser(ctx context.Context, u *User) error {
	subjects, err := json.Marshal(u.Subjects)
	if err != nil {
		return fmt.Errorf("encode subjects: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, password_hash, role, subjects)
		VALUES (?, ?, ?, ?, ?)
	`, u.ID, u.Name, u.PasswordHash, u.Role, string(subjects))
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *sqliteStore) scanUser(row *sql.Row) (*User, error) {
	var u User
	var subjects string
	err := row.Scan(&u.ID, &u.Name, &u.PasswordHash, &u.Role, &subjects, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(subjects), &u.Subjects); err != nil {
		return nil, fmt.Errorf("decode subjects: %w", err)
	}
	return &u, nil
}

func (s *sqliteStore) UserByName(ctx context.Context, name string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, subjects, created_at
		FROM users WHERE name = ?
	`, name))
}

func (s *sqliteStore) UserByID(ctx context.Context, id string) (*User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, name, password_hash, role, subjects, created_at
		FROM users WHERE id = ?
	`, id))
}

// ==== chats ====

func (s *sqliteStore) CreateChat(ctx context.Context, c *Chat) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, student_id, tutor_id)
		VALUES (?, ?, ?)
	`, c.ID, c.StudentID, c.TutorID)
	if err != nil {
		return fmt.Errorf("insert chat: %w", err)
	}
	return nil
}

func scanChat(scan func(...any) error) (*Chat, error) {
	var c Chat
	err := scan(&c.ID, &c.StudentID, &c.TutorID, &c.LastMessageText, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan chat: %w", err)
	}
	return &c, nil
}

func (s *sqliteStore) ChatByID(ctx context.Context, id string) (*Chat, error) {
	return scanChat(s.db.QueryRowContext(ctx, `
		SELECT id, student_id, tutor_id, last_message_text, updated_at
		FROM chats WHERE id = ?
	`, id).Scan)
}

func (s *sqliteStore) ChatsByUser(ctx context.Context, userID string) ([]*Chat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, student_id, tutor_id, last_message_text, updated_at
		FROM chats
		WHERE student_id = ? OR tutor_id = ?
		ORDER BY updated_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []*Chat
	for rows.Next() {
		c, err := scanChat(rows.Scan)
		if err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

func (s *sqliteStore) TouchChat(ctx context.Context, chatID, lastMessageText string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chats SET last_message_text = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, lastMessageText, chatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ==== messages ====

func (s *sqliteStore) SaveMessage(ctx context.Context, m *Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, sender_id, text, kind, proposal_status, session_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.ChatID, m.SenderID, m.Text, m.Kind, m.ProposalStatus, m.SessionID, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(scan func(...any) error) (*Message, error) {
	var m Message
	err := scan(&m.ID, &m.ChatID, &m.SenderID, &m.Text, &m.Kind, &m.ProposalStatus, &m.SessionID, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message: %w", err)
	}
	return &m, nil
}

func (s *sqliteStore) MessageByID(ctx context.Context, id string) (*Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, text, kind, proposal_status, session_id, created_at
		FROM messages WHERE id = ?
	`, id).Scan)
}

func (s *sqliteStore) MessagesByChat(ctx context.Context, chatID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, sender_id, text, kind, proposal_status, session_id, created_at
		FROM messages WHERE chat_id = ?
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (s *sqliteStore) UpdateProposal(ctx context.Context, messageID, status, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET proposal_status = ?, session_id = ?
		WHERE id = ? AND kind = 'proposal'
	`, status, sessionID, messageID)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("proposal message %s not found", messageID)
	}
	return nil
}

func (s *sqliteStore) ProposalMessageBySession(ctx context.Context, sessionID string) (*Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, sender_id, text, kind, proposal_status, session_id, created_at
		FROM messages WHERE session_id = ? AND kind = 'proposal'
	`, sessionID).Scan)
}

// ==== trial requests ====

func (s *sqliteStore) CreateTrialRequest(ctx context.Context, r *TrialRequest) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trial_requests (id, student_id, subject, status)
		VALUES (?, ?, ?, ?)
	`, r.ID, r.StudentID, r.Subject, r.Status)
	if err != nil {
		return fmt.Errorf("insert trial request: %w", err)
	}
	return nil
}

func scanTrialRequest(scan func(...any) error) (*TrialRequest, error) {
	var r TrialRequest
	err := scan(&r.ID, &r.StudentID, &r.TutorID, &r.ChatID, &r.Subject, &r.Status, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan trial request: %w", err)
	}
	return &r, nil
}

const trialRequestColumns = `id, student_id, tutor_id, chat_id, subject, status, created_at`

func (s *sqliteStore) TrialRequestByID(ctx context.Context, id string) (*TrialRequest, error) {
	return scanTrialRequest(s.db.QueryRowContext(ctx,
		`SELECT `+trialRequestColumns+` FROM trial_requests WHERE id = ?`, id).Scan)
}

func (s *sqliteStore) TrialRequestByChat(ctx context.Context, chatID string) (*TrialRequest, error) {
	return scanTrialRequest(s.db.QueryRowContext(ctx,
		`SELECT `+trialRequestColumns+` FROM trial_requests WHERE chat_id = ?`, chatID).Scan)
}

func (s *sqliteStore) CurrentTrialRequest(ctx context.Context, studentID string) (*TrialRequest, error) {
	return scanTrialRequest(s.db.QueryRowContext(ctx,
		`SELECT `+trialRequestColumns+` FROM trial_requests
		 WHERE student_id = ? AND status = 'PENDING'
		 ORDER BY created_at DESC LIMIT 1`, studentID).Scan)
}

func (s *sqliteStore) queryTrialRequests(ctx context.Context, where string, args ...any) ([]*TrialRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+trialRequestColumns+` FROM trial_requests `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query trial requests: %w", err)
	}
	defer rows.Close()

	var reqs []*TrialRequest
	for rows.Next() {
		r, err := scanTrialRequest(rows.Scan)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

func (s *sqliteStore) TrialRequestsByStudent(ctx context.Context, studentID string) ([]*TrialRequest, error) {
	return s.queryTrialRequests(ctx, `WHERE student_id = ? ORDER BY created_at DESC`, studentID)
}

func (s *sqliteStore) PendingTrialRequests(ctx context.Context) ([]*TrialRequest, error) {
	return s.queryTrialRequests(ctx, `WHERE status = 'PENDING' ORDER BY created_at ASC`)
}

func (s *sqliteStore) AcceptTrialRequest(ctx context.Context, requestID, tutorID, chatID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trial_requests SET tutor_id = ?, chat_id = ?, status = 'ACCEPTED'
		WHERE id = ? AND status = 'PENDING'
	`, tutorID, chatID, requestID)
	if err != nil {
		return fmt.Errorf("accept trial request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("accept trial request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trial request %s is not pending", requestID)
	}
	return nil
}

// ==== sessions ====

func (s *sqliteStore) CreateSession(ctx context.Context, sess *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, chat_id, trial_request_id, tutor_id, student_id, status, start_time, end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, sess.ID, sess.ChatID, sess.TrialRequestID, sess.TutorID, sess.StudentID, sess.Status, sess.StartTime, sess.EndTime)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func scanSession(scan func(...any) error) (*Session, error) {
	var sess Session
	err := scan(&sess.ID, &sess.ChatID, &sess.TrialRequestID, &sess.TutorID, &sess.StudentID, &sess.Status, &sess.StartTime, &sess.EndTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return &sess, nil
}

const sessionColumns = `id, chat_id, trial_request_id, tutor_id, student_id, status, start_time, end_time`

func (s *sqliteStore) SessionByID(ctx context.Context, id string) (*Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id).Scan)
}

func (s *sqliteStore) SessionByTrialRequest(ctx context.Context, requestID string) (*Session, error) {
	return scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE trial_request_id = ?`, requestID).Scan)
}

func (s *sqliteStore) SessionsByUser(ctx context.Context, userID string) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE tutor_id = ? OR student_id = ?
		 ORDER BY start_time DESC`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

func (s *sqliteStore) UpdateSessionStatus(ctx context.Context, sessionID, status string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = ? WHERE id = ?
	`, status, sessionID)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("session %s not found", sessionID)
	}
	return nil
}

// ==== feedback and reviews ====

func (s *sqliteStore) SaveFeedback(ctx context.Context, f *Feedback) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, session_id, tutor_id, rating, feedback_text)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.SessionID, f.TutorID, f.Rating, f.FeedbackText)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *sqliteStore) FeedbackBySession(ctx context.Context, sessionID string) (*Feedback, error) {
	var f Feedback
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, tutor_id, rating, feedback_text, created_at
		FROM feedback WHERE session_id = ?
	`, sessionID).Scan(&f.ID, &f.SessionID, &f.TutorID, &f.Rating, &f.FeedbackText, &f.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan feedback: %w", err)
	}
	return &f, nil
}

func (s *sqliteStore) SaveReview(ctx context.Context, r *Review) error {
	ratings, err := json.Marshal(r.Ratings)
	if err != nil {
		return fmt.Errorf("encode ratings: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO reviews (id, session_id, student_id, ratings, comment)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.SessionID, r.StudentID, string(ratings), r.Comment)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *sqliteStore) ReviewBySession(ctx context.Context, sessionID string) (*Review, error) {
	var r Review
	var ratings string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, student_id, ratings, comment, created_at
		FROM reviews WHERE session_id = ?
	`, sessionID).Scan(&r.ID, &r.SessionID, &r.StudentID, &ratings, &r.Comment, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan review: %w", err)
	}
	if err := json.Unmarshal([]byte(ratings), &r.Ratings); err != nil {
		return nil, fmt.Errorf("decode ratings: %w", err)
	}
	return &r, nil
}
