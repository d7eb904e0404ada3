package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kindred-finance/kindred/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and
// initializes the schema. Parent directories are created if missing.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		auth_subject TEXT UNIQUE,
		name TEXT NOT NULL,
		email TEXT UNIQUE NOT NULL,
		phone TEXT,
		age INTEGER,
		income_range TEXT,
		marital_status TEXT,
		employment_status TEXT,
		education TEXT,
		location TEXT,
		financial_goals TEXT,
		risk_tolerance TEXT,
		dependents INTEGER,
		investment_experience TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		messages TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id);
	CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
	`
	_, err := db.Exec(schema)
	return err
}

const userColumns = `id, auth_subject, name, email, phone,
	COALESCE(age, 0), COALESCE(income_range, ''), COALESCE(marital_status, ''),
	COALESCE(employment_status, ''), COALESCE(education, ''), COALESCE(location, ''),
	COALESCE(financial_goals, ''), COALESCE(risk_tolerance, ''),
	COALESCE(dependents, 0), COALESCE(investment_experience, ''), created_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var subject, phone sql.NullString
	err := row.Scan(&u.ID, &subject, &u.Name, &u.Email, &phone,
		&u.Profile.Age, &u.Profile.IncomeRange, &u.Profile.MaritalStatus,
		&u.Profile.EmploymentStatus, &u.Profile.Education, &u.Profile.Location,
		&u.Profile.FinancialGoals, &u.Profile.RiskTolerance,
		&u.Profile.Dependents, &u.Profile.InvestmentExp, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.AuthSubject = subject.String
	u.Phone = phone.String
	return &u, nil
}

// CreateUser inserts a new user and returns its id.
func (s *SQLiteStorage) CreateUser(ctx context.Context, name, email, phone string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO users (name, email, phone) VALUES (?, ?, ?)", name, email, phone)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return res.LastInsertId()
}

// UpsertUserFromIdentity creates or updates a user from a verified identity.
// Matching prefers the stable subject; a user registered earlier by email
// alone is adopted and gains the subject.
func (s *SQLiteStorage) UpsertUserFromIdentity(ctx context.Context, subject, name, email string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE auth_subject = ?", subject).Scan(&id)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx,
			"UPDATE users SET name = ?, email = ? WHERE auth_subject = ?", name, email, subject); err != nil {
			return 0, fmt.Errorf("update user by subject: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		err = tx.QueryRowContext(ctx, "SELECT id FROM users WHERE email = ?", email).Scan(&id)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				"UPDATE users SET auth_subject = ?, name = ? WHERE email = ?", subject, name, email); err != nil {
				return 0, fmt.Errorf("adopt user by email: %w", err)
			}
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx,
				"INSERT INTO users (auth_subject, name, email) VALUES (?, ?, ?)", subject, name, email)
			if err != nil {
				return 0, fmt.Errorf("insert user: %w", err)
			}
			if id, err = res.LastInsertId(); err != nil {
				return 0, err
			}
		default:
			return 0, fmt.Errorf("lookup user by email: %w", err)
		}
	default:
		return 0, fmt.Errorf("lookup user by subject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert: %w", err)
	}
	return id, nil
}

// GetUser returns a user by id.
func (s *SQLiteStorage) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetUserByAuthSubject returns a user by identity subject.
func (s *SQLiteStorage) GetUserByAuthSubject(ctx context.Context, subject string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE auth_subject = ?", subject))
}

// GetUserByEmail returns a user by email.
func (s *SQLiteStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = ?", email))
}

// UpdateUserProfile overwrites the profile columns for a user.
func (s *SQLiteStorage) UpdateUserProfile(ctx context.Context, id int64, profile models.UserProfile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET age = ?, income_range = ?, marital_status = ?,
			employment_status = ?, education = ?, location = ?,
			financial_goals = ?, risk_tolerance = ?,
			dependents = ?, investment_experience = ?
		WHERE id = ?`,
		profile.Age, profile.IncomeRange, profile.MaritalStatus,
		profile.EmploymentStatus, profile.Education, profile.Location,
		profile.FinancialGoals, profile.RiskTolerance,
		profile.Dependents, profile.InvestmentExp, id)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// StoreConversation writes the full message list for a conversation,
// replacing any previous state. Last writer wins.
func (s *SQLiteStorage) StoreConversation(ctx context.Context, conversationID, userID string, messages []models.Message) error {
	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO conversations (id, user_id, messages, updated_at)
		VALUES (?, ?, ?, ?)`,
		conversationID, userID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store conversation: %w", err)
	}
	return nil
}

// GetConversation returns the stored message list, or ErrNotFound.
func (s *SQLiteStorage) GetConversation(ctx context.Context, conversationID, userID string) ([]models.Message, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT messages FROM conversations WHERE id = ? AND user_id = ?",
		conversationID, userID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	var messages []models.Message
	if err := json.Unmarshal([]byte(payload), &messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	return messages, nil
}

// DeleteConversation removes one conversation.
func (s *SQLiteStorage) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE id = ? AND user_id = ?", conversationID, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CleanupOldConversations deletes conversations not updated within olderThan
// and returns how many were removed.
func (s *SQLiteStorage) CleanupOldConversations(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM conversations WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup conversations: %w", err)
	}
	return res.RowsAffected()
}

// CountConversations returns the number of stored conversations.
func (s *SQLiteStorage) CountConversations(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
