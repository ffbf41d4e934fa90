package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ernie/swarm-arena/internal/domain"
)

// ErrUserNotFound is returned when a username does not exist
var ErrUserNotFound = errors.New("user not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string
// The Z suffix ensures the Go sqlite driver parses it back as UTC
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

//go:embed schema.sql
var schema string

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Match methods ---

// SaveMatch stores a completed match and its compressed replay payload
func (s *Store) SaveMatch(ctx context.Context, m *domain.Match) error {
	if !m.Completed() {
		return fmt.Errorf("match %s has not ended", m.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO matches (id, player1, player2, winner, score1, score2, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			winner = excluded.winner,
			score1 = excluded.score1,
			score2 = excluded.score2,
			ended_at = excluded.ended_at
	`, m.ID, m.Player1, m.Player2, m.Winner, m.Score[0], m.Score[1],
		formatTimestamp(m.StartedAt), formatTimestamp(*m.EndedAt))
	if err != nil {
		return fmt.Errorf("inserting match: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO replays (match_id, payload, raw_size)
		VALUES (?, ?, ?)
		ON CONFLICT(match_id) DO UPDATE SET
			payload = excluded.payload,
			raw_size = excluded.raw_size
	`, m.ID, compressPayload(m.Replay), len(m.Replay))
	if err != nil {
		return fmt.Errorf("inserting replay: %w", err)
	}

	return tx.Commit()
}

// GetReplay returns the replay for a match, or nil if it is unknown
func (s *Store) GetReplay(ctx context.Context, matchID string) (*domain.Replay, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.player1, m.player2, m.winner, m.score1, m.score2, m.started_at, m.ended_at,
		       r.payload, r.raw_size
		FROM matches m
		LEFT JOIN replays r ON r.match_id = m.id
		WHERE m.id = ? AND m.ended_at IS NOT NULL
	`, matchID)

	var payload []byte
	var rawSize sql.NullInt64
	r, err := scanReplay(row, &payload, &rawSize)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Payload, err = decompressPayload(payload, int(rawSize.Int64))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RecentMatches returns the most recently completed matches without payloads
func (s *Store) RecentMatches(ctx context.Context, limit int) ([]domain.Replay, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player1, player2, winner, score1, score2, started_at, ended_at
		FROM matches WHERE ended_at IS NOT NULL
		ORDER BY ended_at DESC, id LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Replay
	for rows.Next() {
		r, err := scanReplay(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *r)
	}
	return matches, rows.Err()
}

// PlayerHistory returns an identity's completed matches, most recent first
func (s *Store) PlayerHistory(ctx context.Context, identity string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, player1, player2, winner, score1, score2, started_at, ended_at
		FROM matches
		WHERE (player1 = ? OR player2 = ?) AND ended_at IS NOT NULL
		ORDER BY ended_at DESC, id LIMIT ?
	`, identity, identity, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []domain.HistoryEntry{}
	for rows.Next() {
		r, err := scanReplay(rows)
		if err != nil {
			return nil, err
		}
		opponent := r.Player2
		if identity == r.Player2 {
			opponent = r.Player1
		}
		history = append(history, domain.HistoryEntry{
			MatchID:  r.MatchID,
			Opponent: opponent,
			Won:      r.Winner == identity,
			Score:    r.Score,
			EndedAt:  r.EndedAt,
		})
	}
	return history, rows.Err()
}

// --- Leaderboard methods ---

// SaveLeaderboardEntries upserts ladder standings
func (s *Store) SaveLeaderboardEntries(ctx context.Context, entries ...domain.LeaderboardEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO leaderboard (identity, wins, losses, rating, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(identity) DO UPDATE SET
			wins = excluded.wins,
			losses = excluded.losses,
			rating = excluded.rating,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("preparing leaderboard upsert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, e.Identity, e.Wins, e.Losses, e.Rating); err != nil {
			return fmt.Errorf("upserting %s: %w", e.Identity, err)
		}
	}
	return tx.Commit()
}

// LoadLeaderboard returns every standing in first-recorded order
func (s *Store) LoadLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, wins, losses, rating FROM leaderboard ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.Identity, &e.Wins, &e.Losses, &e.Rating); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- User methods ---

// User represents an authenticated user
type User struct {
	ID                     int64
	Username               string
	PasswordHash           string
	IsAdmin                bool
	PasswordChangeRequired bool
	CreatedAt              time.Time
	LastLogin              *time.Time
}

// CreateUser creates a new user account
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash, is_admin)
		VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	return err
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users WHERE username = ?
	`, username)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	return user, err
}

// DeleteUser removes a user by username
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE username = ?`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return nil
}

// ListUsers returns all users with details
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, password_change_required, created_at, last_login
		FROM users ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

// UpdateUserLastLogin updates the last login timestamp
func (s *Store) UpdateUserLastLogin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = ?
	`, userID)
	return err
}

// UpdateUserPassword updates a user's password and clears the password_change_required flag
func (s *Store) UpdateUserPassword(ctx context.Context, userID int64, newPasswordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, password_change_required = FALSE WHERE id = ?
	`, newPasswordHash, userID)
	return err
}
