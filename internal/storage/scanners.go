package storage

import (
	"database/sql"
	"time"

	"github.com/ernie/swarm-arena/internal/domain"
)

func scanNullTime(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

func scanNullStringValue(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

// scanUser scans a user row from the database
func scanUser(s scanner) (*User, error) {
	var user User
	var lastLogin sql.NullTime
	err := s.Scan(&user.ID, &user.Username, &user.PasswordHash, &user.IsAdmin,
		&user.PasswordChangeRequired, &user.CreatedAt, &lastLogin)
	if err != nil {
		return nil, err
	}
	user.LastLogin = scanNullTime(lastLogin)
	return &user, nil
}

// scanReplay scans match columns, plus any extra destinations appended after them
func scanReplay(s scanner, extra ...any) (*domain.Replay, error) {
	var r domain.Replay
	var winner sql.NullString
	var endedAt sql.NullTime
	dest := []any{&r.MatchID, &r.Player1, &r.Player2, &winner, &r.Score[0], &r.Score[1], &r.StartedAt, &endedAt}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	r.Winner = scanNullStringValue(winner)
	if endedAt.Valid {
		r.EndedAt = endedAt.Time
	}
	return &r, nil
}
