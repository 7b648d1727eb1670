// Package session persists chat sessions and their attached documents, and
// resolves a session into a retrieval scope.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound indicates the session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one conversation thread. Attached documents restrict what its
// questions retrieve over.
type Session struct {
	ID        uuid.UUID
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists sessions in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps a pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a new session.
func (s *Store) Create(ctx context.Context, title string) (Session, error) {
	sess := Session{ID: uuid.New(), Title: title}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chat_sessions (id, title) VALUES ($1, $2)
		 RETURNING created_at, updated_at`,
		sess.ID, sess.Title).Scan(&sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Get fetches one session, ErrNotFound when absent.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Session, error) {
	var sess Session
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = $1`,
		id).Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// List returns all sessions, most recently updated first.
func (s *Store) List(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions
		 ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// Delete removes a session and, via cascade, its document attachments.
// Deleting an absent session is not an error.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// AttachDocuments associates documents with a session. Re-attaching an
// already attached document is a no-op.
func (s *Store) AttachDocuments(ctx context.Context, id uuid.UUID, documentUUIDs []string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	for _, docUUID := range documentUUIDs {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO session_documents (session_id, document_uuid)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			id, docUUID)
		if err != nil {
			return fmt.Errorf("attach document %s: %w", docUUID, err)
		}
	}
	return s.touch(ctx, id)
}

// DetachDocuments removes document associations. Detaching an absent
// association is not an error.
func (s *Store) DetachDocuments(ctx context.Context, id uuid.UUID, documentUUIDs []string) error {
	for _, docUUID := range documentUUIDs {
		_, err := s.pool.Exec(ctx,
			`DELETE FROM session_documents WHERE session_id = $1 AND document_uuid = $2`,
			id, docUUID)
		if err != nil {
			return fmt.Errorf("detach document %s: %w", docUUID, err)
		}
	}
	return s.touch(ctx, id)
}

// Documents returns the document UUIDs attached to a session, in attachment
// order. An existing session with no attachments returns an empty slice.
func (s *Store) Documents(ctx context.Context, id uuid.UUID) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_uuid FROM session_documents
		 WHERE session_id = $1 ORDER BY attached_at`, id)
	if err != nil {
		return nil, fmt.Errorf("session documents: %w", err)
	}
	defer rows.Close()

	docs := []string{}
	for rows.Next() {
		var docUUID string
		if err := rows.Scan(&docUUID); err != nil {
			return nil, fmt.Errorf("scan document uuid: %w", err)
		}
		docs = append(docs, docUUID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session documents: %w", err)
	}
	return docs, nil
}

func (s *Store) touch(ctx context.Context, id uuid.UUID) error {
	if _, err := s.pool.Exec(ctx,
		`UPDATE chat_sessions SET updated_at = now() WHERE id = $1`, id); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}
