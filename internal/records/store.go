// Package records provides PostgreSQL-backed access to the post and account
// records the pipeline mutates: the canonical image URL and generated
// description on a post, plus the rollback writes (post deletion, account
// lock) performed when a submission is rejected or cannot be classified.
package records

import (
	"context"
	"database/sql"
	"fmt"
)

// Store manages post and account records in PostgreSQL. Every operation
// runs in its own short-lived statement scope; cross-request consistency is
// delegated entirely to the database.
type Store struct {
	db *sql.DB
}

// NewStore creates a record store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// SetImageURL writes the canonical image URL onto a post record. It is set
// at most once per post, after moderation approval and successful storage.
func (s *Store) SetImageURL(ctx context.Context, postID int64, imageURL string) error {
	const query = `UPDATE posts SET image_url = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, imageURL, postID); err != nil {
		return fmt.Errorf("records: set image url for post %d: %w", postID, err)
	}
	return nil
}

// SetDescription writes the generated caption onto a post record. A
// redelivered description ticket overwrites any earlier caption.
func (s *Store) SetDescription(ctx context.Context, postID int64, description string) error {
	const query = `UPDATE posts SET description = $1 WHERE id = $2`
	if _, err := s.db.ExecContext(ctx, query, description, postID); err != nil {
		return fmt.Errorf("records: set description for post %d: %w", postID, err)
	}
	return nil
}

// DeletePost removes a post record. Deleting an already-absent post is not
// an error; compensation must be safe to re-run.
func (s *Store) DeletePost(ctx context.Context, postID int64) error {
	const query = `DELETE FROM posts WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, postID); err != nil {
		return fmt.Errorf("records: delete post %d: %w", postID, err)
	}
	return nil
}

// LockAccount marks a user account as locked out.
func (s *Store) LockAccount(ctx context.Context, userID string) error {
	const query = `UPDATE users SET locked = TRUE WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("records: lock account %s: %w", userID, err)
	}
	return nil
}
