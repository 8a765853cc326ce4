// Package compensate performs the rollback writes after a submission is
// rejected or cannot be classified. The writes are deliberately independent
// rather than transactional: a failure in one must never suppress the
// attempt at the other, and each failure is logged on its own.
package compensate

import (
	"context"
	"log"
)

// PostDeleter removes the post record a failed submission was attached to.
type PostDeleter interface {
	DeletePost(ctx context.Context, postID int64) error
}

// AccountLocker locks a user account in the record store.
type AccountLocker interface {
	LockAccount(ctx context.Context, userID string) error
}

// BanRecorder mirrors the account lock into the fast ban cache so the
// ingestion endpoint can reject further submissions up front. Optional.
type BanRecorder interface {
	Ban(ctx context.Context, userID, reason string) error
}

// Store coordinates the compensating writes.
type Store struct {
	posts    PostDeleter
	accounts AccountLocker
	bans     BanRecorder // may be nil
}

// NewStore creates a compensating store. bans may be nil when no ban cache
// is configured.
func NewStore(posts PostDeleter, accounts AccountLocker, bans BanRecorder) *Store {
	return &Store{posts: posts, accounts: accounts, bans: bans}
}

// Ban runs "ban" mode compensation for a policy-violating submission: lock
// the account, record the ban in the cache, then delete the post. All three
// writes are attempted regardless of earlier failures.
func (s *Store) Ban(ctx context.Context, userID string, postID int64, reason string) {
	if err := s.accounts.LockAccount(ctx, userID); err != nil {
		log.Printf("[compensate] lock account user=%s post=%d: %v", userID, postID, err)
	} else {
		log.Printf("[compensate] user=%s banned for uploading policy-violating content", userID)
	}

	if s.bans != nil {
		if err := s.bans.Ban(ctx, userID, reason); err != nil {
			log.Printf("[compensate] ban cache user=%s: %v", userID, err)
		}
	}

	if err := s.posts.DeletePost(ctx, postID); err != nil {
		log.Printf("[compensate] delete post user=%s post=%d: %v", userID, postID, err)
	}
}

// Failure runs "failure" mode compensation for a submission the classifier
// could not process: delete the post record only, no account lock.
func (s *Store) Failure(ctx context.Context, postID int64) {
	if err := s.posts.DeletePost(ctx, postID); err != nil {
		log.Printf("[compensate] delete post post=%d: %v", postID, err)
	}
}
