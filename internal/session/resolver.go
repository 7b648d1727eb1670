package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/studylens/studylens/internal/log"
)

// Scope is the retrieval restriction derived from a session. A nil
// Documents slice means the whole corpus is searchable; a non-nil slice
// restricts retrieval to exactly those documents.
type Scope struct {
	SessionID string
	Documents []string
}

// Scoped reports whether the scope restricts retrieval.
func (s Scope) Scoped() bool { return s.Documents != nil }

// DocumentLister is the slice of Store the resolver needs.
type DocumentLister interface {
	Documents(ctx context.Context, id uuid.UUID) ([]string, error)
}

// Resolver turns a session ID into a retrieval scope. Lookup problems fail
// open: an unknown session, a malformed ID, or a storage error all yield an
// unrestricted scope rather than blocking the question. The failure is
// logged so a silently widened search is still diagnosable.
type Resolver struct {
	lister DocumentLister
	logger log.Logger
}

// NewResolver creates a Resolver. A nil logger disables logging.
func NewResolver(lister DocumentLister, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Resolver{lister: lister, logger: logger}
}

// Resolve maps sessionID to a Scope. An empty sessionID is the sessionless
// path and is not logged.
func (r *Resolver) Resolve(ctx context.Context, sessionID string) Scope {
	if sessionID == "" {
		return Scope{}
	}

	id, err := uuid.Parse(sessionID)
	if err != nil {
		r.logger.Warn("malformed session id, searching whole corpus",
			"session_id", sessionID, "error", err)
		return Scope{SessionID: sessionID}
	}

	docs, err := r.lister.Documents(ctx, id)
	if err != nil {
		r.logger.Warn("session document lookup failed, searching whole corpus",
			"session_id", sessionID, "error", err)
		return Scope{SessionID: sessionID}
	}
	if len(docs) == 0 {
		// A session with nothing attached searches everything.
		return Scope{SessionID: sessionID}
	}
	return Scope{SessionID: sessionID, Documents: docs}
}
