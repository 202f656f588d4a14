package orchestrator

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/adk/session"

	"conductor/internal/metrics"
	"conductor/pkg/errors"
)

// ensureSession returns an existing session or creates one. An empty
// sessionID starts a fresh session under a generated UUID. Lookup and
// creation defer entirely to the runtime's session service.
func ensureSession(ctx context.Context, svc session.Service, appName, userID, sessionID string) (session.Session, error) {
	if userID == "" {
		return nil, errors.Wrap(errors.ErrInvalidInput, "user id is required")
	}

	if sessionID == "" {
		resp, err := svc.Create(ctx, &session.CreateRequest{
			AppName:   appName,
			UserID:    userID,
			SessionID: uuid.NewString(),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create session")
		}
		metrics.SessionsActive.Inc()
		return resp.Session, nil
	}

	resp, err := svc.Get(ctx, &session.GetRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err == nil {
		return resp.Session, nil
	}

	// Unknown session IDs fall through to creation so callers can pin
	// their own identifiers.
	created, err := svc.Create(ctx, &session.CreateRequest{
		AppName:   appName,
		UserID:    userID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create session")
	}
	metrics.SessionsActive.Inc()
	return created.Session, nil
}

// snapshotState copies a session's state into a plain map.
func snapshotState(sess session.Session) map[string]interface{} {
	state := map[string]interface{}{}
	if sess == nil {
		return state
	}
	for key, value := range sess.State().All() {
		state[key] = value
	}
	return state
}
