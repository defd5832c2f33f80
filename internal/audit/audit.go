package audit

import (
	"context"
	"time"

	"docvault-backend/internal/authz"
)

// Decision is one authorization verdict, recorded after the engine decides.
type Decision struct {
	DecidedAt    time.Time
	Tenant       string
	UserKey      string
	Action       string
	ResourceType string
	ResourceKey  string
	Allowed      bool
}

// Recorder accepts decisions for eventual persistence. Record must not
// block the request path.
type Recorder interface {
	Record(d Decision)
	Stop()
}

// RecordingChecker wraps a permission checker and records every verdict it
// produces. Failed checks (errors, not denials) are not recorded.
type RecordingChecker struct {
	next authz.Checker
	rec  Recorder
}

var _ authz.Checker = (*RecordingChecker)(nil)

func NewRecordingChecker(next authz.Checker, rec Recorder) *RecordingChecker {
	return &RecordingChecker{next: next, rec: rec}
}

func (c *RecordingChecker) Check(ctx context.Context, userKey, action string, ref authz.InstanceRef) (bool, error) {
	allowed, err := c.next.Check(ctx, userKey, action, ref)
	if err != nil {
		return false, err
	}
	c.rec.Record(Decision{
		DecidedAt:    time.Now().UTC(),
		Tenant:       ref.Tenant,
		UserKey:      userKey,
		Action:       action,
		ResourceType: ref.Type,
		ResourceKey:  ref.Key,
		Allowed:      allowed,
	})
	return allowed, nil
}
