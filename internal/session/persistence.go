package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const keyPrefix = "lexflow:session:"

// Persistence serializes workflow snapshots into a Store under a versioned
// schema.
type Persistence struct {
	store Store
}

func NewPersistence(store Store) *Persistence {
	return &Persistence{store: store}
}

// Save writes the snapshot, stamping the current schema version and
// timestamp. All-empty snapshots are skipped rather than written.
func (p *Persistence) Save(ctx context.Context, workflowID string, sess WorkflowSession) error {
	if sess.Empty() {
		return nil
	}
	sess.Version = SchemaVersion
	sess.Timestamp = time.Now().UTC()
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := p.store.Set(ctx, keyPrefix+workflowID, string(payload)); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// Restore reads the persisted snapshot. Missing, corrupt, or stale-version
// records yield (nil, nil): the workflow just starts fresh, with the bad
// record removed so it cannot resurface.
func (p *Persistence) Restore(ctx context.Context, workflowID string) (*WorkflowSession, error) {
	raw, err := p.store.Get(ctx, keyPrefix+workflowID)
	if err != nil {
		if errors.Is(err, ErrStoreNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session: %w", err)
	}

	var sess WorkflowSession
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		_ = p.store.Remove(ctx, keyPrefix+workflowID)
		return nil, nil
	}
	if sess.Version != SchemaVersion {
		_ = p.store.Remove(ctx, keyPrefix+workflowID)
		return nil, nil
	}
	return &sess, nil
}

// Clear removes the persisted snapshot.
func (p *Persistence) Clear(ctx context.Context, workflowID string) error {
	return p.store.Remove(ctx, keyPrefix+workflowID)
}
