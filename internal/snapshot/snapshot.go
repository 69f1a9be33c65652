// Package snapshot archives copies of the schedule after runs that pass the
// governance gate, and restores them on request.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/dyluth/docket/pkg/schedule"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a snapshot ID is unknown.
var ErrNotFound = errors.New("snapshot not found")

const idTimeLayout = "20060102_150405"

// Snapshot is one archived copy of the schedule.
type Snapshot struct {
	ID        string          `json:"id"`
	Reason    string          `json:"reason"`
	CreatedAt time.Time       `json:"created_at"`
	Meta      map[string]any  `json:"meta,omitempty"`
	State     *schedule.State `json:"state"`
}

// Store keeps snapshots next to the schedule they copy.
type Store struct {
	client  *schedule.Client
	now     func() time.Time
	lockTTL time.Duration
}

// New creates a snapshot store on client's instance.
func New(client *schedule.Client) *Store {
	return &Store{client: client, now: time.Now}
}

// WithLockTTL sets the TTL of the schedule lock Restore holds. Zero means
// schedule.DefaultLockTTL.
func (s *Store) WithLockTTL(ttl time.Duration) *Store {
	s.lockTTL = ttl
	return s
}

// ID builds a snapshot ID: snapshot_YYYYmmdd_HHMMSS_<reason>, with spaces and
// slashes in the reason replaced by underscores.
func ID(at time.Time, reason string) string {
	clean := strings.NewReplacer(" ", "_", "/", "_").Replace(reason)
	return fmt.Sprintf("snapshot_%s_%s", at.UTC().Format(idTimeLayout), clean)
}

// Save archives the current schedule. A second snapshot with the same reason
// in the same second gets a numeric suffix.
func (s *Store) Save(ctx context.Context, reason string, meta map[string]any) (*Snapshot, error) {
	if reason == "" {
		return nil, fmt.Errorf("snapshot reason cannot be empty")
	}

	state, err := s.client.Export(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read schedule: %w", err)
	}

	now := s.now().UTC()
	snap := &Snapshot{
		Reason:    reason,
		CreatedAt: now,
		Meta:      meta,
		State:     state,
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schedule: %w", err)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot metadata: %w", err)
	}

	rdb := s.client.RedisClient()
	instance := s.client.InstanceName()
	base := ID(now, reason)

	for n := 1; ; n++ {
		id := base
		if n > 1 {
			id = fmt.Sprintf("%s_%d", base, n)
		}
		key := schedule.SnapshotKey(instance, id)

		created, err := rdb.HSetNX(ctx, key, "id", id).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}
		if !created {
			continue
		}

		_, err = rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, map[string]interface{}{
				"reason":        reason,
				"created_at_ms": now.UnixMilli(),
				"meta":          string(metaJSON),
				"state":         string(stateJSON),
			})
			pipe.ZAdd(ctx, schedule.SnapshotIndexKey(instance), redis.Z{Score: float64(now.UnixMilli()), Member: id})
			return nil
		})
		if err != nil {
			rdb.Del(ctx, key)
			return nil, fmt.Errorf("failed to write snapshot: %w", err)
		}

		snap.ID = id
		log.Printf("[Snapshot] Saved %s (%d slot(s), %d task(s))", id, len(state.Slots), len(state.Tasks))
		return snap, nil
	}
}

// Archive saves a snapshot; it lets the store serve as the controller's
// success callback.
func (s *Store) Archive(ctx context.Context, reason string, meta map[string]any) error {
	_, err := s.Save(ctx, reason, meta)
	return err
}

// Get loads one snapshot.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	hash, err := s.client.RedisClient().HGetAll(ctx, schedule.SnapshotKey(s.client.InstanceName(), id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(hash) == 0 || hash["state"] == "" {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decode(hash)
}

// List returns every snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]*Snapshot, error) {
	ids, err := s.client.RedisClient().ZRevRange(ctx, schedule.SnapshotIndexKey(s.client.InstanceName()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snapshots := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, nil
}

// Latest returns the newest snapshot.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	ids, err := s.client.RedisClient().ZRevRange(ctx, schedule.SnapshotIndexKey(s.client.InstanceName()), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no snapshots saved", ErrNotFound)
	}
	return s.Get(ctx, ids[0])
}

// Restore replaces the live schedule with the snapshot's copy. It holds the
// schedule lock, so it never interleaves with a run.
func (s *Store) Restore(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	release, err := s.client.Lock(ctx, schedule.LockScope, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", id, err)
	}
	defer release()

	if err := s.client.Import(ctx, snap.State); err != nil {
		return nil, fmt.Errorf("failed to restore %s: %w", id, err)
	}
	log.Printf("[Snapshot] Restored %s", id)
	return snap, nil
}

// IsNotFound reports whether err means the snapshot does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func decode(hash map[string]string) (*Snapshot, error) {
	createdAtMs, err := strconv.ParseInt(hash["created_at_ms"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: invalid created_at_ms: %w", hash["id"], err)
	}

	snap := &Snapshot{
		ID:        hash["id"],
		Reason:    hash["reason"],
		CreatedAt: time.UnixMilli(createdAtMs).UTC(),
		State:     &schedule.State{},
	}
	if raw := hash["meta"]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &snap.Meta); err != nil {
			return nil, fmt.Errorf("snapshot %s: invalid meta: %w", snap.ID, err)
		}
	}
	if err := json.Unmarshal([]byte(hash["state"]), snap.State); err != nil {
		return nil, fmt.Errorf("snapshot %s: invalid state: %w", snap.ID, err)
	}
	return snap, nil
}
