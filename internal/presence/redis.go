package presence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mirrorTTL      = 60 * time.Second
	UpdatesChannel = "presence:updates"
)

// Mirror publishes presence changes into Redis with TTL'd session keys. The
// in-memory Registry stays authoritative for this process; the mirror exists
// so other instances and ops tooling can observe who is online. It is the
// coordination extension point for a future multi-instance deployment.
type Mirror struct {
	client     *redis.Client
	instanceID string
}

func NewMirror(client *redis.Client, instanceID string) *Mirror {
	return &Mirror{client: client, instanceID: instanceID}
}

func sessionKey(userID string) string {
	return "presence:session:" + userID
}

type update struct {
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	InstanceID string `json:"instanceId"`
	OccurredAt int64  `json:"occurredAt"`
}

func (m *Mirror) Register(ctx context.Context, userID string) error {
	if m == nil {
		return nil
	}
	if err := m.client.Set(ctx, sessionKey(userID), m.instanceID, mirrorTTL).Err(); err != nil {
		return err
	}
	return m.publish(ctx, userID, "online")
}

func (m *Mirror) Unregister(ctx context.Context, userID string) error {
	if m == nil {
		return nil
	}
	if err := m.client.Del(ctx, sessionKey(userID)).Err(); err != nil {
		return err
	}
	return m.publish(ctx, userID, "offline")
}

func (m *Mirror) Refresh(ctx context.Context, userID string) error {
	if m == nil {
		return nil
	}
	return m.client.Expire(ctx, sessionKey(userID), mirrorTTL).Err()
}

func (m *Mirror) publish(ctx context.Context, userID, status string) error {
	payload, err := json.Marshal(update{
		UserID:     userID,
		Status:     status,
		InstanceID: m.instanceID,
		OccurredAt: time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	return m.client.Publish(ctx, UpdatesChannel, payload).Err()
}
