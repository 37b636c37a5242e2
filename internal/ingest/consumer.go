package ingest

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
)

// envelope is the wire shape group and membership changes arrive in from the
// upstream services.
type envelope struct {
	Type        string            `json:"type"`
	AggregateID string            `json:"aggregateId"`
	GroupID     string            `json:"groupId"`
	GroupName   string            `json:"groupName,omitempty"`
	MemberID    string            `json:"memberId,omitempty"`
	RoleID      string            `json:"roleId,omitempty"`
	Changes     map[string]string `json:"changes,omitempty"`
	Source      string            `json:"source,omitempty"`
	UserID      string            `json:"userId,omitempty"`
}

// Consumer reads group lifecycle records from Kafka and republishes them on
// the in-process event bus.
type Consumer struct {
	client *kgo.Client
	bus    *event.Bus
	log    *zap.Logger
}

func New(brokers, topics []string, group string, bus *event.Bus, log *zap.Logger) (*Consumer, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.OnPartitionsRevoked(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			log.Info("kafka partitions revoked")
		}),
		kgo.OnPartitionsAssigned(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			log.Info("kafka partitions assigned")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: cl, bus: bus, log: log}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	go func() {
		c.log.Info("ingest consumer started")
		for {
			select {
			case <-ctx.Done():
				c.log.Info("ingest consumer stopping: context canceled")
				return
			default:
				fetches := c.client.PollFetches(ctx)
				if errs := fetches.Errors(); len(errs) > 0 {
					for _, ferr := range errs {
						if errors.Is(ferr.Err, context.Canceled) {
							return
						}
						c.log.Error("kafka fetch error",
							zap.String("topic", ferr.Topic),
							zap.Int32("partition", ferr.Partition),
							zap.Error(ferr.Err),
						)
					}
					continue
				}

				fetches.EachRecord(func(r *kgo.Record) {
					c.handle(r.Value)
				})
			}
		}
	}()
}

func (c *Consumer) handle(value []byte) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		c.log.Warn("ingest: dropping undecodable record", zap.Error(err))
		return
	}
	if !knownType(env.Type) {
		c.log.Warn("ingest: dropping record with unknown type", zap.String("type", env.Type))
		return
	}

	aggregateID := env.AggregateID
	if aggregateID == "" {
		aggregateID = env.GroupID
	}
	source := env.Source
	if source == "" {
		source = "ingest"
	}

	e := event.New(env.Type, aggregateID, event.GroupPayload{
		GroupID:   env.GroupID,
		GroupName: env.GroupName,
		MemberID:  env.MemberID,
		RoleID:    env.RoleID,
		Changes:   env.Changes,
	}, event.Metadata{
		Source: source,
		UserID: env.UserID,
	})
	if err := c.bus.Publish(e); err != nil {
		c.log.Error("ingest: publish failed", zap.String("type", env.Type), zap.Error(err))
	}
}

func knownType(t string) bool {
	switch t {
	case event.TypeGroupCreated, event.TypeGroupUpdated, event.TypeGroupDeleted,
		event.TypeGroupMemberAdded, event.TypeGroupMemberLeft:
		return true
	}
	return false
}

func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
