package notification

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/teamgrid/realtime/internal/event"
	"github.com/teamgrid/realtime/internal/presence"
	"github.com/teamgrid/realtime/internal/room"
)

type fakeSink struct {
	sent []Notification
}

func (f *fakeSink) Send(ctx context.Context, n Notification) error {
	f.sent = append(f.sent, n)
	return nil
}

type fakeOnline map[string]bool

func (f fakeOnline) IsOnline(userID string) bool { return f[userID] }

type fakeParticipants map[string][]string

func (f fakeParticipants) Participants(ctx context.Context, conversationID string) ([]string, error) {
	return f[conversationID], nil
}

func messageSent(content string) event.Event {
	return event.New(event.TypeMessageSent, "c1", event.MessagePayload{
		MessageID:      "m1",
		ConversationID: "c1",
		SenderID:       "alice",
		Type:           "TEXT",
		Content:        content,
	}, event.Metadata{Source: "gateway", UserID: "alice"})
}

func TestNotifiesOfflineParticipantsOnly(t *testing.T) {
	sink := &fakeSink{}
	n := NewNotifier(sink,
		fakeOnline{"alice": true, "bob": true, "carol": false},
		fakeParticipants{"c1": {"alice", "bob", "carol"}},
		zap.NewNop())

	err := n.Handle(context.Background(), messageSent("hi"))
	require.NoError(t, err)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "carol", sink.sent[0].UserID)
	assert.Equal(t, "alice", sink.sent[0].SenderID)
	assert.Equal(t, "hi", sink.sent[0].Preview)
}

func TestNotifiesParticipantGoneFromLiveRooms(t *testing.T) {
	// A disconnected user has been removed from every room and from the
	// presence registry. They still hold durable membership, and they are
	// exactly who offline delivery exists for.
	rooms := room.NewDirectory()
	rooms.Add("c1", "bob")
	rooms.RemoveUser("bob")
	pres := presence.NewRegistry()

	sink := &fakeSink{}
	n := NewNotifier(sink, pres,
		fakeParticipants{"c1": {"alice", "bob"}},
		zap.NewNop())

	err := n.Handle(context.Background(), messageSent("hi"))
	require.NoError(t, err)

	require.Len(t, sink.sent, 1)
	assert.Equal(t, "bob", sink.sent[0].UserID)
}

func TestRoomParticipantsFallback(t *testing.T) {
	rooms := room.NewDirectory()
	rooms.Add("c1", "alice")
	rooms.Add("c1", "bob")

	got, err := NewRoomParticipants(rooms).Participants(context.Background(), "c1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got)
}

func TestSenderNeverNotified(t *testing.T) {
	sink := &fakeSink{}
	// The sender shows as offline because the event is processed after a
	// quick disconnect; they still must not be notified about their own send.
	n := NewNotifier(sink,
		fakeOnline{},
		fakeParticipants{"c1": {"alice"}},
		zap.NewNop())

	err := n.Handle(context.Background(), messageSent("hi"))
	require.NoError(t, err)
	assert.Empty(t, sink.sent)
}

func TestPreviewTruncated(t *testing.T) {
	sink := &fakeSink{}
	n := NewNotifier(sink,
		fakeOnline{},
		fakeParticipants{"c1": {"bob"}},
		zap.NewNop())

	long := make([]rune, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := n.Handle(context.Background(), messageSent(string(long)))
	require.NoError(t, err)

	require.Len(t, sink.sent, 1)
	assert.Len(t, []rune(sink.sent[0].Preview), previewLimit)
}

func TestReplaysIgnored(t *testing.T) {
	sink := &fakeSink{}
	n := NewNotifier(sink,
		fakeOnline{},
		fakeParticipants{"c1": {"bob"}},
		zap.NewNop())

	e := messageSent("hi")
	e.IsReplay = true
	err := n.Handle(context.Background(), e)
	require.NoError(t, err)
	assert.Empty(t, sink.sent)
}
