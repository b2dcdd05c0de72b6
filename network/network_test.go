package network_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/network"
	"github.com/cmwaters/privpoll/poll"
)

func TestMessageRoundTrip(t *testing.T) {
	events := []poll.Event{
		poll.NewEvent(poll.EventPollCreated, poll.PollCreatedEvent{PollID: 1, Title: "T", Creator: "alice", StartTime: 10, EndTime: 20}),
		poll.NewEvent(poll.EventVoteCast, poll.VoteCastEvent{PollID: 1, Voter: "bob"}),
		poll.NewEvent(poll.EventPollClosed, poll.PollClosedEvent{PollID: 1}),
		poll.NewEvent(poll.EventDecryptionRequested, poll.DecryptionRequestedEvent{PollID: 1, Requester: "carol"}),
		poll.NewEvent(poll.EventDecryptorAuthorized, poll.DecryptorEvent{Decryptor: "dave", By: "owner"}),
		poll.NewEvent(poll.EventDecryptorRevoked, poll.DecryptorEvent{Decryptor: "dave", By: "owner"}),
		poll.NewEvent(poll.EventAccessGranted, poll.AccessGrantedEvent{PollID: 1, Option: 1, Grantee: "erin", By: "owner"}),
	}
	for _, evt := range events {
		msg, err := network.NewMessage(evt)
		require.NoError(t, err)
		out, err := msg.Event()
		require.NoError(t, err)
		require.Equal(t, evt.Type, out.Type)
		require.Equal(t, evt.Data, out.Data)
		require.True(t, evt.Timestamp.Equal(out.Timestamp))
	}
}

func TestMessageValidateForm(t *testing.T) {
	msg, err := network.NewMessage(poll.NewEvent(poll.EventPollClosed, poll.PollClosedEvent{PollID: 1}))
	require.NoError(t, err)
	require.NoError(t, msg.ValidateForm())

	unknown := *msg
	unknown.Type = "poll.deleted"
	require.Error(t, unknown.ValidateForm())

	empty := *msg
	empty.Data = nil
	require.Error(t, empty.ValidateForm())

	undated := *msg
	undated.Timestamp = time.Time{}
	require.Error(t, undated.ValidateForm())
}

type inbox struct {
	msgs     chan *network.Message
	validate func(*network.Message) error
}

func newInbox() *inbox {
	return &inbox{
		msgs:     make(chan *network.Message, 10),
		validate: func(*network.Message) error { return nil },
	}
}

func (i *inbox) OnEvent(ctx context.Context, msg *network.Message) error {
	if err := i.validate(msg); err != nil {
		return err
	}
	select {
	case i.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *inbox) receive(t *testing.T) *network.Message {
	t.Helper()
	select {
	case msg := <-i.msgs:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func TestLocalNetwork(t *testing.T) {
	ctx := context.Background()
	net := network.NewLocalNetwork()
	g0, err := net.Gossip("polls")
	require.NoError(t, err)
	g1, err := net.Gossip("polls")
	require.NoError(t, err)
	other, err := net.Gossip("elsewhere")
	require.NoError(t, err)

	in0, in1, inOther := newInbox(), newInbox(), newInbox()
	g0.Notify(in0)
	g1.Notify(in1)
	other.Notify(inOther)

	msg, err := network.NewMessage(poll.NewEvent(poll.EventVoteCast, poll.VoteCastEvent{PollID: 3, Voter: "bob"}))
	require.NoError(t, err)
	require.NoError(t, g0.BroadcastEvent(ctx, msg))
	assert.Equal(t, msg, in0.receive(t))
	assert.Equal(t, msg, in1.receive(t))
	assert.Empty(t, inOther.msgs)

	// a local rejection fails the broadcast
	in1.validate = func(*network.Message) error { return errors.New("invalid") }
	require.Error(t, g1.BroadcastEvent(ctx, msg))

	require.NoError(t, g1.Close())
	require.ErrorIs(t, g1.BroadcastEvent(ctx, msg), network.ErrClosed)
	require.NoError(t, g0.BroadcastEvent(ctx, msg))
	assert.Equal(t, msg, in0.receive(t))
	assert.Empty(t, in1.msgs)

	require.Error(t, g0.BroadcastEvent(ctx, &network.Message{Type: poll.EventVoteCast}))
}

func TestBridgeForwardsEngineEvents(t *testing.T) {
	bus := poll.NewEventBus(nil, zerolog.Nop())
	defer bus.Stop()
	net := network.NewLocalNetwork()
	local, err := net.Gossip("polls")
	require.NoError(t, err)
	remote, err := net.Gossip("polls")
	require.NoError(t, err)

	var (
		mtx  sync.Mutex
		seen []poll.EventType
	)
	got := make(chan poll.Event, 10)
	remote.Notify(network.NotifieeFunc(func(_ context.Context, msg *network.Message) error {
		evt, err := msg.Event()
		if err != nil {
			return err
		}
		mtx.Lock()
		seen = append(seen, evt.Type)
		mtx.Unlock()
		got <- evt
		return nil
	}))

	bridge := network.NewBridge(bus, local, zerolog.Nop())
	bridge.Start()
	defer bridge.Stop()

	bus.Publish(poll.EventPollClosed, poll.NewEvent(poll.EventPollClosed, poll.PollClosedEvent{PollID: 9}))
	select {
	case evt := <-got:
		require.Equal(t, poll.PollClosedEvent{PollID: 9}, evt.Data)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for bridged event")
	}

	bridge.Stop()
	bus.Publish(poll.EventPollClosed, poll.NewEvent(poll.EventPollClosed, poll.PollClosedEvent{PollID: 10}))
	time.Sleep(50 * time.Millisecond)
	mtx.Lock()
	defer mtx.Unlock()
	require.Equal(t, []poll.EventType{poll.EventPollClosed}, seen)
}
