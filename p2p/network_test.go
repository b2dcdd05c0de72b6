package p2p

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll/network"
	"github.com/cmwaters/privpoll/poll"
)

const testTopic = "ZGODA"

// TestP2PNetwork works solely over the network API without any knowledge of
// the underlying implementation.
func TestP2PNetwork(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)

	nets := setupP2PNetworks(ctx, t, 2)
	n0, n1 := nets[0], nets[1]

	g0, err := n0.Gossip(testTopic)
	require.NoError(t, err)
	g1, err := n1.Gossip(testTopic)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, g0.Close())
		require.NoError(t, g1.Close())
	})

	nt0, nt1 := makeNotifiee(), makeNotifiee()
	g0.Notify(nt0)
	g1.Notify(nt1)

	msgIn0 := RandVoteCast(t)
	err = g0.BroadcastEvent(ctx, msgIn0)
	require.NoError(t, err)

	msgOut0, err := nt0.Rcv(ctx) // ensures we receive msg from ourselves
	require.NoError(t, err)
	assertSameEvent(t, msgIn0, msgOut0)
	msgOut0, err = nt1.Rcv(ctx)
	require.NoError(t, err)
	assertSameEvent(t, msgIn0, msgOut0)

	msgIn1 := RandPollCreated(t)
	err = g1.BroadcastEvent(ctx, msgIn1)
	require.NoError(t, err)

	msgOut1, err := nt1.Rcv(ctx) // ensures we receive msg from ourselves
	require.NoError(t, err)
	assertSameEvent(t, msgIn1, msgOut1)
	msgOut1, err = nt0.Rcv(ctx)
	require.NoError(t, err)
	assertSameEvent(t, msgIn1, msgOut1)

	// test invalid event
	invalid := RandVoteCast(t)
	nt0.validate = func(msg *network.Message) error { // faking validness
		evt, err := msg.Event()
		if err != nil {
			return err
		}
		if evt.Data.(poll.VoteCastEvent).PollID == mustPollID(t, invalid) {
			return fmt.Errorf("invalid poll")
		}
		return nil
	}
	err = g0.BroadcastEvent(ctx, invalid)
	assert.Error(t, err)

	// malformed messages never leave the node
	err = g0.BroadcastEvent(ctx, &network.Message{Type: "unknown"})
	assert.Error(t, err)
}

func assertSameEvent(t *testing.T, expected, actual *network.Message) {
	t.Helper()
	require.NotNil(t, actual)
	want, err := expected.Event()
	require.NoError(t, err)
	got, err := actual.Event()
	require.NoError(t, err)
	assert.Equal(t, want.Type, got.Type)
	assert.Equal(t, want.Data, got.Data)
	assert.True(t, want.Timestamp.Equal(got.Timestamp))
}

type notifiee struct {
	msgs chan *network.Message

	validate func(*network.Message) error
}

func makeNotifiee() *notifiee {
	return &notifiee{
		msgs: make(chan *network.Message, 1),
		validate: func(*network.Message) error {
			return nil
		},
	}
}

func (n *notifiee) Rcv(ctx context.Context) (*network.Message, error) {
	select {
	case msg := <-n.msgs:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *notifiee) OnEvent(ctx context.Context, msg *network.Message) error {
	if err := n.validate(msg); err != nil {
		return err
	}
	select {
	case n.msgs <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func RandVoteCast(t *testing.T) *network.Message {
	msg, err := network.NewMessage(poll.NewEvent(poll.EventVoteCast, poll.VoteCastEvent{
		PollID: rand.Uint64(),
		Voter:  poll.Identity(fmt.Sprintf("voter-%d", rand.Int())),
	}))
	require.NoError(t, err)
	return msg
}

func RandPollCreated(t *testing.T) *network.Message {
	start := rand.Uint64() >> 1
	msg, err := network.NewMessage(poll.NewEvent(poll.EventPollCreated, poll.PollCreatedEvent{
		PollID:    rand.Uint64(),
		Title:     fmt.Sprintf("poll-%d", rand.Int()),
		Creator:   "alice",
		StartTime: start,
		EndTime:   start + 3600,
	}))
	require.NoError(t, err)
	return msg
}

func mustPollID(t *testing.T, msg *network.Message) uint64 {
	evt, err := msg.Event()
	require.NoError(t, err)
	return evt.Data.(poll.VoteCastEvent).PollID
}

func setupP2PNetworks(ctx context.Context, t *testing.T, n int) []network.Network {
	mn, err := mocknet.FullMeshLinked(n)
	require.NoError(t, err)

	nets := make([]network.Network, n)
	for i := range nets {
		ps, err := pubsub.NewGossipSub(ctx, mn.Hosts()[i])
		require.NoError(t, err)
		nets[i] = NewNetwork(ps)
	}

	err = mn.ConnectAllButSelf()
	require.NoError(t, err)
	return nets
}
