package privpoll_test

import (
	"context"
	"testing"
	"time"

	mocknet "github.com/libp2p/go-libp2p/p2p/net/mock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/cmwaters/privpoll"
	"github.com/cmwaters/privpoll/network"
	"github.com/cmwaters/privpoll/pkg/homomorphic"
	"github.com/cmwaters/privpoll/poll"
)

func TestEventsReachPeers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)

	mn, err := mocknet.FullMeshLinked(2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mn.Close() })

	bus := poll.NewEventBus(nil, zerolog.Nop())
	t.Cleanup(bus.Stop)
	local, err := privpoll.NewGossip(ctx, mn.Hosts()[0], "polls", bus, nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, local.Close()) })

	received := make(chan poll.Event, 10)
	remoteBus := poll.NewEventBus(nil, zerolog.Nop())
	t.Cleanup(remoteBus.Stop)
	remote, err := privpoll.NewGossip(ctx, mn.Hosts()[1], "polls", remoteBus, network.NotifieeFunc(
		func(_ context.Context, msg *network.Message) error {
			evt, err := msg.Event()
			if err != nil {
				return err
			}
			select {
			case received <- evt:
			default:
			}
			return nil
		}), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, remote.Close()) })

	require.NoError(t, mn.ConnectAllButSelf())

	scheme, _ := homomorphic.NewTestScheme()
	engine, err := poll.New(scheme, "owner", poll.WithPublisher(bus), poll.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	// gossipsub needs a moment to build its mesh, retry until a poll arrives
	deadline := time.After(8 * time.Second)
	for {
		id, err := engine.CreatePoll("T", "D", []string{"A", "B"}, 3600, "alice")
		require.NoError(t, err)
		select {
		case evt := <-received:
			created, ok := evt.Data.(poll.PollCreatedEvent)
			require.True(t, ok)
			require.LessOrEqual(t, created.PollID, id)
			require.Equal(t, poll.Identity("alice"), created.Creator)
			return
		case <-time.After(250 * time.Millisecond):
		case <-deadline:
			t.Fatal("no event reached the remote peer")
		}
	}
}
