package privpoll

import (
	"context"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/rs/zerolog"

	"github.com/cmwaters/privpoll/network"
	"github.com/cmwaters/privpoll/p2p"
	"github.com/cmwaters/privpoll/poll"
)

// Gossip shares the events of a local bus with every node on the topic.
type Gossip struct {
	network.Gossip
	bridge *network.Bridge
}

// NewGossip joins topic over gossipsub on the host and forwards every event
// published on bus to it. Events from peers are passed to notifiee, which may
// be nil.
func NewGossip(ctx context.Context, h host.Host, topic string, bus *poll.EventBus, notifiee network.Notifiee, logger zerolog.Logger) (*Gossip, error) {
	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return nil, err
	}
	gossip, err := p2p.NewNetwork(ps).Gossip(topic)
	if err != nil {
		return nil, err
	}
	if notifiee != nil {
		gossip.Notify(notifiee)
	}
	bridge := network.NewBridge(bus, gossip, logger)
	bridge.Start()
	return &Gossip{Gossip: gossip, bridge: bridge}, nil
}

func (g *Gossip) Close() error {
	g.bridge.Stop()
	return g.Gossip.Close()
}
