package p2p

import (
	"context"
	"encoding/json"
	"errors"

	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/cmwaters/privpoll/network"
)

// topicPrefix keeps poll topics apart from unrelated topics on the same
// pubsub instance.
const topicPrefix = "/privpoll/events/"

var _ network.Network = (*Network)(nil)

type Network struct {
	ps *pubsub.PubSub
}

func NewNetwork(ps *pubsub.PubSub) network.Network {
	return &Network{
		ps: ps,
	}
}

func (pn *Network) Gossip(topic string) (network.Gossip, error) {
	tp, err := pn.ps.Join(topicPrefix + topic)
	if err != nil {
		return nil, err
	}

	pg := &Gossip{
		ps: pn.ps,
		tp: tp,
	}
	pg.ensureSubscribed()
	return pg, nil
}

type Gossip struct {
	ps  *pubsub.PubSub
	tp  *pubsub.Topic
	sub *pubsub.Subscription
}

func (p *Gossip) BroadcastEvent(ctx context.Context, msg *network.Message) error {
	if err := msg.ValidateForm(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// so that we publish when we have at least one peer
	opt := pubsub.WithReadiness(pubsub.MinTopicSize(1))
	return p.tp.Publish(ctx, data, opt)
}

func (p *Gossip) Notify(notifiee network.Notifiee) {
	// error can be safely ignored
	_ = p.ps.RegisterTopicValidator(p.tp.String(), func(ctx context.Context, _ peer.ID, pmsg *pubsub.Message) pubsub.ValidationResult {
		var msg network.Message
		if err := json.Unmarshal(pmsg.Data, &msg); err != nil {
			return pubsub.ValidationReject
		}
		if err := msg.ValidateForm(); err != nil {
			return pubsub.ValidationReject
		}
		if err := notifiee.OnEvent(ctx, &msg); err != nil {
			return pubsub.ValidationReject
		}
		return pubsub.ValidationAccept
	})
}

func (p *Gossip) Close() (err error) {
	if p.sub != nil {
		p.sub.Cancel()
	}
	err = errors.Join(err, p.ps.UnregisterTopicValidator(p.tp.String()))
	err = errors.Join(err, p.tp.Close())
	return err
}

// ensureSubscribed maintains one and only subscription for the topic
// PubSub requires at least one subscription in order to work correctly.
// The Network interface does not need the notion of subscribers and relies
// only on validators.
func (p *Gossip) ensureSubscribed() {
	sub, err := p.tp.Subscribe()
	if err != nil {
		return // safe to ignore
	}
	p.sub = sub

	go func() {
		for {
			_, err := sub.Next(context.Background())
			if err != nil {
				// happens when subscription is canceled
				return
			}
			// simply ignore messages
		}
	}()
}
