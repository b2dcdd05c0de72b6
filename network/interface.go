package network

import (
	"context"
	"io"
)

type Network interface {
	// Gossip joins the topic. Nodes only exchange events on the same topic.
	Gossip(topic string) (Gossip, error)
}

// Gossip is an interface which allows a node to both broadcast and receive
// poll events to and from other nodes in the network. It must eventually
// propagate messages to all non-faulty nodes within the network. The algorithm
// for how this is done i.e. simply flooding the network or using some form of
// content addressing protocol is left to the implementer.
type Gossip interface {
	io.Closer
	Broadcaster
	Notifier
}

type Broadcaster interface {
	BroadcastEvent(context.Context, *Message) error
}

type Notifier interface {
	// Notify registers Notifiee wishing to receive notifications about new messages.
	// Any non-nil error returned from OnEvent rejects the message as invalid.
	Notify(Notifiee)
}

type Notifiee interface {
	OnEvent(context.Context, *Message) error
}

// NotifieeFunc adapts a function to a Notifiee
type NotifieeFunc func(context.Context, *Message) error

func (f NotifieeFunc) OnEvent(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
