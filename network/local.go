package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var _ Network = (*LocalNetwork)(nil)

// LocalNetwork connects gossips within a single process. Broadcasts are
// delivered synchronously to every notifiee on the topic, including the
// sender's own.
type LocalNetwork struct {
	mtx    sync.RWMutex
	topics map[string]map[*LocalGossip]struct{}
}

func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		topics: make(map[string]map[*LocalGossip]struct{}),
	}
}

func (n *LocalNetwork) Gossip(topic string) (Gossip, error) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	g := &LocalGossip{network: n, topic: topic}
	if _, ok := n.topics[topic]; !ok {
		n.topics[topic] = make(map[*LocalGossip]struct{})
	}
	n.topics[topic][g] = struct{}{}
	return g, nil
}

func (n *LocalNetwork) members(topic string) []*LocalGossip {
	n.mtx.RLock()
	defer n.mtx.RUnlock()
	members := make([]*LocalGossip, 0, len(n.topics[topic]))
	for g := range n.topics[topic] {
		members = append(members, g)
	}
	return members
}

func (n *LocalNetwork) leave(g *LocalGossip) {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	delete(n.topics[g.topic], g)
	if len(n.topics[g.topic]) == 0 {
		delete(n.topics, g.topic)
	}
}

var _ Gossip = (*LocalGossip)(nil)

type LocalGossip struct {
	network *LocalNetwork
	topic   string

	mtx       sync.RWMutex
	notifiees []Notifiee
	closed    bool
}

var ErrClosed = errors.New("gossip closed")

func (l *LocalGossip) Close() error {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return nil
	}
	l.closed = true
	l.mtx.Unlock()
	l.network.leave(l)
	return nil
}

// BroadcastEvent fails if the message is malformed or if a notifiee of the
// sender rejects it. Rejections by other members only stop delivery to them.
func (l *LocalGossip) BroadcastEvent(ctx context.Context, msg *Message) error {
	l.mtx.RLock()
	closed := l.closed
	l.mtx.RUnlock()
	if closed {
		return ErrClosed
	}
	if err := msg.ValidateForm(); err != nil {
		return err
	}
	if err := l.deliver(ctx, msg); err != nil {
		return fmt.Errorf("rejected locally: %w", err)
	}
	for _, member := range l.network.members(l.topic) {
		if member == l {
			continue
		}
		_ = member.deliver(ctx, msg)
	}
	return nil
}

func (l *LocalGossip) Notify(notifiee Notifiee) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.notifiees = append(l.notifiees, notifiee)
}

func (l *LocalGossip) deliver(ctx context.Context, msg *Message) error {
	l.mtx.RLock()
	notifiees := append([]Notifiee(nil), l.notifiees...)
	l.mtx.RUnlock()
	for _, notifiee := range notifiees {
		if err := notifiee.OnEvent(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
