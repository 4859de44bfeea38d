package engine

import "context"

// LocalBus wires a fixed number of in-process ranks together over
// buffered channels, giving Distributed something to run against without
// a real network — the same Peer contract a TCP-backed implementation
// satisfies, so swapping one for the other never touches engine code.
type LocalBus struct {
	inboxes []chan Message
}

// NewLocalBus returns nbProcess connected ranks. Call Peer(rank) to get
// each rank's Peer handle before starting its Distributed engine goroutine.
func NewLocalBus(nbProcess int) *LocalBus {
	b := &LocalBus{inboxes: make([]chan Message, nbProcess)}
	for i := range b.inboxes {
		b.inboxes[i] = make(chan Message, nbProcess*4)
	}
	return b
}

// Peer returns the Peer handle for the given rank.
func (b *LocalBus) Peer(rank int) Peer {
	return &localPeer{bus: b, rank: rank}
}

type localPeer struct {
	bus  *LocalBus
	rank int
}

func (p *localPeer) Rank() int     { return p.rank }
func (p *localPeer) NumPeers() int { return len(p.bus.inboxes) }

func (p *localPeer) Send(ctx context.Context, msg Message) error {
	select {
	case p.bus.inboxes[msg.To] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *localPeer) Recv(ctx context.Context) (Message, error) {
	select {
	case msg := <-p.bus.inboxes[p.rank]:
		return msg, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	}
}

var _ Peer = (*localPeer)(nil)
