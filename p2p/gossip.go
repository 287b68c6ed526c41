package p2p

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/mr-tron/base58"

	"github.com/lincot/p2p-gossip/logger"
	"github.com/lincot/p2p-gossip/peertable"
)

// gossipPayloadBytes is the size of the random payload each gossip
// message carries before base58 encoding (spec.md §4.6 step 3).
const gossipPayloadBytes = 32

// RunGossip broadcasts one message to every finalized peer every period,
// until ctx is canceled (spec.md §4.6). Ticks are scheduled against a
// fixed deadline, advanced by exactly one period each time, rather than
// reset after the work for a tick completes — so a slow tick shortens the
// gap to the next one instead of pushing every later tick back by the
// same amount.
func (m *Manager) RunGossip(ctx context.Context, period time.Duration) {
	deadline := time.Now().Add(period)
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.gossipTick()
			deadline = deadline.Add(period)
			timer.Reset(time.Until(deadline))
		}
	}
}

// gossipTick runs one round: it skips silently if no peer is currently
// finalized (spec.md §4.6 step 1), otherwise it mints a random message and
// publishes it to the bus for every connection's sender loop to pick up.
func (m *Manager) gossipTick() {
	peers := m.table.SnapshotFinalized()
	if len(peers) == 0 {
		return
	}

	payload := make([]byte, gossipPayloadBytes)
	if _, err := rand.Read(payload); err != nil {
		return
	}
	msg := base58.Encode(payload)

	logger.Logf("Sending message [%s] to [%s]", msg, peertable.FormatFinalized(peers))
	m.bus.publish(msg)
}
