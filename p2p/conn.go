package p2p

import (
	"context"
	"errors"
	"net"

	"github.com/quic-go/quic-go"

	"github.com/lincot/p2p-gossip/logger"
)

// closeKind classifies why a connection ended, mirroring the handful of
// ConnectionError variants the original implementation switches on
// (spec.md §4.5.5): a locally initiated close, a remote application
// close, an idle timeout, or anything else.
type closeKind int

const (
	closeOther closeKind = iota
	closeTimedOut
	closeApplicationClosed
	closeLocallyClosed
)

type closeInfo struct {
	kind   closeKind
	code   uint64
	reason string
}

// benign reports whether the close is a harmless side effect of
// duplicate-suppression (either side closing with code 1) or of this
// node having initiated the close itself, rather than a real failure.
func (c closeInfo) benign() bool {
	if c.kind == closeLocallyClosed {
		return true
	}
	return c.kind == closeApplicationClosed && c.code == uint64(closeCodeAlreadyConnected)
}

// classifyCloseErr inspects the error quic-go returns once a connection
// has ended and maps it onto closeKind. A connection we closed ourselves
// surfaces as an *quic.ApplicationError with Remote == false; one the
// peer closed surfaces with Remote == true.
func classifyCloseErr(err error) closeInfo {
	var appErr *quic.ApplicationError
	if errors.As(err, &appErr) {
		if !appErr.Remote {
			return closeInfo{kind: closeLocallyClosed, code: uint64(appErr.ErrorCode), reason: appErr.ErrorMessage}
		}
		return closeInfo{kind: closeApplicationClosed, code: uint64(appErr.ErrorCode), reason: appErr.ErrorMessage}
	}

	var idleErr *quic.IdleTimeoutError
	if errors.As(err, &idleErr) {
		return closeInfo{kind: closeTimedOut, reason: err.Error()}
	}
	var hsErr *quic.HandshakeTimeoutError
	if errors.As(err, &hsErr) {
		return closeInfo{kind: closeTimedOut, reason: err.Error()}
	}

	return closeInfo{kind: closeOther, reason: err.Error()}
}

// handleConnection owns a connection from the moment it is finalized
// until it closes: it runs the sender and receiver loops, and on exit
// applies spec.md §4.5.5's disposition rules — demote always, then
// re-promote on a benign close, or start reconnection with backoff on a
// timeout.
func (m *Manager) handleConnection(ctx context.Context, conn quic.Connection) {
	remoteAddr, err := net.ResolveUDPAddr("udp", conn.RemoteAddr().String())
	if err != nil {
		return
	}

	connCtx, cancel := context.WithCancel(ctx)

	m.trackConn(remoteAddr.String(), conn)
	defer m.untrackConn(remoteAddr.String(), conn)

	id, msgs := m.bus.subscribe()
	defer m.bus.unsubscribe(id)

	senderDone := make(chan struct{})
	go func() {
		defer close(senderDone)
		m.senderLoop(connCtx, conn, msgs)
	}()

	closeErr := m.receiverLoop(connCtx, conn, remoteAddr)

	cancel()
	<-senderDone

	m.table.Demote(remoteAddr)

	info := classifyCloseErr(closeErr)
	if info.benign() {
		m.table.Promote(remoteAddr)
		return
	}

	logger.Logf("Closed connection to %s, reason: %s", remoteAddr, closeErr)

	if info.kind == closeTimedOut {
		go func() {
			if m.reconnect(ctx, remoteAddr) {
				logger.Logf("Reconnected to %s", remoteAddr)
			}
		}()
	}
}

// senderLoop opens one fresh unidirectional stream per outgoing message,
// per spec.md §4.7 (no stream is reused across messages).
func (m *Manager) senderLoop(ctx context.Context, conn quic.Connection, msgs <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			stream, err := conn.OpenUniStreamSync(ctx)
			if err != nil {
				return
			}
			if _, err := stream.Write([]byte(msg)); err != nil {
				return
			}
			_ = stream.Close()
		}
	}
}

// receiverLoop accepts one unidirectional stream at a time and reads it to
// completion before accepting the next, logging each message's payload
// (spec.md §4.7.2). This is fully sequential, matching the original's
// receiver_loop: spawning a goroutine per stream would let two messages
// from the same peer race each other and log out of arrival order, which
// would violate spec.md §5's FIFO-per-direction guarantee. A failure
// reading one individual stream is logged and otherwise ignored, unless
// classifyCloseErr sees it as a benign close, a timeout or an application
// close (the next AcceptUniStream call then reports that closure itself).
// A connection ending for any other reason is logged here as well as by
// handleConnection. It returns the
// terminal error reported by AcceptUniStream, which handleConnection uses
// to classify why the connection closed.
func (m *Manager) receiverLoop(ctx context.Context, conn quic.Connection, remoteAddr *net.UDPAddr) error {
	for {
		stream, err := conn.AcceptUniStream(ctx)
		if err != nil {
			return err
		}
		data, err := readAll(stream, maxMessageBytes)
		if err != nil {
			if !classifyCloseErr(err).benign() && classifyCloseErr(err).kind == closeOther {
				logger.Logf("Failed to receive from %s, error: %s", remoteAddr, err)
			}
			continue
		}
		logger.Logf("Received message [%s] from %s", string(data), remoteAddr)
	}
}
