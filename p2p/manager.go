// Package p2p is the membership and connection manager: the state machine
// that builds the initial membership set by recursive bootstrap discovery,
// maintains exactly one live connection per ordered peer pair despite
// simultaneous cross-dials, survives transient disconnects with bounded
// exponential-backoff reconnection, and broadcasts gossip messages to
// every currently-live peer. It is adapted from the teacher's own `p2p`
// package (github.com/ethereum/go-ethereum/p2p, an early snapshot): that
// package's Server ran an accept loop, a dial loop and a central run loop
// mutating one peer map under message-passing; this one keeps that shape
// but swaps devp2p/RLPx framing and UDP discovery for QUIC streams and a
// single-bootstrap flood-fill join, per this project's spec.
package p2p

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/quic-go/quic-go"

	"github.com/lincot/p2p-gossip/addrcodec"
	"github.com/lincot/p2p-gossip/dropnotify"
	"github.com/lincot/p2p-gossip/logger"
	"github.com/lincot/p2p-gossip/peertable"
)

const (
	closeCodeAlreadyConnected quic.ApplicationErrorCode = 1
	closeCodeShutdown         quic.ApplicationErrorCode = 2

	dialTimeout            = 15 * time.Second
	maxPeerListBytes int64 = 10_000
	maxMessageBytes  int64 = 1024
)

// Manager owns the transport endpoint, the peer table and the broadcast
// bus, and runs the accept loop, dial loop, bootstrap, reconnect and
// shutdown logic described by spec.md §4.5.
type Manager struct {
	localAddr *net.UDPAddr

	transport *quic.Transport
	listener  *quic.Listener
	serverTLS *tls.Config
	clientTLS *tls.Config
	quicConf  *quic.Config

	table *peertable.Table
	bus   *bus

	connsMu sync.Mutex
	conns   map[string]quic.Connection

	wg sync.WaitGroup
}

// NewManager binds a UDP socket at addr and starts a QUIC listener on it.
// The same socket is later used to dial peers, so the node always appears
// to the rest of the mesh under the one address it listens on.
func NewManager(addr *net.UDPAddr, serverTLS, clientTLS *tls.Config, quicConf *quic.Config) (*Manager, error) {
	udpConn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	tr := &quic.Transport{Conn: udpConn}
	listener, err := tr.Listen(serverTLS, quicConf)
	if err != nil {
		udpConn.Close()
		return nil, err
	}

	local, ok := udpConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		local = addr
	}

	return &Manager{
		localAddr: local,
		transport: tr,
		listener:  listener,
		serverTLS: serverTLS,
		clientTLS: clientTLS,
		quicConf:  quicConf,
		table:     peertable.New(),
		bus:       newBus(),
		conns:     make(map[string]quic.Connection),
	}, nil
}

// LocalAddr returns the address the node listens and dials on.
func (m *Manager) LocalAddr() *net.UDPAddr { return m.localAddr }

// Run starts the accept loop and blocks until the listener is closed by
// Shutdown (or by a fatal Accept error).
func (m *Manager) Run(ctx context.Context) {
	for {
		conn, err := m.listener.Accept(ctx)
		if err != nil {
			return
		}
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handleIncoming(ctx, conn)
		}()
	}
}

// Shutdown closes every live connection with the graceful shutdown code so
// each remote peer observes ApplicationClosed(2) (spec.md §4.8), then
// closes the endpoint and waits for the accept-path handlers, dial goroutines
// and their connection handlers to finish. The gossip loop and reconnect
// loops are not waited for; they stop once their context is canceled.
// quic-go's Transport/Listener Close tears down the local socket
// and stops new accepts but, unlike quinn's Endpoint::close, does not by
// itself notify already-established peers — so the live connections have
// to be closed explicitly first.
func (m *Manager) Shutdown() {
	m.connsMu.Lock()
	conns := make([]quic.Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.connsMu.Unlock()

	for _, conn := range conns {
		conn.CloseWithError(closeCodeShutdown, "shutdown")
	}

	m.transport.Close()
	_ = m.listener.Close()
	m.wg.Wait()
}

// trackConn registers conn as the live connection for remote, so Shutdown
// can find and close it.
func (m *Manager) trackConn(remote string, conn quic.Connection) {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	m.conns[remote] = conn
}

// untrackConn removes conn from the live set, but only if it is still the
// connection registered for remote — a stale call from a connection that
// lost the duplicate-suppression tie-break must not evict the survivor.
func (m *Manager) untrackConn(remote string, conn quic.Connection) {
	m.connsMu.Lock()
	defer m.connsMu.Unlock()
	if m.conns[remote] == conn {
		delete(m.conns, remote)
	}
}

// handleIncoming runs the handshake, accept-path bookkeeping and
// membership exchange for one inbound connection (spec.md §4.5.1).
func (m *Manager) handleIncoming(ctx context.Context, conn quic.Connection) {
	remote := conn.RemoteAddr().String()

	accepted, err := m.acceptConnection(ctx, conn)
	if err != nil {
		info := classifyCloseErr(err)
		if !info.benign() {
			logger.Logf("Failed to accept a connection from %s, error: %s", remote, err)
		}
		return
	}
	if !accepted {
		return
	}

	logger.Logf("Accepted a connection from %s", remote)
	m.handleConnection(ctx, conn)
}

// acceptConnection implements spec.md §4.5.1 steps 2-5: duplicate check,
// membership advertisement (written while holding the table lock, so the
// bytes sent always match the set that becomes finalized) and promotion.
func (m *Manager) acceptConnection(ctx context.Context, conn quic.Connection) (accepted bool, err error) {
	remote, rerr := net.ResolveUDPAddr("udp", conn.RemoteAddr().String())
	if rerr != nil {
		return false, rerr
	}

	var sendErr error
	result := m.table.PromoteAndSnapshot(remote, func(all []*net.UDPAddr) {
		stream, oerr := conn.OpenUniStreamSync(ctx)
		if oerr != nil {
			sendErr = oerr
			return
		}
		if _, werr := stream.Write(addrcodec.EncodeAll(all)); werr != nil {
			sendErr = werr
			return
		}
		sendErr = stream.Close()
	})

	if result == peertable.WasFinalized {
		conn.CloseWithError(closeCodeAlreadyConnected, "already connected")
		return false, nil
	}
	if sendErr != nil {
		return false, sendErr
	}
	return true, nil
}

// Bootstrap runs the initial-connect procedure (spec.md §4.5.4): it seeds
// the table with the bootstrap address, dials it, and blocks until the
// entire tree of recursively discovered dials has finished.
func (m *Manager) Bootstrap(ctx context.Context, bootstrapAddr *net.UDPAddr) {
	m.table.InsertIfAbsent(bootstrapAddr)

	holder, done := dropnotify.New()
	failed := peertable.NewFailedSet()

	m.outgoingConnect(ctx, bootstrapAddr, holder, failed)
	<-done

	finalized := m.table.SnapshotFinalized()
	logger.Logf("Connected to the peers at [%s]", peertable.FormatFinalized(finalized))
	m.table.CompactNonFinalized()
}

// outgoingConnect dials remoteAddr, logs on failure (suppressing benign
// reasons), and applies the cross-dial tie-break (spec.md §4.5.2,
// §4.5.3). It takes ownership of holder and releases it before returning.
func (m *Manager) outgoingConnect(ctx context.Context, remoteAddr *net.UDPAddr, holder *dropnotify.Holder, failed *peertable.FailedSet) (quic.Connection, error) {
	defer holder.Release()

	conn, err := m.outgoingConnectInner(ctx, remoteAddr, holder, failed)
	if err != nil {
		info := classifyCloseErr(err)
		if !info.benign() {
			logger.Logf("Failed to connect to %s, error: %s", remoteAddr, err)
		}
		failed.Add(remoteAddr)
		return nil, err
	}

	if m.table.Promote(remoteAddr) == peertable.WasFinalized && compareAddr(m.localAddr, remoteAddr) < 0 {
		// Both sides dialed each other. The numerically lower local
		// address yields: it tears down its own outbound connection.
		conn.CloseWithError(closeCodeAlreadyConnected, "already connected")
	}
	return conn, nil
}

// outgoingConnectInner implements spec.md §4.5.2 steps 1-5: SNI lookup,
// handshake, membership exchange, recursive discovery and connection
// handoff.
func (m *Manager) outgoingConnectInner(ctx context.Context, remoteAddr *net.UDPAddr, holder *dropnotify.Holder, failed *peertable.FailedSet) (quic.Connection, error) {
	name := sniNameFor(remoteAddr)

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	clientTLS := m.clientTLS.Clone()
	clientTLS.ServerName = name

	conn, err := m.transport.Dial(dialCtx, remoteAddr, clientTLS, m.quicConf)
	if err != nil {
		return nil, err
	}

	recv, err := conn.AcceptUniStream(ctx)
	if err != nil {
		return nil, err
	}
	data, err := readAll(recv, maxPeerListBytes)
	if err != nil {
		return nil, err
	}

	addrs, err := addrcodec.Decode(data)
	if err != nil {
		return nil, err
	}

	for _, peerAddr := range addrs {
		if peerAddr.String() == m.localAddr.String() {
			continue
		}
		if m.table.InsertIfAbsent(peerAddr) != peertable.Inserted {
			continue
		}
		m.wg.Add(1)
		go func(peerAddr *net.UDPAddr, child *dropnotify.Holder) {
			defer m.wg.Done()
			m.outgoingConnect(ctx, peerAddr, child, failed)
		}(peerAddr, holder.Clone())
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.handleConnection(ctx, conn)
	}()

	return conn, nil
}

// reconnect runs bounded exponential backoff against remoteAddr
// (spec.md §4.5.6). It reports whether a new connection was established;
// it returns false without retrying if the remote has already reconnected
// to us inbound.
func (m *Manager) reconnect(ctx context.Context, remoteAddr *net.UDPAddr) bool {
	reconnected := false

	attempt := func() error {
		if m.table.IsFinalized(remoteAddr) {
			return nil
		}
		holder, done := dropnotify.New()
		failed := peertable.NewFailedSet()
		_, err := m.outgoingConnect(ctx, remoteAddr, holder, failed)
		<-done
		if err != nil {
			return err
		}
		reconnected = true
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 1.5
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0 // retry forever; no absolute deadline

	_ = backoff.Retry(func() error {
		if m.table.IsFinalized(remoteAddr) {
			return nil
		}
		err := attempt()
		if err != nil {
			return err // retryable
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	return reconnected
}

// sniNameFor resolves remoteAddr's IP to a name via reverse DNS, for use
// as the TLS SNI on outgoing dials. On lookup failure it falls back to
// the IP literal (spec.md §4.5.2 step 1 permits this).
func sniNameFor(remoteAddr *net.UDPAddr) string {
	names, err := net.LookupAddr(remoteAddr.IP.String())
	if err != nil || len(names) == 0 {
		return remoteAddr.IP.String()
	}
	return strings.TrimSuffix(names[0], ".")
}

// compareAddr orders socket addresses by IP bytes, then by port, giving
// the total order the duplicate-suppression tie-break needs.
func compareAddr(a, b *net.UDPAddr) int {
	ac, bc := a.IP.To16(), b.IP.To16()
	if c := compareBytes(ac, bc); c != 0 {
		return c
	}
	switch {
	case a.Port < b.Port:
		return -1
	case a.Port > b.Port:
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// readAll reads at most maxLen bytes from r. A peer that still has data
// queued past maxLen is simply truncated rather than treated as an error.
// For a peer list, Decode reports the truncation only when it cuts an IPv6
// record with at least 10 bytes of it left; a cut on a record boundary, or
// one leaving fewer than 10 bytes, goes unnoticed.
func readAll(r io.Reader, maxLen int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, maxLen))
}
