// Package tlsconfig loads the node's certificate and key and builds the
// server- and client-side TLS configurations the transport needs. QUIC
// requires TLS 1.3, and every peer presents a certificate on both sides of
// a connection. Only the dialing side checks the certificate it receives
// (unless that check is switched off); the accepting side requires a client
// certificate but does not validate it.
package tlsconfig

import (
	"crypto/tls"
)

// alpnProtocol is the ALPN identifier peers negotiate on every connection.
// It has no version semantics of its own; it simply keeps this protocol's
// connections from being confused with an unrelated QUIC-based service
// sharing the same port range.
const alpnProtocol = "p2p-gossip"

// Load reads the PEM certificate and key at certFile/keyFile and returns a
// server config (always requiring the peer to present a certificate, which
// it accepts without validating it) and a client config. When skipServerVerification is true, the client
// config accepts any server certificate without validation — useful for
// local development and the test suite, never for a real deployment.
func Load(certFile, keyFile string, skipServerVerification bool) (serverConf, clientConf *tls.Config, err error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, nil, err
	}

	serverConf = &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAnyClientCert,
		NextProtos:   []string{alpnProtocol},
		MinVersion:   tls.VersionTLS13,
	}

	clientConf = &tls.Config{
		Certificates:       []tls.Certificate{cert},
		NextProtos:         []string{alpnProtocol},
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: skipServerVerification,
	}

	return serverConf, clientConf, nil
}
