package p2p

import (
	"net"
	"testing"
)

func mustAddr(t *testing.T, s string) *net.UDPAddr {
	t.Helper()
	a, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestCompareAddrOrdersByIPThenPort(t *testing.T) {
	low := mustAddr(t, "127.0.0.1:9000")
	high := mustAddr(t, "127.0.0.2:1000")
	if compareAddr(low, high) >= 0 {
		t.Fatal("127.0.0.1 must sort before 127.0.0.2 regardless of port")
	}
	if compareAddr(high, low) <= 0 {
		t.Fatal("comparison must be antisymmetric")
	}

	samePort := mustAddr(t, "127.0.0.1:1")
	higherPort := mustAddr(t, "127.0.0.1:2")
	if compareAddr(samePort, higherPort) >= 0 {
		t.Fatal("with equal IPs, the lower port must sort first")
	}
}

func TestCompareAddrEqual(t *testing.T) {
	a := mustAddr(t, "10.0.0.1:5000")
	b := mustAddr(t, "10.0.0.1:5000")
	if compareAddr(a, b) != 0 {
		t.Fatal("identical addresses must compare equal")
	}
}

func TestSniNameForFallsBackToIPLiteral(t *testing.T) {
	// 192.0.2.0/24 is the TEST-NET-1 documentation range (RFC 5737):
	// it is never routable, so reverse lookup is guaranteed to fail and
	// the fallback path is exercised deterministically.
	addr := mustAddr(t, "192.0.2.1:12345")
	if got := sniNameFor(addr); got != "192.0.2.1" {
		t.Fatalf("sniNameFor = %q, want the IP literal fallback", got)
	}
}
