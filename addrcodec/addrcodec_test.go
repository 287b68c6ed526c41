package addrcodec

import (
	"math/rand"
	"net"
	"reflect"
	"testing"
)

func TestRecordLengths(t *testing.T) {
	v4 := Encode(&net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 8080})
	if len(v4) != ipv4RecordLen {
		t.Fatalf("IPv4 record length = %d, want %d", len(v4), ipv4RecordLen)
	}
	v6 := Encode(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 8080})
	if len(v6) != ipv6RecordLen {
		t.Fatalf("IPv6 record length = %d, want %d", len(v6), ipv6RecordLen)
	}
}

func TestRoundTrip(t *testing.T) {
	addrs := []*net.UDPAddr{
		{IP: net.ParseIP("127.0.0.1"), Port: 8080},
		{IP: net.ParseIP("10.0.0.1"), Port: 1},
		{IP: net.ParseIP("::1"), Port: 65535},
		{IP: net.ParseIP("fe80::1"), Port: 443},
	}
	data := EncodeAll(addrs)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != len(addrs) {
		t.Fatalf("decoded %d addresses, want %d", len(got), len(addrs))
	}
	for i, want := range addrs {
		if !got[i].IP.Equal(want.IP) || got[i].Port != want.Port {
			t.Errorf("addr %d = %v, want %v", i, got[i], want)
		}
	}
}

func TestRoundTripRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		n := rng.Intn(50)
		addrs := make([]*net.UDPAddr, n)
		for j := range addrs {
			var ip net.IP
			if rng.Intn(2) == 0 {
				ip = net.IPv4(byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)))
			} else {
				b := make([]byte, 16)
				rng.Read(b)
				ip = net.IP(b)
			}
			addrs[j] = &net.UDPAddr{IP: ip, Port: rng.Intn(65536)}
		}
		data := EncodeAll(addrs)
		got, err := Decode(data)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if len(got) != len(addrs) {
			t.Fatalf("round %d: decoded %d addresses, want %d", i, len(got), len(addrs))
		}
		for j := range addrs {
			if !got[j].IP.Equal(addrs[j].IP) || got[j].Port != addrs[j].Port {
				t.Errorf("round %d addr %d = %v, want %v", i, j, got[j], addrs[j])
			}
		}
	}
}

func TestDecodeStopsOnShortRemainder(t *testing.T) {
	data := append(Encode(&net.UDPAddr{IP: net.ParseIP("1.2.3.4"), Port: 9}), 1, 2, 3)
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("decoded %d addresses, want 1", len(got))
	}
}

func TestDecodeMalformed(t *testing.T) {
	// A record claiming to be IPv6 (family 1) but with too few trailing bytes.
	data := Encode(&net.UDPAddr{IP: net.ParseIP("::1"), Port: 1})
	data = data[:len(data)-5]
	if _, err := Decode(data); err != ErrMalformedAddressRecord {
		t.Fatalf("Decode error = %v, want ErrMalformedAddressRecord", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	a := Encode(&net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 4242})
	b := Encode(&net.UDPAddr{IP: net.ParseIP("192.168.1.1"), Port: 4242})
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Encode is not deterministic: %v != %v", a, b)
	}
}
