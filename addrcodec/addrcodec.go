// Package addrcodec serializes and deserializes membership lists as a
// concatenation of fixed-width socket-address records, with no length
// prefix and no separator between records.
//
// Record layout (little-endian throughout):
//
//	offset 0   uint32   family discriminant: 0 = IPv4, 1 = IPv6
//	offset 4   [4]byte  IPv4 address octets           (IPv4 record only)
//	offset 4   [16]byte IPv6 address octets           (IPv6 record only)
//	last 2     uint16   port
//
// An IPv4 record is 10 bytes; an IPv6 record is 22 bytes. This layout must
// never change without a corresponding version bump: every peer in a mesh
// must agree on it byte-for-byte.
package addrcodec

import (
	"encoding/binary"
	"errors"
	"net"
)

const (
	familyIPv4 = uint32(0)
	familyIPv6 = uint32(1)

	ipv4RecordLen = 10
	ipv6RecordLen = 22
)

// ErrMalformedAddressRecord is returned when a record's family-implied size
// exceeds the bytes remaining in the buffer.
var ErrMalformedAddressRecord = errors.New("addrcodec: malformed address record")

// Encode returns the fixed-width record for addr.
func Encode(addr *net.UDPAddr) []byte {
	if ip4 := addr.IP.To4(); ip4 != nil {
		buf := make([]byte, ipv4RecordLen)
		binary.LittleEndian.PutUint32(buf[0:4], familyIPv4)
		copy(buf[4:8], ip4)
		binary.LittleEndian.PutUint16(buf[8:10], uint16(addr.Port))
		return buf
	}
	buf := make([]byte, ipv6RecordLen)
	binary.LittleEndian.PutUint32(buf[0:4], familyIPv6)
	copy(buf[4:20], addr.IP.To16())
	binary.LittleEndian.PutUint16(buf[20:22], uint16(addr.Port))
	return buf
}

// EncodeAll concatenates the records for every address in addrs, in order.
func EncodeAll(addrs []*net.UDPAddr) []byte {
	buf := make([]byte, 0, len(addrs)*ipv4RecordLen)
	for _, addr := range addrs {
		buf = append(buf, Encode(addr)...)
	}
	return buf
}

// Decode parses a concatenation of address records. It stops as soon as
// fewer than the minimum record size (10 bytes) remain, treating a short
// trailing remainder as padding rather than an error. It returns
// ErrMalformedAddressRecord if a record's declared family implies a size
// that the remaining buffer cannot hold.
func Decode(data []byte) ([]*net.UDPAddr, error) {
	var addrs []*net.UDPAddr
	for len(data) >= ipv4RecordLen {
		family := binary.LittleEndian.Uint32(data[0:4])

		var recLen int
		switch family {
		case familyIPv4:
			recLen = ipv4RecordLen
		case familyIPv6:
			recLen = ipv6RecordLen
		default:
			return nil, ErrMalformedAddressRecord
		}
		if len(data) < recLen {
			return nil, ErrMalformedAddressRecord
		}

		rec := data[:recLen]
		var ip net.IP
		if family == familyIPv4 {
			ip = net.IPv4(rec[4], rec[5], rec[6], rec[7])
		} else {
			ip = make(net.IP, 16)
			copy(ip, rec[4:20])
		}
		port := binary.LittleEndian.Uint16(rec[recLen-2 : recLen])

		addrs = append(addrs, &net.UDPAddr{IP: ip, Port: int(port)})
		data = data[recLen:]
	}
	return addrs, nil
}
