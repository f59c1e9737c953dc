// Package mapdata converts between IPv4 addresses and the fixed-width
// key/value layout of the filter maps, and decodes map dumps back into
// records.
//
// Every map shares one layout:
//
//	key   [4]byte   address in dotted-quad order
//	value [24]byte  struct Data
//	        0..4    ip             dotted-quad order
//	        4..8    fast_packets   u32, little endian
//	        8..16   rx_packets     u64, little endian
//	        16..24  last_access_ns u64, little endian
package mapdata

import (
	"encoding/binary"
	"fmt"
	"net"
	"strings"
)

const (
	KeySize   = 4
	ValueSize = 24
)

// Record is the decoded form of one map entry.
type Record struct {
	IP           string `json:"ip"`
	FastPackets  uint32 `json:"fastPackets"`
	RxPackets    uint64 `json:"rxPackets"`
	LastAccessNs uint64 `json:"lastAccessNs"`
}

// Key is the map key for an address.
type Key [KeySize]byte

// String returns the dotted-quad form of k.
func (k Key) String() string {
	return net.IP(k[:]).String()
}

// ParseKey parses a dotted-quad IPv4 address.
func ParseKey(ip string) (Key, error) {
	var k Key
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return k, fmt.Errorf("invalid IP address %q", ip)
	}
	v4 := parsed.To4()
	if v4 == nil {
		return k, fmt.Errorf("%q is not an IPv4 address", ip)
	}
	copy(k[:], v4)
	return k, nil
}

// EncodeKey returns the 4-byte map key for ip.
func EncodeKey(ip string) ([KeySize]byte, error) {
	k, err := ParseKey(ip)
	return [KeySize]byte(k), err
}

// EncodeValue returns the 24-byte value seeded for ip: zero everywhere except
// the echoed address.
func EncodeValue(ip string) ([ValueSize]byte, error) {
	return EncodeRecord(Record{IP: ip})
}

// EncodeRecord returns the binary value layout of r.
func EncodeRecord(r Record) ([ValueSize]byte, error) {
	var v [ValueSize]byte
	k, err := ParseKey(r.IP)
	if err != nil {
		return v, err
	}
	copy(v[0:4], k[:])
	binary.LittleEndian.PutUint32(v[4:8], r.FastPackets)
	binary.LittleEndian.PutUint64(v[8:16], r.RxPackets)
	binary.LittleEndian.PutUint64(v[16:24], r.LastAccessNs)
	return v, nil
}

// DecodeRecord reverses EncodeKey and EncodeRecord. The address is taken from
// the key; the value's ip field is zero for entries the filter created before
// it learned the address and is not trusted.
func DecodeRecord(key, value []byte) (Record, error) {
	if len(key) != KeySize {
		return Record{}, fmt.Errorf("key is %d bytes, want %d", len(key), KeySize)
	}
	if len(value) != ValueSize {
		return Record{}, fmt.Errorf("value is %d bytes, want %d", len(value), ValueSize)
	}
	return Record{
		IP:           net.IP(key).String(),
		FastPackets:  binary.LittleEndian.Uint32(value[4:8]),
		RxPackets:    binary.LittleEndian.Uint64(value[8:16]),
		LastAccessNs: binary.LittleEndian.Uint64(value[16:24]),
	}, nil
}

// HexArgs formats b the way bpftool expects byte arguments:
// "hex 0a 00 00 05".
func HexArgs(b []byte) []string {
	args := make([]string, 0, len(b)+1)
	args = append(args, "hex")
	for _, c := range b {
		args = append(args, fmt.Sprintf("%02x", c))
	}
	return args
}
