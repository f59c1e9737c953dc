package mapdata

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

type dumpEntry struct {
	Key       json.RawMessage `json:"key"`
	Value     json.RawMessage `json:"value"`
	Formatted *struct {
		Key   json.RawMessage `json:"key"`
		Value json.RawMessage `json:"value"`
	} `json:"formatted"`
}

type formattedValue struct {
	IP           uint32 `json:"ip"`
	FastPackets  uint32 `json:"fast_packets"`
	RxPackets    uint64 `json:"rx_packets"`
	LastAccessNs uint64 `json:"last_access_ns"`
}

// ParseDump decodes the output of `bpftool map dump id N -j`. Entries carry
// raw byte arrays ("0x0a" strings) and, when the object has BTF, a formatted
// copy; raw bytes win when present. Empty output or an empty array yields no
// records.
func ParseDump(data []byte) ([]Record, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var entries []dumpEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse map dump: %w", err)
	}

	records := make([]Record, 0, len(entries))
	for i, e := range entries {
		r, err := decodeEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

func decodeEntry(e dumpEntry) (Record, error) {
	key, keyErr := rawBytes(e.Key)
	value, valueErr := rawBytes(e.Value)
	if keyErr == nil && valueErr == nil {
		return DecodeRecord(key, value)
	}

	if e.Formatted == nil {
		if keyErr != nil {
			return Record{}, keyErr
		}
		return Record{}, valueErr
	}

	var k uint32
	if err := json.Unmarshal(e.Formatted.Key, &k); err != nil {
		return Record{}, fmt.Errorf("formatted key: %w", err)
	}
	var v formattedValue
	if err := json.Unmarshal(e.Formatted.Value, &v); err != nil {
		return Record{}, fmt.Errorf("formatted value: %w", err)
	}

	// bpftool prints the __u32 key in host order.
	var kb [KeySize]byte
	binary.LittleEndian.PutUint32(kb[:], k)
	return Record{
		IP:           Key(kb).String(),
		FastPackets:  v.FastPackets,
		RxPackets:    v.RxPackets,
		LastAccessNs: v.LastAccessNs,
	}, nil
}

func rawBytes(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("missing bytes")
	}
	var hex []string
	if err := json.Unmarshal(raw, &hex); err != nil {
		return nil, fmt.Errorf("not a byte array: %w", err)
	}
	out := make([]byte, len(hex))
	for i, h := range hex {
		b, err := strconv.ParseUint(h, 0, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid byte %q: %w", h, err)
		}
		out[i] = byte(b)
	}
	return out, nil
}

// DumpJSON renders records the way `bpftool map dump -j` prints raw entries.
// The fake targets in tests use it to answer dump requests.
func DumpJSON(records []Record) ([]byte, error) {
	type raw struct {
		Key   []string `json:"key"`
		Value []string `json:"value"`
	}
	out := make([]raw, 0, len(records))
	for _, r := range records {
		k, err := EncodeKey(r.IP)
		if err != nil {
			return nil, err
		}
		v, err := EncodeRecord(r)
		if err != nil {
			return nil, err
		}
		out = append(out, raw{Key: hexStrings(k[:]), Value: hexStrings(v[:])})
	}
	return json.Marshal(out)
}

func hexStrings(b []byte) []string {
	out := make([]string, len(b))
	for i, c := range b {
		out[i] = fmt.Sprintf("0x%02x", c)
	}
	return out
}
