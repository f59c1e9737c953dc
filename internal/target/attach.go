package target

import (
	"fmt"
	"strings"
)

// AttachFlag selects the XDP hook variant.
type AttachFlag string

const (
	AttachGeneric   AttachFlag = "generic"
	AttachNative    AttachFlag = "native"
	AttachOffloaded AttachFlag = "offloaded"
)

// DefaultAttachFlag works on every driver.
const DefaultAttachFlag = AttachGeneric

var bpftoolAttachTypes = map[AttachFlag]string{
	AttachGeneric:   "xdpgeneric",
	AttachNative:    "xdpdrv",
	AttachOffloaded: "xdpoffload",
}

// ParseAttachFlag validates a user supplied flag. Empty selects
// DefaultAttachFlag.
func ParseAttachFlag(s string) (AttachFlag, error) {
	if s == "" {
		return DefaultAttachFlag, nil
	}
	f := AttachFlag(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := bpftoolAttachTypes[f]; !ok {
		return "", fmt.Errorf("unsupported attach flag %q (supported: generic, native, offloaded)", s)
	}
	return f, nil
}

// BpftoolType returns the attach type argument for `bpftool net attach`.
func (f AttachFlag) BpftoolType() string {
	if t, ok := bpftoolAttachTypes[f]; ok {
		return t
	}
	return bpftoolAttachTypes[DefaultAttachFlag]
}
