package asn1

import (
	"fmt"
	"net"
	"strings"
)

// ObjectIdentifier is an ordered sequence of unsigned 32-bit arcs. Arcs are
// never mutated after decode.
type ObjectIdentifier []uint32

// String returns the dotted numeric form, e.g. "1.3.6.1.6.3".
func (oid ObjectIdentifier) String() string {
	var sb strings.Builder
	for i, arc := range oid {
		if i > 0 {
			sb.WriteByte('.')
		}
		fmt.Fprintf(&sb, "%d", arc)
	}
	return sb.String()
}

// OIDEqual reports whether the shared prefix of a and b matches arc for arc.
func OIDEqual(a, b ObjectIdentifier) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Value is the decoded form of one TLV element. Kind selects which payload
// field is meaningful; the rest are zero. A Value owns all of its nested
// data and is never mutated after construction.
type Value struct {
	Kind Tag

	Int      int64            // Integer
	Uint     uint64           // Counter32, Gauge32, TimeTicks, Counter64
	Bool     bool             // Boolean
	Str      string           // OctetString, ObjectDescription
	Bytes    []byte           // Opaque, NsapAddress, BitString
	OID      ObjectIdentifier // ObjectIdentifier
	Addr     net.IP           // IPAddress
	Children []Value          // Sequence, Trap
}

// String renders the payload for logs and storage.
func (v Value) String() string {
	switch v.Kind {
	case TagInteger:
		return fmt.Sprintf("%d", v.Int)
	case TagCounter32, TagGauge32, TagTimeTicks, TagUinteger32, TagCounter64:
		return fmt.Sprintf("%d", v.Uint)
	case TagBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case TagOctetString, TagObjectDescription:
		return v.Str
	case TagObjectIdentifier:
		return v.OID.String()
	case TagIPAddress:
		return v.Addr.String()
	case TagOpaque, TagNsapAddress, TagBitString:
		return fmt.Sprintf("%x", v.Bytes)
	case TagNull:
		return "null"
	case TagSequence, TagTrap:
		parts := make([]string, len(v.Children))
		for i, c := range v.Children {
			parts[i] = c.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return v.Kind.String()
	}
}

// AsOID returns the object identifier arcs.
func (v Value) AsOID() (ObjectIdentifier, error) {
	if v.Kind != TagObjectIdentifier {
		return nil, fmt.Errorf("%w: %s is not an object identifier", ErrWrongType, v.Kind)
	}
	return v.OID, nil
}

// AsIPAddr returns the IP address payload.
func (v Value) AsIPAddr() (net.IP, error) {
	if v.Kind != TagIPAddress {
		return nil, fmt.Errorf("%w: %s is not an IP address", ErrWrongType, v.Kind)
	}
	return v.Addr, nil
}

// AsBool returns the boolean payload.
func (v Value) AsBool() (bool, error) {
	if v.Kind != TagBoolean {
		return false, fmt.Errorf("%w: %s is not a boolean", ErrWrongType, v.Kind)
	}
	return v.Bool, nil
}

// AsInt64 returns the signed integer payload.
func (v Value) AsInt64() (int64, error) {
	if v.Kind != TagInteger {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrWrongType, v.Kind)
	}
	return v.Int, nil
}

// AsUint32 returns the value as an unsigned 32-bit integer. Integer and
// TimeTicks are both accepted: trap fields on the wire carry either tag for
// the same semantic field.
func (v Value) AsUint32() (uint32, error) {
	switch v.Kind {
	case TagInteger:
		return uint32(v.Int), nil
	case TagTimeTicks:
		return uint32(v.Uint), nil
	default:
		return 0, fmt.Errorf("%w: %s is not an unsigned integer", ErrWrongType, v.Kind)
	}
}

// AsString returns the text payload of an OctetString.
func (v Value) AsString() (string, error) {
	if v.Kind != TagOctetString {
		return "", fmt.Errorf("%w: %s is not an octet string", ErrWrongType, v.Kind)
	}
	return v.Str, nil
}

// AsSequence returns the ordered child values of a container. Sequence and
// Trap are both accepted so callers can walk a Trap-PDU body like any other
// sequence.
func (v Value) AsSequence() ([]Value, error) {
	switch v.Kind {
	case TagSequence, TagTrap:
		return v.Children, nil
	default:
		return nil, fmt.Errorf("%w: %s is not a sequence", ErrWrongType, v.Kind)
	}
}
