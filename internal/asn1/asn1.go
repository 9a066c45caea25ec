// Package asn1 implements the BER tag-length-value subset used by SNMP
// trap datagrams. It decodes an untrusted byte buffer into a tree of typed
// values and has no knowledge of SNMP message semantics.
package asn1

import (
	"errors"
	"fmt"
)

// Tag identifies the semantic type of a TLV element on the wire.
type Tag byte

// Wire tag values. These must match the encoding bit-for-bit.
const (
	TagEndOfContents     Tag = 0x00
	TagBoolean           Tag = 0x01
	TagInteger           Tag = 0x02
	TagBitString         Tag = 0x03
	TagOctetString       Tag = 0x04
	TagNull              Tag = 0x05
	TagObjectIdentifier  Tag = 0x06
	TagObjectDescription Tag = 0x07

	TagSequence    Tag = 0x30
	TagIPAddress   Tag = 0x40
	TagCounter32   Tag = 0x41
	TagGauge32     Tag = 0x42
	TagTimeTicks   Tag = 0x43
	TagOpaque      Tag = 0x44
	TagNsapAddress Tag = 0x45
	TagCounter64   Tag = 0x46
	TagUinteger32  Tag = 0x47

	TagNoSuchObject   Tag = 0x80
	TagNoSuchInstance Tag = 0x81
	TagEndOfMibView   Tag = 0x82

	// PDU container tags.
	TagGetRequest     Tag = 0xa0
	TagGetNextRequest Tag = 0xa1
	TagGetResponse    Tag = 0xa2
	TagSetRequest     Tag = 0xa3
	TagTrap           Tag = 0xa4
	TagGetBulkRequest Tag = 0xa5
	TagInformRequest  Tag = 0xa6
	TagSnmpV2Trap     Tag = 0xa7
	TagReport         Tag = 0xa8
)

// Decode error taxonomy. All three are terminal for the datagram being
// decoded; none are retried.
var (
	// ErrTruncated indicates a short read: the buffer ended before the
	// element it promised.
	ErrTruncated = errors.New("asn1: truncated input")

	// ErrUnexpectedValue indicates a length or content inconsistency:
	// declared length past the end of the buffer, a bad address length,
	// or a runaway varint.
	ErrUnexpectedValue = errors.New("asn1: unexpected value")

	// ErrWrongType indicates an unknown or disallowed tag, invalid UTF-8
	// in a string, or an accessor applied to the wrong variant.
	ErrWrongType = errors.New("asn1: wrong type")
)

var tagNames = map[Tag]string{
	TagEndOfContents:     "EndOfContents",
	TagBoolean:           "Boolean",
	TagInteger:           "Integer",
	TagBitString:         "BitString",
	TagOctetString:       "OctetString",
	TagNull:              "Null",
	TagObjectIdentifier:  "ObjectIdentifier",
	TagObjectDescription: "ObjectDescription",
	TagSequence:          "Sequence",
	TagIPAddress:         "IPAddress",
	TagCounter32:         "Counter32",
	TagGauge32:           "Gauge32",
	TagTimeTicks:         "TimeTicks",
	TagOpaque:            "Opaque",
	TagNsapAddress:       "NsapAddress",
	TagCounter64:         "Counter64",
	TagUinteger32:        "Uinteger32",
	TagNoSuchObject:      "NoSuchObject",
	TagNoSuchInstance:    "NoSuchInstance",
	TagEndOfMibView:      "EndOfMibView",
	TagGetRequest:        "GetRequest",
	TagGetNextRequest:    "GetNextRequest",
	TagGetResponse:       "GetResponse",
	TagSetRequest:        "SetRequest",
	TagTrap:              "Trap",
	TagGetBulkRequest:    "GetBulkRequest",
	TagInformRequest:     "InformRequest",
	TagSnmpV2Trap:        "SnmpV2Trap",
	TagReport:            "Report",
}

// String returns the human-readable name of the tag.
func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(0x%02x)", byte(t))
}

// lookupTag maps a raw tag octet to a known tag. Octets outside the fixed
// table fail with ErrWrongType.
func lookupTag(b byte) (Tag, error) {
	t := Tag(b)
	if _, ok := tagNames[t]; !ok {
		return 0, fmt.Errorf("%w: tag 0x%02x", ErrWrongType, b)
	}
	return t, nil
}
