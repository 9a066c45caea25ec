package asn1

import (
	"fmt"
	"net"
	"unicode/utf8"
)

// maxOIDArcOctets bounds the encoded-octet count of a single base-128 OID
// arc. This is a safety bound against unbounded input, not an exact 32-bit
// overflow check.
const maxOIDArcOctets = 5

// Reader is a cursor over an immutable byte slice: current read position
// plus the remaining bytes. The decoder borrows the slice and never writes
// to it.
type Reader struct {
	data   []byte
	offset int
}

// NewReader returns a cursor positioned at the start of data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Offset returns the current read position.
func (r *Reader) Offset() int {
	return r.offset
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.offset
}

func (r *Reader) readByte() (byte, error) {
	if r.offset >= len(r.data) {
		return 0, fmt.Errorf("%w: at offset %d", ErrTruncated, r.offset)
	}
	b := r.data[r.offset]
	r.offset++
	return b, nil
}

func (r *Reader) readBytes(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d",
			ErrTruncated, n, r.offset, r.Remaining())
	}
	out := make([]byte, n)
	copy(out, r.data[r.offset:r.offset+n])
	r.offset += n
	return out, nil
}

// readLength decodes a BER length field. Short form: high bit clear, the
// octet is the length (0-126). Long form: high bit set, the low 7 bits give
// the count of subsequent big-endian octets forming the length.
func (r *Reader) readLength() (int, error) {
	first, err := r.readByte()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return int(first), nil
	}

	numOctets := int(first & 0x7f)
	length := 0
	for i := 0; i < numOctets; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		length = length<<8 | int(b)
	}
	return length, nil
}

// readTagLength reads one tag octet and the length field that follows, and
// verifies the declared content fits in the remaining buffer. The bound is
// checked here, before any content read, so a crafted length can never pull
// the decoder past the end of the datagram.
func (r *Reader) readTagLength() (Tag, int, error) {
	b, err := r.readByte()
	if err != nil {
		return 0, 0, err
	}
	tag, err := lookupTag(b)
	if err != nil {
		return 0, 0, err
	}

	length, err := r.readLength()
	if err != nil {
		return 0, 0, err
	}
	if length > r.Remaining() {
		return 0, 0, fmt.Errorf("%w: %s declares %d content bytes, %d remain",
			ErrUnexpectedValue, tag, length, r.Remaining())
	}
	return tag, length, nil
}

// readUint accumulates length bytes big-endian into an unsigned value.
// No two's-complement sign extension is performed, even for the signed
// Integer tag: trap fields carry small non-negative values and the raw
// magnitude must be preserved as-is.
func (r *Reader) readUint(length int) (uint64, error) {
	var v uint64
	for i := 0; i < length; i++ {
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// readBase128 decodes one base-128 varint arc: octets accumulate into
// (acc<<7)|(b&0x7f) while the high bit is set. An arc spanning more than
// maxOIDArcOctets octets fails rather than looping on malicious input.
func (r *Reader) readBase128() (uint32, error) {
	var acc uint32
	for i := 0; ; i++ {
		if i >= maxOIDArcOctets {
			return 0, fmt.Errorf("%w: OID arc longer than %d octets", ErrUnexpectedValue, maxOIDArcOctets)
		}
		b, err := r.readByte()
		if err != nil {
			return 0, err
		}
		acc = acc<<7 | uint32(b&0x7f)
		if b&0x80 == 0 {
			return acc, nil
		}
	}
}

// SplitFirstArcOctet expands the first OID content octet into the two
// leading arcs per the BER convention: X/40 and X%40.
func SplitFirstArcOctet(b byte) (uint32, uint32) {
	return uint32(b / 40), uint32(b % 40)
}

// readOID decodes length bytes of OID content. The first octet yields two
// arcs; every following arc is a base-128 varint. The loop is bounded by
// byte offset against the declared length, so a varint can never run past
// the OID's content.
func (r *Reader) readOID(length int) (ObjectIdentifier, error) {
	if length == 0 {
		return nil, fmt.Errorf("%w: empty OID content", ErrUnexpectedValue)
	}
	end := r.offset + length

	first, err := r.readByte()
	if err != nil {
		return nil, err
	}
	a0, a1 := SplitFirstArcOctet(first)
	oid := ObjectIdentifier{a0, a1}

	for r.offset < end {
		arc, err := r.readBase128()
		if err != nil {
			return nil, err
		}
		oid = append(oid, arc)
	}
	return oid, nil
}

// readIPAddress decodes a 4-byte IPv4 or 16-byte IPv6 address; any other
// length is invalid. The 16-byte form is read as eight big-endian 16-bit
// groups.
func (r *Reader) readIPAddress(length int) (net.IP, error) {
	switch length {
	case 4:
		b, err := r.readBytes(4)
		if err != nil {
			return nil, err
		}
		return net.IPv4(b[0], b[1], b[2], b[3]), nil
	case 16:
		ip := make(net.IP, 16)
		for i := 0; i < 8; i++ {
			b, err := r.readBytes(2)
			if err != nil {
				return nil, err
			}
			ip[2*i] = b[0]
			ip[2*i+1] = b[1]
		}
		return ip, nil
	default:
		return nil, fmt.Errorf("%w: IP address length %d", ErrUnexpectedValue, length)
	}
}

// readSequence decodes child values until the cumulative bytes consumed
// since the container's content began equal the declared length.
func (r *Reader) readSequence(length int) ([]Value, error) {
	end := r.offset + length
	var children []Value
	for r.offset < end {
		child, err := DecodeValue(r)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

// DecodeValue decodes one TLV element at the cursor, recursing into nested
// containers. It is the single entry point of the decoder.
func DecodeValue(r *Reader) (Value, error) {
	tag, length, err := r.readTagLength()
	if err != nil {
		return Value{}, err
	}

	switch tag {
	case TagSequence, TagTrap,
		TagGetRequest, TagGetNextRequest, TagGetResponse, TagSetRequest,
		TagGetBulkRequest, TagInformRequest, TagSnmpV2Trap, TagReport:
		children, err := r.readSequence(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Children: children}, nil

	case TagInteger:
		v, err := r.readUint(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Int: int64(v)}, nil

	case TagCounter32, TagGauge32, TagTimeTicks:
		v, err := r.readUint(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Uint: v}, nil

	case TagCounter64:
		v, err := r.readUint(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Uint: v}, nil

	case TagOctetString:
		b, err := r.readBytes(length)
		if err != nil {
			return Value{}, err
		}
		if !utf8.Valid(b) {
			return Value{}, fmt.Errorf("%w: octet string is not valid UTF-8", ErrWrongType)
		}
		return Value{Kind: tag, Str: string(b)}, nil

	case TagNull:
		return Value{Kind: tag}, nil

	case TagObjectIdentifier:
		oid, err := r.readOID(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, OID: oid}, nil

	case TagIPAddress:
		ip, err := r.readIPAddress(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Addr: ip}, nil

	case TagOpaque, TagNsapAddress:
		b, err := r.readBytes(length)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: tag, Bytes: b}, nil

	case TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView, TagEndOfContents:
		return Value{Kind: tag}, nil

	default:
		// Recognized tag with no decode support (Boolean, BitString,
		// ObjectDescription, Uinteger32).
		return Value{}, fmt.Errorf("%w: unsupported tag %s", ErrWrongType, tag)
	}
}
