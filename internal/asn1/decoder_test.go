package asn1

import (
	"bytes"
	"errors"
	"net"
	"testing"
)

// tlv builds one tag-length-value element with a short-form length.
func tlv(tag Tag, content ...byte) []byte {
	if len(content) > 126 {
		panic("tlv helper only handles short-form lengths")
	}
	out := []byte{byte(tag), byte(len(content))}
	return append(out, content...)
}

func decode(t *testing.T, data []byte) Value {
	t.Helper()
	v, err := DecodeValue(NewReader(data))
	if err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	return v
}

func TestDecodeInteger(t *testing.T) {
	v := decode(t, tlv(TagInteger, 0x2a))
	if v.Kind != TagInteger {
		t.Fatalf("Expected Integer, got %s", v.Kind)
	}
	if v.Int != 42 {
		t.Errorf("Expected 42, got %d", v.Int)
	}
}

func TestDecodeIntegerNoSignExtension(t *testing.T) {
	// High-bit content octets accumulate as raw magnitude, never as a
	// two's-complement negative.
	cases := []struct {
		content []byte
		want    int64
	}{
		{[]byte{0xff}, 255},
		{[]byte{0xff, 0xff}, 65535},
		{[]byte{0x80, 0x00}, 32768},
		{[]byte{0x00}, 0},
	}

	for _, tc := range cases {
		v := decode(t, tlv(TagInteger, tc.content...))
		if v.Int != tc.want {
			t.Errorf("Content % x: expected %d, got %d", tc.content, tc.want, v.Int)
		}
	}
}

func TestDecodeLongFormLength(t *testing.T) {
	content := bytes.Repeat([]byte{'a'}, 130)
	data := append([]byte{byte(TagOctetString), 0x81, 130}, content...)

	v := decode(t, data)
	if v.Str != string(content) {
		t.Errorf("Long-form octet string not decoded correctly, got %d bytes", len(v.Str))
	}
}

func TestDecodeOctetString(t *testing.T) {
	v := decode(t, tlv(TagOctetString, []byte("public")...))
	if v.Str != "public" {
		t.Errorf("Expected 'public', got %q", v.Str)
	}
}

func TestDecodeOctetStringInvalidUTF8(t *testing.T) {
	_, err := DecodeValue(NewReader(tlv(TagOctetString, 0xff, 0xfe)))
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("Expected ErrWrongType for invalid UTF-8, got %v", err)
	}
}

func TestDecodeOID(t *testing.T) {
	v := decode(t, tlv(TagObjectIdentifier, 0x2b, 0x06, 0x01, 0x06, 0x03))

	oid, err := v.AsOID()
	if err != nil {
		t.Fatalf("AsOID failed: %v", err)
	}
	if oid.String() != "1.3.6.1.6.3" {
		t.Errorf("Expected 1.3.6.1.6.3, got %s", oid)
	}
}

func TestDecodeOIDMultiByteArc(t *testing.T) {
	// 0x81 0x48 is the two-octet varint for arc 200.
	v := decode(t, tlv(TagObjectIdentifier, 0x2b, 0x81, 0x48, 0x01))

	oid, _ := v.AsOID()
	want := ObjectIdentifier{1, 3, 200, 1}
	if len(oid) != len(want) {
		t.Fatalf("Expected %v, got %v", want, oid)
	}
	for i := range want {
		if oid[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, oid)
		}
	}
}

func TestDecodeOIDArcTooLong(t *testing.T) {
	// Five continuation octets without termination exhaust the arc bound.
	_, err := DecodeValue(NewReader(tlv(TagObjectIdentifier, 0x2b, 0xff, 0xff, 0xff, 0xff, 0xff)))
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Fatalf("Expected ErrUnexpectedValue for runaway varint, got %v", err)
	}
}

func TestDecodeOIDEmpty(t *testing.T) {
	_, err := DecodeValue(NewReader(tlv(TagObjectIdentifier)))
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Fatalf("Expected ErrUnexpectedValue for empty OID, got %v", err)
	}
}

func TestDecodeLengthPastEnd(t *testing.T) {
	// Declared length of 5 with only 2 content bytes present must fail
	// before any content is read.
	_, err := DecodeValue(NewReader([]byte{byte(TagOctetString), 0x05, 'a', 'b'}))
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Fatalf("Expected ErrUnexpectedValue for oversized length, got %v", err)
	}
}

func TestDecodeTruncatedHeader(t *testing.T) {
	_, err := DecodeValue(NewReader([]byte{byte(TagInteger)}))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("Expected ErrTruncated for missing length, got %v", err)
	}

	_, err = DecodeValue(NewReader(nil))
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("Expected ErrTruncated for empty input, got %v", err)
	}
}

func TestDecodeUnknownTag(t *testing.T) {
	_, err := DecodeValue(NewReader([]byte{0x13, 0x00}))
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("Expected ErrWrongType for unknown tag, got %v", err)
	}
}

func TestDecodeUnsupportedTag(t *testing.T) {
	// Boolean is in the tag table but has no decode support.
	_, err := DecodeValue(NewReader(tlv(TagBoolean, 0xff)))
	if !errors.Is(err, ErrWrongType) {
		t.Fatalf("Expected ErrWrongType for Boolean, got %v", err)
	}
}

func TestDecodeIPAddressV4(t *testing.T) {
	v := decode(t, tlv(TagIPAddress, 23, 3, 3, 4))

	ip, err := v.AsIPAddr()
	if err != nil {
		t.Fatalf("AsIPAddr failed: %v", err)
	}
	if !ip.Equal(net.IPv4(23, 3, 3, 4)) {
		t.Errorf("Expected 23.3.3.4, got %s", ip)
	}
}

func TestDecodeIPAddressV6(t *testing.T) {
	content := []byte{
		0x20, 0x01, 0x0d, 0xb8, 0, 0, 0, 0,
		0, 0, 0, 0, 0, 0, 0, 0x01,
	}
	v := decode(t, tlv(TagIPAddress, content...))

	ip, _ := v.AsIPAddr()
	if ip.String() != "2001:db8::1" {
		t.Errorf("Expected 2001:db8::1, got %s", ip)
	}
}

func TestDecodeIPAddressBadLength(t *testing.T) {
	_, err := DecodeValue(NewReader(tlv(TagIPAddress, 1, 2, 3)))
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Fatalf("Expected ErrUnexpectedValue for 3-byte address, got %v", err)
	}
}

func TestDecodeCounters(t *testing.T) {
	v := decode(t, tlv(TagCounter32, 0x01, 0x00))
	if v.Uint != 256 {
		t.Errorf("Counter32: expected 256, got %d", v.Uint)
	}

	v = decode(t, tlv(TagTimeTicks, 0x00))
	if v.Uint != 0 {
		t.Errorf("TimeTicks: expected 0, got %d", v.Uint)
	}

	v = decode(t, tlv(TagCounter64, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff))
	if v.Uint != ^uint64(0) {
		t.Errorf("Counter64: expected max uint64, got %d", v.Uint)
	}
}

func TestDecodeNullAndMarkers(t *testing.T) {
	for _, tag := range []Tag{TagNull, TagNoSuchObject, TagNoSuchInstance, TagEndOfMibView} {
		v := decode(t, tlv(tag))
		if v.Kind != tag {
			t.Errorf("Expected %s, got %s", tag, v.Kind)
		}
	}
}

func TestDecodeSequenceNested(t *testing.T) {
	inner := tlv(TagInteger, 0x07)
	str := tlv(TagOctetString, []byte("up")...)
	data := tlv(TagSequence, append(inner, str...)...)

	v := decode(t, data)
	children, err := v.AsSequence()
	if err != nil {
		t.Fatalf("AsSequence failed: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("Expected 2 children, got %d", len(children))
	}
	if children[0].Int != 7 || children[1].Str != "up" {
		t.Errorf("Children decoded incorrectly: %v", children)
	}
}

func TestDecodeEmptySequence(t *testing.T) {
	v := decode(t, tlv(TagSequence))
	children, _ := v.AsSequence()
	if len(children) != 0 {
		t.Errorf("Expected no children, got %d", len(children))
	}
}

func TestDecodeTrapContainer(t *testing.T) {
	data := tlv(TagTrap, tlv(TagInteger, 0x01)...)
	v := decode(t, data)
	if v.Kind != TagTrap {
		t.Fatalf("Expected Trap container, got %s", v.Kind)
	}
	if len(v.Children) != 1 {
		t.Errorf("Expected 1 child, got %d", len(v.Children))
	}
}

func TestSplitFirstArcOctet(t *testing.T) {
	cases := []struct {
		octet  byte
		a0, a1 uint32
	}{
		{0x2b, 1, 3},
		{0x00, 0, 0},
		{80, 2, 0},
		{41, 1, 1},
	}

	for _, tc := range cases {
		a0, a1 := SplitFirstArcOctet(tc.octet)
		if a0 != tc.a0 || a1 != tc.a1 {
			t.Errorf("Octet %d: expected (%d, %d), got (%d, %d)", tc.octet, tc.a0, tc.a1, a0, a1)
		}
	}
}

func TestReaderOffsetTracking(t *testing.T) {
	data := append(tlv(TagInteger, 0x01), tlv(TagInteger, 0x02)...)
	r := NewReader(data)

	if _, err := DecodeValue(r); err != nil {
		t.Fatalf("First decode failed: %v", err)
	}
	if r.Offset() != 3 {
		t.Errorf("Expected offset 3 after first element, got %d", r.Offset())
	}

	v, err := DecodeValue(r)
	if err != nil {
		t.Fatalf("Second decode failed: %v", err)
	}
	if v.Int != 2 {
		t.Errorf("Expected 2, got %d", v.Int)
	}
	if r.Remaining() != 0 {
		t.Errorf("Expected no remaining bytes, got %d", r.Remaining())
	}
}
