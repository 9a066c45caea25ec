package asn1

import (
	"errors"
	"net"
	"testing"
)

func TestObjectIdentifierString(t *testing.T) {
	oid := ObjectIdentifier{1, 3, 6, 1, 6, 3}
	if oid.String() != "1.3.6.1.6.3" {
		t.Errorf("Expected 1.3.6.1.6.3, got %s", oid)
	}

	if (ObjectIdentifier{}).String() != "" {
		t.Error("Empty OID should render as empty string")
	}
}

func TestOIDEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b ObjectIdentifier
		want bool
	}{
		{"identical", ObjectIdentifier{1, 3, 6}, ObjectIdentifier{1, 3, 6}, true},
		{"prefix", ObjectIdentifier{1, 3}, ObjectIdentifier{1, 3, 6, 1}, true},
		{"prefix reversed", ObjectIdentifier{1, 3, 6, 1}, ObjectIdentifier{1, 3}, true},
		{"mismatch", ObjectIdentifier{1, 3, 6}, ObjectIdentifier{1, 3, 7}, false},
		{"first arc differs", ObjectIdentifier{2}, ObjectIdentifier{1, 3}, false},
		{"empty matches anything", ObjectIdentifier{}, ObjectIdentifier{1, 3}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := OIDEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("OIDEqual(%v, %v) = %t, want %t", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestValueString(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"integer", Value{Kind: TagInteger, Int: 42}, "42"},
		{"counter", Value{Kind: TagCounter32, Uint: 100}, "100"},
		{"string", Value{Kind: TagOctetString, Str: "eth0"}, "eth0"},
		{"oid", Value{Kind: TagObjectIdentifier, OID: ObjectIdentifier{1, 3, 6}}, "1.3.6"},
		{"ip", Value{Kind: TagIPAddress, Addr: net.IPv4(10, 0, 0, 1)}, "10.0.0.1"},
		{"null", Value{Kind: TagNull}, "null"},
		{"opaque", Value{Kind: TagOpaque, Bytes: []byte{0xde, 0xad}}, "dead"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.v.String(); got != tc.want {
				t.Errorf("Expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestValueCoercionFailures(t *testing.T) {
	intVal := Value{Kind: TagInteger, Int: 1}

	if _, err := intVal.AsString(); !errors.Is(err, ErrWrongType) {
		t.Errorf("AsString on Integer: expected ErrWrongType, got %v", err)
	}
	if _, err := intVal.AsOID(); !errors.Is(err, ErrWrongType) {
		t.Errorf("AsOID on Integer: expected ErrWrongType, got %v", err)
	}
	if _, err := intVal.AsIPAddr(); !errors.Is(err, ErrWrongType) {
		t.Errorf("AsIPAddr on Integer: expected ErrWrongType, got %v", err)
	}
	if _, err := intVal.AsSequence(); !errors.Is(err, ErrWrongType) {
		t.Errorf("AsSequence on Integer: expected ErrWrongType, got %v", err)
	}

	strVal := Value{Kind: TagOctetString, Str: "x"}
	if _, err := strVal.AsUint32(); !errors.Is(err, ErrWrongType) {
		t.Errorf("AsUint32 on OctetString: expected ErrWrongType, got %v", err)
	}
}

func TestValueAsUint32AcceptsIntegerAndTimeTicks(t *testing.T) {
	n, err := (Value{Kind: TagInteger, Int: 6}).AsUint32()
	if err != nil || n != 6 {
		t.Errorf("AsUint32 on Integer: got (%d, %v)", n, err)
	}

	n, err = (Value{Kind: TagTimeTicks, Uint: 12345}).AsUint32()
	if err != nil || n != 12345 {
		t.Errorf("AsUint32 on TimeTicks: got (%d, %v)", n, err)
	}
}

func TestTagString(t *testing.T) {
	if TagTrap.String() != "Trap" {
		t.Errorf("Expected Trap, got %s", TagTrap)
	}
	if Tag(0x13).String() == "" {
		t.Error("Unknown tag should still render")
	}
}
