// Package snmp maps decoded BER value trees onto the SNMPv1 message and
// Trap-PDU data model. It owns protocol-level validation: version, PDU type
// and trap field layout.
package snmp

import (
	"errors"
	"fmt"
	"net"

	"github.com/geekxflood/triton/internal/asn1"
)

// Protocol-level rejections, distinct from wire-level decode errors.
var (
	ErrUnsupportedVersion = errors.New("snmp: unsupported version")
	ErrUnsupportedPDU     = errors.New("snmp: unsupported PDU type")
)

// SNMP version numbers as they appear on the wire.
const (
	Version1  = 0
	Version2c = 1
	Version3  = 3
)

// GenericTrap is one of the seven standardized SNMPv1 trap categories.
type GenericTrap uint32

const (
	ColdStart GenericTrap = iota
	WarmStart
	LinkDown
	LinkUp
	AuthenticationFailure
	EgpNeighborLoss
	EnterpriseSpecific
)

var genericTrapNames = [...]string{
	"coldStart",
	"warmStart",
	"linkDown",
	"linkUp",
	"authenticationFailure",
	"egpNeighborLoss",
	"enterpriseSpecific",
}

// String returns the conventional camel-case trap name.
func (g GenericTrap) String() string {
	if int(g) < len(genericTrapNames) {
		return genericTrapNames[g]
	}
	return fmt.Sprintf("unknown(%d)", uint32(g))
}

// ParseGenericTrap maps a wire code to the enum; codes outside 0-6 fail.
func ParseGenericTrap(code uint32) (GenericTrap, error) {
	if code > uint32(EnterpriseSpecific) {
		return 0, fmt.Errorf("snmp: generic trap code %d out of range", code)
	}
	return GenericTrap(code), nil
}

// Variable is one (name, value) binding attached to a trap.
type Variable struct {
	Name  asn1.Value
	Value asn1.Value
}

// Trap is the decoded body of a v1 Trap-PDU.
type Trap struct {
	EnterpriseOID asn1.ObjectIdentifier
	AgentAddr     net.IP
	Generic       GenericTrap
	Specific      uint32
	TimeTicks     uint32
	Variables     []Variable
}

// PDU is the operation-specific payload of a v1 message. Only Trap is
// supported.
type PDU struct {
	Trap *Trap
}

// Packet is a parsed SNMP message. Only version 1 is produced.
type Packet struct {
	Version   int
	Community string
	PDU       PDU
}

// ParsePacket decodes a whole datagram into a typed v1 packet. The buffer
// must hold one Sequence of at least three elements: version, community and
// the Trap-PDU container.
func ParsePacket(data []byte) (*Packet, error) {
	decoded, err := asn1.DecodeValue(asn1.NewReader(data))
	if err != nil {
		return nil, err
	}

	seq, err := decoded.AsSequence()
	if err != nil {
		return nil, err
	}
	if len(seq) < 3 {
		return nil, fmt.Errorf("%w: message has %d elements, need 3", asn1.ErrWrongType, len(seq))
	}

	version, err := seq[0].AsUint32()
	if err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != Version1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	community, err := seq[1].AsString()
	if err != nil {
		return nil, fmt.Errorf("reading community: %w", err)
	}

	pdu, err := parsePDU(seq[2])
	if err != nil {
		return nil, err
	}

	return &Packet{
		Version:   Version1,
		Community: community,
		PDU:       pdu,
	}, nil
}

// parsePDU dispatches on the PDU container tag. Anything other than a v1
// Trap-PDU is rejected.
func parsePDU(v asn1.Value) (PDU, error) {
	if v.Kind != asn1.TagTrap {
		return PDU{}, fmt.Errorf("%w: %s", ErrUnsupportedPDU, v.Kind)
	}
	trap, err := parseTrap(v.Children)
	if err != nil {
		return PDU{}, err
	}
	return PDU{Trap: trap}, nil
}

// parseTrap decodes the six fixed trap fields followed by the varbind list.
func parseTrap(fields []asn1.Value) (*Trap, error) {
	if len(fields) < 6 {
		return nil, fmt.Errorf("snmp: trap has %d fields, need 6", len(fields))
	}

	oid, err := fields[0].AsOID()
	if err != nil {
		return nil, fmt.Errorf("reading enterprise OID: %w", err)
	}

	addr, err := fields[1].AsIPAddr()
	if err != nil {
		return nil, fmt.Errorf("reading agent address: %w", err)
	}

	genericCode, err := fields[2].AsUint32()
	if err != nil {
		return nil, fmt.Errorf("reading generic trap code: %w", err)
	}
	generic, err := ParseGenericTrap(genericCode)
	if err != nil {
		return nil, err
	}

	specific, err := fields[3].AsUint32()
	if err != nil {
		return nil, fmt.Errorf("reading specific trap code: %w", err)
	}

	ticks, err := fields[4].AsUint32()
	if err != nil {
		return nil, fmt.Errorf("reading time ticks: %w", err)
	}

	bindings, err := fields[5].AsSequence()
	if err != nil {
		return nil, fmt.Errorf("reading variable bindings: %w", err)
	}

	trap := &Trap{
		EnterpriseOID: oid,
		AgentAddr:     addr,
		Generic:       generic,
		Specific:      specific,
		TimeTicks:     ticks,
	}

	// A malformed individual binding does not invalidate an otherwise
	// well-formed trap; non-sequence entries and pairs with fewer than two
	// elements are skipped.
	for _, binding := range bindings {
		pair, err := binding.AsSequence()
		if err != nil || len(pair) < 2 {
			continue
		}
		trap.Variables = append(trap.Variables, Variable{Name: pair[0], Value: pair[1]})
	}

	return trap, nil
}
