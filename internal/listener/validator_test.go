package listener

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/geekxflood/triton/internal/snmp"
)

func newValidator(t *testing.T, overrides map[string]interface{}) *PacketValidator {
	t.Helper()

	cfg := newMockConfigProvider()
	for k, val := range overrides {
		cfg.values[k] = val
	}

	v, err := NewPacketValidator(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create validator: %v", err)
	}
	return v
}

func TestValidateDatagramSize(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.max_packet_size": 10,
	})

	if err := v.ValidateDatagram(make([]byte, 10), net.IPv4(10, 0, 0, 1)); err != nil {
		t.Errorf("Packet at the limit should pass: %v", err)
	}
	if err := v.ValidateDatagram(make([]byte, 11), net.IPv4(10, 0, 0, 1)); err == nil {
		t.Error("Oversized packet should be rejected")
	}
}

func TestValidateSourceBlocked(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.blocked_sources": []string{"192.168.1.100", "10.0.0.0/8"},
	})

	if err := v.ValidateDatagram(nil, net.IPv4(192, 168, 1, 100)); err == nil {
		t.Error("Exact blocked address should be rejected")
	}
	if err := v.ValidateDatagram(nil, net.IPv4(10, 1, 2, 3)); err == nil {
		t.Error("Address in blocked CIDR should be rejected")
	}
	if err := v.ValidateDatagram(nil, net.IPv4(192, 168, 1, 101)); err != nil {
		t.Errorf("Unblocked address should pass: %v", err)
	}
}

func TestValidateSourceAllowlist(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.allowed_sources": []string{"172.16.0.0/12"},
	})

	if err := v.ValidateDatagram(nil, net.IPv4(172, 16, 5, 5)); err != nil {
		t.Errorf("Address in allowed CIDR should pass: %v", err)
	}
	if err := v.ValidateDatagram(nil, net.IPv4(8, 8, 8, 8)); err == nil {
		t.Error("Address outside allowlist should be rejected")
	}
}

func TestValidateSourceBlockedWinsOverAllowed(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.allowed_sources": []string{"10.0.0.0/8"},
		"validation.blocked_sources": []string{"10.0.0.5"},
	})

	if err := v.ValidateDatagram(nil, net.IPv4(10, 0, 0, 5)); err == nil {
		t.Error("Blocked address inside allowed range should still be rejected")
	}
}

func TestMatchesIPPattern(t *testing.T) {
	cases := []struct {
		ip      string
		pattern string
		want    bool
	}{
		{"10.0.0.1", "10.0.0.1", true},
		{"10.0.0.1", "10.0.0.2", false},
		{"10.0.0.1", "10.0.0.0/24", true},
		{"10.0.1.1", "10.0.0.0/24", false},
		{"10.0.0.1", "not-a-cidr/99", false},
	}

	for _, tc := range cases {
		if got := matchesIPPattern(net.ParseIP(tc.ip), tc.pattern); got != tc.want {
			t.Errorf("matchesIPPattern(%s, %s) = %t, want %t", tc.ip, tc.pattern, got, tc.want)
		}
	}
}

func TestValidatePacketCommunity(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.allowed_communities": []string{"public", "private"},
	})

	if err := v.ValidatePacket(&snmp.Packet{Community: "public"}); err != nil {
		t.Errorf("Allowed community should pass: %v", err)
	}
	if err := v.ValidatePacket(&snmp.Packet{Community: "guessme"}); err == nil {
		t.Error("Unknown community should be rejected")
	}
}

func TestValidatePacketAnyCommunityWhenListEmpty(t *testing.T) {
	v := newValidator(t, nil)

	if err := v.ValidatePacket(&snmp.Packet{Community: "anything"}); err != nil {
		t.Errorf("Empty allowlist should accept any community: %v", err)
	}
}

func TestValidatePacketNil(t *testing.T) {
	v := newValidator(t, nil)
	if err := v.ValidatePacket(nil); err == nil {
		t.Error("Nil packet should be rejected")
	}
}

func TestValidatePacketMaxVariables(t *testing.T) {
	v := newValidator(t, map[string]interface{}{
		"validation.max_variables": 2,
	})

	trap := &snmp.Trap{Variables: make([]snmp.Variable, 3)}
	err := v.ValidatePacket(&snmp.Packet{Community: "public", PDU: snmp.PDU{Trap: trap}})
	if err == nil {
		t.Error("Trap exceeding variable limit should be rejected")
	}

	trap.Variables = trap.Variables[:2]
	if err := v.ValidatePacket(&snmp.Packet{Community: "public", PDU: snmp.PDU{Trap: trap}}); err != nil {
		t.Errorf("Trap at variable limit should pass: %v", err)
	}
}

func writeCommunityFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "communities.txt")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write community file: %v", err)
	}
	return path
}

func TestCommunityFileLoad(t *testing.T) {
	path := writeCommunityFile(t, "# managed communities\npublic\n\nnoc-team\n")

	v := newValidator(t, map[string]interface{}{
		"validation.community_file": path,
	})

	if err := v.ValidatePacket(&snmp.Packet{Community: "public"}); err != nil {
		t.Errorf("Community from file should pass: %v", err)
	}
	if err := v.ValidatePacket(&snmp.Packet{Community: "noc-team"}); err != nil {
		t.Errorf("Community from file should pass: %v", err)
	}
	if err := v.ValidatePacket(&snmp.Packet{Community: "other"}); err == nil {
		t.Error("Community absent from file should be rejected")
	}
}

func TestCommunityFileMissing(t *testing.T) {
	cfg := newMockConfigProvider()
	cfg.values["validation.community_file"] = "/nonexistent/communities.txt"

	if _, err := NewPacketValidator(cfg, nil); err == nil {
		t.Error("Missing community file should fail validator creation")
	}
}

func TestCommunityFileReload(t *testing.T) {
	path := writeCommunityFile(t, "public\n")

	v := newValidator(t, map[string]interface{}{
		"validation.community_file": path,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := v.Start(ctx); err != nil {
		t.Fatalf("Failed to start validator: %v", err)
	}
	defer v.Stop()

	if err := v.ValidatePacket(&snmp.Packet{Community: "rotated"}); err == nil {
		t.Fatal("Community should not be allowed before rotation")
	}

	if err := os.WriteFile(path, []byte("rotated\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite community file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if v.ValidatePacket(&snmp.Packet{Community: "rotated"}) == nil {
			// The old community must be gone as well.
			if v.ValidatePacket(&snmp.Packet{Community: "public"}) == nil {
				t.Fatal("Old community still allowed after reload")
			}
			return
		}
		time.Sleep(25 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for community file reload")
}
