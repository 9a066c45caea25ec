package listener

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/geekxflood/common/config"
	"github.com/geekxflood/common/logging"
	"github.com/geekxflood/triton/internal/snmp"
)

// ValidationError describes why a datagram or packet was rejected.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// ValidationConfig holds configuration for packet validation.
type ValidationConfig struct {
	MaxPacketSize      int      `json:"max_packet_size"`
	MaxVariables       int      `json:"max_variables"`
	AllowedCommunities []string `json:"allowed_communities"`
	CommunityFile      string   `json:"community_file"`
	BlockedSources     []string `json:"blocked_sources"`
	AllowedSources     []string `json:"allowed_sources"`
}

// DefaultValidationConfig returns a default validation configuration.
// An empty AllowedCommunities list means any community is accepted.
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxPacketSize:      4096,
		MaxVariables:       100,
		AllowedCommunities: []string{},
		BlockedSources:     []string{},
		AllowedSources:     []string{},
	}
}

// PacketValidator validates trap datagrams and decoded packets. The
// community allowlist can be sourced from a file that is hot-reloaded on
// change.
type PacketValidator struct {
	config      *ValidationConfig
	logger      logging.Logger
	communities map[string]struct{}
	watcher     *fsnotify.Watcher
	wg          sync.WaitGroup
	mu          sync.RWMutex
}

// NewPacketValidator creates a validator from configuration.
func NewPacketValidator(cfg config.Provider, logger logging.Logger) (*PacketValidator, error) {
	if logger == nil {
		logger = logging.GetLogger()
	}

	vc := DefaultValidationConfig()

	if size, err := cfg.GetInt("validation.max_packet_size", vc.MaxPacketSize); err == nil {
		vc.MaxPacketSize = size
	}
	if maxVars, err := cfg.GetInt("validation.max_variables", vc.MaxVariables); err == nil {
		vc.MaxVariables = maxVars
	}
	if communities, err := cfg.GetStringSlice("validation.allowed_communities"); err == nil {
		vc.AllowedCommunities = communities
	}
	if file, err := cfg.GetString("validation.community_file", ""); err == nil {
		vc.CommunityFile = file
	}
	if blocked, err := cfg.GetStringSlice("validation.blocked_sources"); err == nil {
		vc.BlockedSources = blocked
	}
	if allowed, err := cfg.GetStringSlice("validation.allowed_sources"); err == nil {
		vc.AllowedSources = allowed
	}

	v := &PacketValidator{
		config:      vc,
		logger:      logger,
		communities: make(map[string]struct{}),
	}
	for _, c := range vc.AllowedCommunities {
		v.communities[c] = struct{}{}
	}

	if vc.CommunityFile != "" {
		if err := v.loadCommunityFile(); err != nil {
			return nil, fmt.Errorf("failed to load community file: %w", err)
		}
	}

	return v, nil
}

// Start begins watching the community file, when one is configured.
func (v *PacketValidator) Start(ctx context.Context) error {
	if v.config.CommunityFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(v.config.CommunityFile); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", v.config.CommunityFile, err)
	}

	v.watcher = watcher
	v.wg.Add(1)
	go v.watchCommunityFile(ctx)
	return nil
}

// Stop closes the file watcher.
func (v *PacketValidator) Stop() error {
	if v.watcher == nil {
		return nil
	}
	err := v.watcher.Close()
	v.wg.Wait()
	return err
}

func (v *PacketValidator) watchCommunityFile(ctx context.Context) {
	defer v.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-v.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// Debounce rapid changes.
				time.Sleep(100 * time.Millisecond)
				if err := v.loadCommunityFile(); err != nil {
					v.logger.Warn("community file reload failed", "error", err.Error())
					continue
				}
				v.logger.Info("community allowlist reloaded", "file", v.config.CommunityFile)
			}
		case err, ok := <-v.watcher.Errors:
			if !ok {
				return
			}
			v.logger.Warn("community file watcher error", "error", err.Error())
		}
	}
}

// loadCommunityFile reads one community string per line; blank lines and
// #-comments are skipped. The file replaces the configured allowlist.
func (v *PacketValidator) loadCommunityFile() error {
	f, err := os.Open(v.config.CommunityFile)
	if err != nil {
		return err
	}
	defer f.Close()

	communities := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		communities[line] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	v.mu.Lock()
	v.communities = communities
	v.mu.Unlock()
	return nil
}

// ValidateDatagram checks size and source filters before any decoding.
func (v *PacketValidator) ValidateDatagram(data []byte, source net.IP) error {
	if len(data) > v.config.MaxPacketSize {
		return ValidationError{
			Field:   "packet_size",
			Message: fmt.Sprintf("packet size %d exceeds maximum %d", len(data), v.config.MaxPacketSize),
		}
	}
	return v.validateSource(source)
}

// validateSource applies the blocked and allowed source filters. Patterns
// may be CIDR blocks or exact addresses.
func (v *PacketValidator) validateSource(source net.IP) error {
	for _, blocked := range v.config.BlockedSources {
		if matchesIPPattern(source, blocked) {
			return ValidationError{
				Field:   "source_address",
				Message: fmt.Sprintf("source address %s is blocked", source),
			}
		}
	}

	if len(v.config.AllowedSources) > 0 {
		for _, pattern := range v.config.AllowedSources {
			if matchesIPPattern(source, pattern) {
				return nil
			}
		}
		return ValidationError{
			Field:   "source_address",
			Message: fmt.Sprintf("source address %s is not in allowed list", source),
		}
	}

	return nil
}

// matchesIPPattern checks an IP against a CIDR block or exact address.
func matchesIPPattern(ip net.IP, pattern string) bool {
	if strings.Contains(pattern, "/") {
		if _, network, err := net.ParseCIDR(pattern); err == nil {
			return network.Contains(ip)
		}
		return false
	}
	return ip.String() == pattern
}

// ValidatePacket applies protocol-level policy to a decoded packet.
func (v *PacketValidator) ValidatePacket(packet *snmp.Packet) error {
	if packet == nil {
		return ValidationError{Field: "packet", Message: "packet is nil"}
	}

	v.mu.RLock()
	allowlist := v.communities
	v.mu.RUnlock()

	if len(allowlist) > 0 {
		if _, ok := allowlist[packet.Community]; !ok {
			return ValidationError{
				Field:   "community",
				Message: fmt.Sprintf("community string %q is not allowed", packet.Community),
			}
		}
	}

	if trap := packet.PDU.Trap; trap != nil && len(trap.Variables) > v.config.MaxVariables {
		return ValidationError{
			Field:   "variables",
			Message: fmt.Sprintf("too many variable bindings: %d (max: %d)", len(trap.Variables), v.config.MaxVariables),
		}
	}

	return nil
}
