package utils

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/chaifeng/proxy.pac/internal/model"
)

var (
	ipv4Literal = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	ipv6Literal = regexp.MustCompile(`^[a-fA-F0-9:]+$`)

	// zeroRun matches the leftmost run of two or more zero groups.
	zeroRun = regexp.MustCompile(`(:0{1,4}){2,}`)
)

// IsIPLiteral reports whether host looks like an address. Anything made of
// hex digits and colons counts as IPv6, so names such as "cafe" qualify.
func IsIPLiteral(host string) bool {
	return ipv4Literal.MatchString(host) || ipv6Literal.MatchString(host)
}

// ParseIPv4 packs a dotted-decimal address into a big-endian integer.
func ParseIPv4(text string) (uint32, error) {
	parts := strings.Split(text, ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid IPv4 address %q: expected 4 octets, got %d", text, len(parts))
	}
	var value uint32
	for _, part := range parts {
		if part == "" || strings.TrimLeft(part, "0123456789") != "" {
			return 0, fmt.Errorf("invalid IPv4 address %q: non-numeric octet %q", text, part)
		}
		octet, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid IPv4 address %q: octet %q out of range", text, part)
		}
		value = value<<8 | uint32(octet)
	}
	return value, nil
}

// ParseIPv6 maps colon separated groups onto two 64-bit halves by position:
// the first four groups form high, the next four form low. Empty groups are
// zero and "::" is not expanded, so "fe80::1" yields fe80:0:1:0:0:0:0:0.
// Lookups depend on this exact mapping.
func ParseIPv6(text string) (high, low uint64, err error) {
	parts := strings.Split(text, ":")
	var groups [8]uint64
	for i := 0; i < len(parts) && i < len(groups); i++ {
		if parts[i] == "" {
			continue
		}
		group, err := strconv.ParseUint(parts[i], 16, 16)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid IPv6 group %q in %q", parts[i], text)
		}
		groups[i] = group
	}
	for i := 0; i < 4; i++ {
		high = high<<16 | groups[i]
		low = low<<16 | groups[i+4]
	}
	return high, low, nil
}

func FormatIPv4(value uint32) string {
	return fmt.Sprintf("%d.%d.%d.%d", value>>24, value>>16&0xff, value>>8&0xff, value&0xff)
}

// FormatIPv6 prints eight hex groups and replaces the leftmost run of two or
// more ":0" groups with "::". The replacement is textual, so a run in the
// middle renders as "2001:db8:::1"; callers compare against this exact form.
func FormatIPv6(high, low uint64) string {
	parts := make([]string, 0, 8)
	for i := 0; i < 4; i++ {
		parts = append(parts, strconv.FormatUint(high>>(48-16*i)&0xffff, 16))
	}
	for i := 0; i < 4; i++ {
		parts = append(parts, strconv.FormatUint(low>>(48-16*i)&0xffff, 16))
	}
	return zeroRun.ReplaceAllStringFunc(strings.Join(parts, ":"), collapseOnce())
}

func collapseOnce() func(string) string {
	done := false
	return func(run string) string {
		if done {
			return run
		}
		done = true
		return "::"
	}
}

// MaskIPv4 clears every bit below prefix.
func MaskIPv4(value uint32, prefix int) uint32 {
	if prefix <= 0 {
		return 0
	}
	if prefix >= 32 {
		return value
	}
	return value &^ (1<<(32-prefix) - 1)
}

// MaskIPv6 clears every bit below prefix across both halves.
func MaskIPv6(high, low uint64, prefix int) (uint64, uint64) {
	switch {
	case prefix <= 0:
		return 0, 0
	case prefix < 64:
		return high &^ (1<<(64-prefix) - 1), 0
	case prefix == 64:
		return high, 0
	case prefix < 128:
		return high, low &^ (1<<(128-prefix) - 1)
	default:
		return high, low
	}
}

// ParseCIDR converts configuration text into a network rule. Exactly one of
// the returned rules is non-nil. Bare addresses become host routes. Unlike
// ParseIPv6, "::" is expanded properly here.
func ParseCIDR(text string, action model.Action) (*model.IPv4Rule, *model.IPv6Rule, error) {
	text = strings.TrimSpace(text)
	if !strings.Contains(text, "/") {
		addr, err := netip.ParseAddr(text)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid network %q: %w", text, err)
		}
		text = fmt.Sprintf("%s/%d", text, addr.BitLen())
	}
	prefix, err := netip.ParsePrefix(text)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid network %q: %w", text, err)
	}
	prefix = prefix.Masked()
	addr := prefix.Addr()
	if addr.Is4() {
		b := addr.As4()
		return &model.IPv4Rule{
			Network: binary.BigEndian.Uint32(b[:]),
			Prefix:  prefix.Bits(),
			Action:  action,
		}, nil, nil
	}
	b := addr.As16()
	return nil, &model.IPv6Rule{
		High:   binary.BigEndian.Uint64(b[:8]),
		Low:    binary.BigEndian.Uint64(b[8:]),
		Prefix: prefix.Bits(),
		Action: action,
	}, nil
}

// IPv4RuleString renders a rule as network/prefix.
func IPv4RuleString(rule model.IPv4Rule) string {
	return fmt.Sprintf("%s/%d", FormatIPv4(MaskIPv4(rule.Network, rule.Prefix)), rule.Prefix)
}

func IPv6RuleString(rule model.IPv6Rule) string {
	high, low := MaskIPv6(rule.High, rule.Low, rule.Prefix)
	return fmt.Sprintf("%s/%d", FormatIPv6(high, low), rule.Prefix)
}
