package switchconf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnparseable is returned when switch output carries no VLAN membership.
var ErrUnparseable = errors.New("could not determine vlan membership")

// Querier runs a read-only command on the switch at address and returns its output lines.
type Querier interface {
	Query(ctx context.Context, address, command string) ([]string, error)
}

// InterfaceCommand shows the configuration of a single port. Used for the last
// interface of a host, which carries the cloud's static or QinQ VLAN.
func InterfaceCommand(port string) string {
	return "show configuration interfaces " + port
}

// VlanMembershipCommand lists the vlan stanzas referencing the port's unit 0.
func VlanMembershipCommand(port string) string {
	return fmt.Sprintf("show configuration vlans | display set | match %s.0", port)
}

// qinqPrefix marks a QinQ vlan name ("QinQ_vl1150").
const qinqPrefix = "QinQ_vl"

// ParseInterfaceVlan reads the VLAN from InterfaceCommand output, whose first
// statement names the vlan member ("vlan-id 1150;" or "members QinQ_vl1150;").
func ParseInterfaceVlan(lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, ErrUnparseable
	}
	stmt, _, _ := strings.Cut(lines[0], ";")
	fields := strings.Fields(stmt)
	if len(fields) < 2 {
		return 0, fmt.Errorf("%q: %w", lines[0], ErrUnparseable)
	}
	member := strings.TrimPrefix(fields[1], qinqPrefix)
	return parseVlan(member, lines[0])
}

// ParseVlanMembership reads the VLAN from VlanMembershipCommand output
// ("set vlans vlan1101 interface xe-0/0/1.0").
func ParseVlanMembership(lines []string) (int, error) {
	if len(lines) == 0 {
		return 0, ErrUnparseable
	}
	fields := strings.Fields(lines[0])
	if len(fields) < 3 || !strings.HasPrefix(fields[2], "vlan") {
		return 0, fmt.Errorf("%q: %w", lines[0], ErrUnparseable)
	}
	member := strings.TrimRight(strings.TrimPrefix(fields[2], "vlan"), ",")
	return parseVlan(member, lines[0])
}

func parseVlan(member, line string) (int, error) {
	id, err := strconv.Atoi(member)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", line, ErrUnparseable)
	}
	return id, nil
}

// splitLines drops the trailing newline and blank lines of command output.
func splitLines(out string) []string {
	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
