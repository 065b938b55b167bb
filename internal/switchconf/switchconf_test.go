package switchconf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommands(t *testing.T) {
	assert.Equal(t, "show configuration interfaces xe-0/0/1", InterfaceCommand("xe-0/0/1"))
	assert.Equal(t, "show configuration vlans | display set | match xe-0/0/1.0", VlanMembershipCommand("xe-0/0/1"))
}

func TestParseInterfaceVlan(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  int
	}{
		{"plain", []string{"vlan-id 1150;", "native-vlan-id 1;"}, 1150},
		{"qinq", []string{"members QinQ_vl1101;"}, 1101},
		{"no semicolon", []string{"members 1210"}, 1210},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInterfaceVlan(tt.lines)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInterfaceVlan_Unparseable(t *testing.T) {
	for _, lines := range [][]string{nil, {"disable;"}, {"members trunk;"}} {
		_, err := ParseInterfaceVlan(lines)
		assert.ErrorIs(t, err, ErrUnparseable, "lines %q", lines)
	}
}

func TestParseVlanMembership(t *testing.T) {
	got, err := ParseVlanMembership([]string{"set vlans vlan1101 interface xe-0/0/1.0"})
	require.NoError(t, err)
	assert.Equal(t, 1101, got)

	got, err = ParseVlanMembership([]string{"set vlans vlan1102, interface xe-0/0/2.0"})
	require.NoError(t, err)
	assert.Equal(t, 1102, got)

	for _, lines := range [][]string{nil, {"set vlans"}, {"set vlans default interface xe-0/0/1.0"}} {
		_, err := ParseVlanMembership(lines)
		assert.ErrorIs(t, err, ErrUnparseable, "lines %q", lines)
	}
}

func TestSplitLines(t *testing.T) {
	assert.Equal(t, []string{"a;", "b;"}, splitLines("a;\n\n  b;  \n"))
	assert.Nil(t, splitLines("\n"))
}
