package vlan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/switchconf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQuerier answers from a table keyed by switch address and command.
type stubQuerier struct {
	mu      sync.Mutex
	outputs map[string][]string
	down    map[string]bool
	calls   int
}

func (q *stubQuerier) Query(_ context.Context, address, command string) ([]string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.down[address] {
		return nil, errors.New("connection refused")
	}
	return q.outputs[address+"|"+command], nil
}

func TestVerifier_Verify(t *testing.T) {
	q := &stubQuerier{
		outputs: map[string][]string{
			"10.0.0.1|" + switchconf.VlanMembershipCommand("xe-0/0/1"): {"set vlans vlan1110 interface xe-0/0/1.0"},
			"10.0.0.1|" + switchconf.InterfaceCommand("xe-0/0/2"):      {"members QinQ_vl1111;"},
			"10.0.0.1|" + switchconf.VlanMembershipCommand("xe-0/0/3"): {"set vlans vlan1130 interface xe-0/0/3.0"},
		},
		down: map[string]bool{"10.0.0.9": true},
	}
	v := &Verifier{Allocator: defaultAllocator(), Querier: q, Workers: 2}

	targets := []Target{
		{
			Host: domain.Host{Name: "f01", Interfaces: []domain.Interface{
				{Name: "em1", SwitchIP: "10.0.0.1", Port: "xe-0/0/1"},
				{Name: "em2", SwitchIP: "10.0.0.1", Port: "xe-0/0/2"},
			}},
			Cloud: domain.Cloud{Name: "cloud02"},
		},
		{
			Host: domain.Host{Name: "f02", Interfaces: []domain.Interface{
				{Name: "em1", SwitchIP: "10.0.0.1", Port: "xe-0/0/3"},
				{Name: "em2", SwitchIP: "10.0.0.9", Port: "xe-0/0/4"},
			}},
			Cloud: domain.Cloud{Name: "cloud03"},
		},
	}

	results, err := v.Verify(context.Background(), targets)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, 4, q.calls)

	assert.Equal(t, "f01", results[0].Host)
	assert.True(t, results[0].Match(), "f01 em1")
	assert.True(t, results[1].Match(), "f01 em2")

	assert.Equal(t, "f02", results[2].Host)
	assert.False(t, results[2].Match(), "f02 em1 is on the wrong vlan")
	assert.Equal(t, 1120, results[2].Expected)
	assert.Equal(t, 1130, results[2].Actual)

	assert.Error(t, results[3].Err, "unreachable switch is reported per interface")
	assert.False(t, results[3].Match())
}

func TestVerifier_Unparseable(t *testing.T) {
	q := &stubQuerier{outputs: map[string][]string{}}
	v := &Verifier{Allocator: defaultAllocator(), Querier: q}

	results, err := v.Verify(context.Background(), []Target{{
		Host:  domain.Host{Name: "f01", Interfaces: []domain.Interface{{Name: "em1", SwitchIP: "10.0.0.1", Port: "xe-0/0/1"}}},
		Cloud: domain.Cloud{Name: "cloud02"},
	}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, switchconf.ErrUnparseable)
}

func TestVerifier_BadHostsIsolated(t *testing.T) {
	q := &stubQuerier{
		outputs: map[string][]string{
			"10.0.0.1|" + switchconf.VlanMembershipCommand("xe-0/0/1"): {"set vlans vlan1110 interface xe-0/0/1.0"},
			"10.0.0.1|" + switchconf.InterfaceCommand("xe-0/0/2"):      {"members QinQ_vl1111;"},
		},
	}
	v := &Verifier{Allocator: &Allocator{First: 1100, Offsets: []int{0, 1}}, Querier: q}

	nics := func(n int) []domain.Interface {
		var out []domain.Interface
		for i := 1; i <= n; i++ {
			out = append(out, domain.Interface{Name: fmt.Sprintf("em%d", i), SwitchIP: "10.0.0.9", Port: fmt.Sprintf("xe-0/1/%d", i)})
		}
		return out
	}

	results, err := v.Verify(context.Background(), []Target{
		{
			Host: domain.Host{Name: "f01", Interfaces: []domain.Interface{
				{Name: "em1", SwitchIP: "10.0.0.1", Port: "xe-0/0/1"},
				{Name: "em2", SwitchIP: "10.0.0.1", Port: "xe-0/0/2"},
			}},
			Cloud: domain.Cloud{Name: "cloud02"},
		},
		{Host: domain.Host{Name: "f02", Interfaces: nics(3)}, Cloud: domain.Cloud{Name: "cloud02"}},
		{Host: domain.Host{Name: "f03", Interfaces: nics(1)}, Cloud: domain.Cloud{Name: "broken"}},
		{Host: domain.Host{Name: "f04", Interfaces: nics(1)}, Err: errors.New("overlapping reservations found")},
	})
	require.NoError(t, err)
	require.Len(t, results, 5)
	assert.Equal(t, 2, q.calls, "only the good host reaches the switch")

	assert.True(t, results[0].Match(), "f01 em1")
	assert.True(t, results[1].Match(), "f01 em2")
	for _, r := range results[2:] {
		assert.Error(t, r.Err, r.Host)
		assert.False(t, r.Match(), r.Host)
	}
	assert.Equal(t, []string{"f02", "f03", "f04"}, []string{results[2].Host, results[3].Host, results[4].Host})
}
