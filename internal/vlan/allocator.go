package vlan

import (
	"fmt"

	"github.com/jbweber/homelab/hutch/internal/config"
	"github.com/jbweber/homelab/hutch/internal/domain"
)

// cloudStride is the number of VLAN ids reserved per cloud index.
const cloudStride = 10

// Allocator maps a cloud and a NIC position to a VLAN id. It performs no I/O.
type Allocator struct {
	First   int   // First VLAN id handed out (cloud index 1, first NIC)
	Offsets []int // Offset per NIC ordinal, in order
}

// NewAllocator builds an Allocator from configuration.
func NewAllocator(cfg *config.Config) *Allocator {
	return &Allocator{
		First:   cfg.VlanFirst,
		Offsets: cfg.OffsetTable(),
	}
}

// AllocateVlan returns the VLAN for the NIC at ordinal. The cloud's static VLAN
// applies to the last NIC only, and QinQ clouds share the first offset on all others.
func (a *Allocator) AllocateVlan(cloud domain.Cloud, ordinal int, isLast bool) (int, error) {
	if cloud.VlanID != nil && isLast {
		return *cloud.VlanID, nil
	}

	index, err := cloud.Index()
	if err != nil {
		return 0, err
	}
	base := (a.First - cloudStride) + index*cloudStride

	if cloud.QinQ {
		ordinal = 0
	}
	if ordinal < 0 || ordinal >= len(a.Offsets) {
		return 0, fmt.Errorf("no vlan offset for interface %d of cloud %s", ordinal, cloud.Name)
	}
	return base + a.Offsets[ordinal], nil
}

// Assignment is the expected VLAN of one host interface.
type Assignment struct {
	Interface string `json:"interface"`
	SwitchIP  string `json:"switch_ip"`
	Port      string `json:"port"`
	Vlan      int    `json:"vlan"`
	Last      bool   `json:"-"`
}

// HostVlans returns the expected VLAN of every interface of host in cloud.
func (a *Allocator) HostVlans(host domain.Host, cloud domain.Cloud) ([]Assignment, error) {
	out := make([]Assignment, 0, len(host.Interfaces))
	for i, iface := range host.Interfaces {
		last := i == len(host.Interfaces)-1
		id, err := a.AllocateVlan(cloud, i, last)
		if err != nil {
			return nil, fmt.Errorf("host %s interface %s: %w", host.Name, iface.Name, err)
		}
		out = append(out, Assignment{
			Interface: iface.Name,
			SwitchIP:  iface.SwitchIP,
			Port:      iface.Port,
			Vlan:      id,
			Last:      last,
		})
	}
	return out, nil
}
