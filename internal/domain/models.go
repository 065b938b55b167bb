package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultCloud is the implicit owner of any host with no active reservation.
const DefaultCloud = "cloud01"

// cloudPrefix is the fixed prefix of every cloud name; the remainder is its numeric index.
const cloudPrefix = "cloud"

// Interface represents a network interface on a host
type Interface struct {
	Name     string `json:"name"`      // Interface name (e.g., "em1")
	MAC      string `json:"mac"`       // MAC address
	SwitchIP string `json:"switch_ip"` // Management address of the switch the port lives on
	Port     string `json:"port"`      // Switch port (e.g., "xe-0/0/1")
}

// Host represents a physical machine in the lab
type Host struct {
	ID         int64       `json:"-"`
	Name       string      `json:"name"`
	HostType   string      `json:"host_type,omitempty"`
	Cloud      string      `json:"cloud"` // Cached current owner, see scheduler.RefreshOwner
	Interfaces []Interface `json:"interfaces"`
}

// Cloud represents a tenant allocation of hosts
type Cloud struct {
	ID          int64    `json:"-"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Ticket      string   `json:"ticket"`
	CCUsers     []string `json:"ccuser"`
	QinQ        bool     `json:"qinq"`
	Wipe        bool     `json:"wipe"`
	VlanID      *int     `json:"vlan,omitempty"` // Static VLAN for the last interface
}

// Index returns the numeric suffix of the cloud name ("cloud02" -> 2).
func (c Cloud) Index() (int, error) {
	return CloudIndex(c.Name)
}

// CloudIndex parses the numeric suffix of a cloud name.
func CloudIndex(name string) (int, error) {
	if !strings.HasPrefix(name, cloudPrefix) || len(name) == len(cloudPrefix) {
		return 0, fmt.Errorf("malformed cloud name %q", name)
	}
	n, err := strconv.Atoi(name[len(cloudPrefix):])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("malformed cloud name %q", name)
	}
	return n, nil
}

// CloudHistory is an append-only snapshot of a cloud taken on every write
type CloudHistory struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	Ticket      string    `json:"ticket"`
	CCUsers     []string  `json:"ccuser"`
	QinQ        bool      `json:"qinq"`
	Wipe        bool      `json:"wipe"`
	VlanID      *int      `json:"vlan,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// HistoryOf snapshots a cloud.
func HistoryOf(c Cloud, at time.Time) CloudHistory {
	return CloudHistory{
		Name:        c.Name,
		Description: c.Description,
		Owner:       c.Owner,
		Ticket:      c.Ticket,
		CCUsers:     append([]string(nil), c.CCUsers...),
		QinQ:        c.QinQ,
		Wipe:        c.Wipe,
		VlanID:      c.VlanID,
		RecordedAt:  at,
	}
}

// Reservation assigns a host to a cloud during the half-open interval [Start, End)
type Reservation struct {
	ID    int64     `json:"-"`
	Index int64     `json:"index"` // Per-host identifier used for update/delete
	Host  string    `json:"host"`
	Cloud string    `json:"cloud"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether the reservation intersects [start, end).
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.Start.Before(end) && start.Before(r.End)
}

// ActiveAt reports whether at falls within [Start, End).
func (r Reservation) ActiveAt(at time.Time) bool {
	return !at.Before(r.Start) && at.Before(r.End)
}

// Move is a host whose owning cloud differs between now and a target date
type Move struct {
	Host    string `json:"host"`
	Current string `json:"current"`
	New     string `json:"new"`
}
