package vlan

import (
	"context"
	"sort"
	"sync"

	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/switchconf"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultVerifyWorkers = 4

// Target is a host together with the cloud that currently owns it. Err records
// a failure to resolve the owner; the host is then reported without querying.
type Target struct {
	Host  domain.Host
	Cloud domain.Cloud
	Err   error
}

// Result compares the expected VLAN of one interface with the switch.
type Result struct {
	Host      string `json:"host"`
	Cloud     string `json:"cloud"`
	Interface string `json:"interface"`
	SwitchIP  string `json:"switch_ip"`
	Port      string `json:"port"`
	Expected  int    `json:"expected"`
	Actual    int    `json:"actual"`
	Err       error  `json:"-"`
}

// Match reports whether the switch agrees with the allocator.
func (r Result) Match() bool {
	return r.Err == nil && r.Expected == r.Actual
}

// Verifier cross-checks switch port membership against the Allocator.
type Verifier struct {
	Allocator *Allocator
	Querier   switchconf.Querier
	Workers   int
}

// Verify queries every interface of every target. Owner, allocation and switch
// failures are recorded on the affected result and never stop the other hosts.
func (v *Verifier) Verify(ctx context.Context, targets []Target) ([]Result, error) {
	var (
		mu      sync.Mutex
		results []Result
	)

	type job struct {
		target     Target
		assignment Assignment
	}
	var jobs []job
	for _, target := range targets {
		err := target.Err
		var assignments []Assignment
		if err == nil {
			assignments, err = v.Allocator.HostVlans(target.Host, target.Cloud)
		}
		if err != nil {
			log.WithFields(log.Fields{
				"host":  target.Host.Name,
				"cloud": target.Cloud.Name,
				"error": err,
			}).Error("cannot compute expected vlans")
			results = append(results, Result{Host: target.Host.Name, Cloud: target.Cloud.Name, Err: err})
			continue
		}
		for _, a := range assignments {
			jobs = append(jobs, job{target: target, assignment: a})
		}
	}

	workers := v.Workers
	if workers <= 0 {
		workers = defaultVerifyWorkers
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, j := range jobs {
		g.Go(func() error {
			r := v.check(gctx, j.target, j.assignment)
			mu.Lock()
			results = append(results, r)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortResults(results)
	return results, nil
}

func (v *Verifier) check(ctx context.Context, target Target, a Assignment) Result {
	r := Result{
		Host:      target.Host.Name,
		Cloud:     target.Cloud.Name,
		Interface: a.Interface,
		SwitchIP:  a.SwitchIP,
		Port:      a.Port,
		Expected:  a.Vlan,
	}

	command, parse := switchconf.VlanMembershipCommand(a.Port), switchconf.ParseVlanMembership
	if a.Last {
		command, parse = switchconf.InterfaceCommand(a.Port), switchconf.ParseInterfaceVlan
	}

	lines, err := v.Querier.Query(ctx, a.SwitchIP, command)
	if err != nil {
		log.WithFields(log.Fields{
			"host":   r.Host,
			"switch": r.SwitchIP,
			"port":   r.Port,
			"error":  err,
		}).Error("switch query failed")
		r.Err = err
		return r
	}

	actual, err := parse(lines)
	if err != nil {
		log.WithFields(log.Fields{
			"host":      r.Host,
			"interface": r.Interface,
			"switch":    r.SwitchIP,
			"port":      r.Port,
		}).Warn("could not determine the vlan member")
		r.Err = err
		return r
	}
	r.Actual = actual
	return r
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Host != results[j].Host {
			return results[i].Host < results[j].Host
		}
		return results[i].Interface < results[j].Interface
	})
}
