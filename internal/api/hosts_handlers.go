package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/vlan"
)

// HostVlansResponse lists the expected VLAN of every interface of a host
type HostVlansResponse struct {
	Host       string            `json:"host"`
	Cloud      string            `json:"cloud"`
	Interfaces []vlan.Assignment `json:"interfaces"`
}

// listHostsHandler handles GET /api/v2/hosts, optionally filtered by ?cloud=.
// The cloud filter uses the cached owner.
func (a *API) listHostsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		hosts []domain.Host
		err   error
	)
	if cloud := r.URL.Query().Get("cloud"); cloud != "" {
		hosts, err = a.hosts.FindByCloud(r.Context(), cloud)
	} else {
		hosts, err = a.hosts.FindAll(r.Context())
	}
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if len(hosts) == 0 {
		writeResult(w, http.StatusOK, "Nothing to do.")
		return
	}
	writeJSON(w, http.StatusOK, hosts)
}

func (a *API) getHostHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	host, err := a.hosts.FindByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("host %s Not Found", name))
		return
	}
	writeJSON(w, http.StatusOK, host)
}

// createHostHandler handles POST /api/v2/hosts.
//
// An existing host is a conflict unless force is set, in which case it is replaced.
// The cached cloud of a replaced host is kept unless the request names one.
func (a *API) createHostHandler(w http.ResponseWriter, r *http.Request) {
	var req HostRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "")
		return
	}
	host, err := req.Host()
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	existing, err := a.hosts.FindByName(r.Context(), host.Name)
	switch {
	case err == nil && !req.Force:
		writeResult(w, http.StatusConflict, fmt.Sprintf("host %s already exists", host.Name))
		return
	case err == nil:
		host.ID = existing.ID
		if host.Cloud == "" {
			host.Cloud = existing.Cloud
		}
		if _, err := a.hosts.Save(r.Context(), host); err != nil {
			writeError(w, r, err, "")
			return
		}
		writeResult(w, http.StatusOK, fmt.Sprintf("Updated host %s", host.Name))
		return
	case !errors.Is(err, repository.ErrNotFound):
		writeError(w, r, err, "")
		return
	}

	if _, err := a.hosts.Save(r.Context(), host); err != nil {
		writeError(w, r, err, fmt.Sprintf("host %s already exists", host.Name))
		return
	}
	writeResult(w, http.StatusCreated, fmt.Sprintf("Created host %s", host.Name))
}

func (a *API) deleteHostHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.hosts.DeleteByName(r.Context(), name); err != nil {
		writeError(w, r, err, fmt.Sprintf("host %s Not Found", name))
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// hostVlansHandler handles GET /api/v2/hosts/{name}/vlans using the cloud that
// owns the host right now.
func (a *API) hostVlansHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	host, err := a.hosts.FindByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("host %s Not Found", name))
		return
	}

	cloud, err := a.scheduler.OwningCloud(r.Context(), name, a.scheduler.Now())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	assignments, err := a.allocator.HostVlans(host, cloud)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, HostVlansResponse{
		Host:       host.Name,
		Cloud:      cloud.Name,
		Interfaces: assignments,
	})
}

// refreshHostsHandler handles POST /api/v2/hosts/refresh
func (a *API) refreshHostsHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.scheduler.RefreshOwners(r.Context()); err != nil {
		writeError(w, r, err, "")
		return
	}
	writeResult(w, http.StatusOK, "Refreshed host owners")
}
