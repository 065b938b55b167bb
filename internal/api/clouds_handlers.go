package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
)

func (a *API) listCloudsHandler(w http.ResponseWriter, r *http.Request) {
	var (
		clouds []domain.Cloud
		err    error
	)
	if owner := r.URL.Query().Get("owner"); owner != "" {
		clouds, err = a.clouds.FindByOwner(r.Context(), owner)
	} else {
		clouds, err = a.clouds.FindAll(r.Context())
	}
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if len(clouds) == 0 {
		writeResult(w, http.StatusOK, "No results.")
		return
	}
	writeJSON(w, http.StatusOK, clouds)
}

func (a *API) getCloudHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cloud, err := a.clouds.FindByName(r.Context(), name)
	if err != nil {
		writeError(w, r, err, fmt.Sprintf("Cloud %s Not Found", name))
		return
	}
	writeJSON(w, http.StatusOK, cloud)
}

// createCloudHandler handles POST /api/v2/clouds. Every create or forced update
// records a history entry.
func (a *API) createCloudHandler(w http.ResponseWriter, r *http.Request) {
	var req CloudRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "")
		return
	}
	cloud, err := req.Cloud()
	if err != nil {
		writeError(w, r, err, "")
		return
	}

	existing, err := a.clouds.FindByName(r.Context(), cloud.Name)
	switch {
	case err == nil && !req.Force:
		writeResult(w, http.StatusConflict, fmt.Sprintf("cloud %s already exists", cloud.Name))
		return
	case err == nil:
		cloud.ID = existing.ID
		if _, err := a.clouds.Save(r.Context(), cloud); err != nil {
			writeError(w, r, err, "")
			return
		}
		writeResult(w, http.StatusOK, fmt.Sprintf("Updated cloud %s", cloud.Name))
		return
	case !errors.Is(err, repository.ErrNotFound):
		writeError(w, r, err, "")
		return
	}

	if _, err := a.clouds.Save(r.Context(), cloud); err != nil {
		writeError(w, r, err, fmt.Sprintf("cloud %s already exists", cloud.Name))
		return
	}
	writeResult(w, http.StatusCreated, fmt.Sprintf("Created cloud %s", cloud.Name))
}

// deleteCloudHandler handles DELETE /api/v2/clouds/{name}. Clouds still
// referenced by reservations are a conflict.
func (a *API) deleteCloudHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := a.clouds.DeleteByName(r.Context(), name); err != nil {
		message := fmt.Sprintf("Cloud %s Not Found", name)
		if errors.Is(err, repository.ErrInUse) {
			message = fmt.Sprintf("Cloud %s still has schedules", name)
		}
		writeError(w, r, err, message)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (a *API) cloudHistoryHandler(w http.ResponseWriter, r *http.Request) {
	history, err := a.clouds.History(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if len(history) == 0 {
		writeResult(w, http.StatusOK, "No results.")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
