package api

import (
	"net/http"

	"github.com/jbweber/homelab/hutch/internal/domain"
)

// MovesResponse lists the hosts changing cloud at the requested date
type MovesResponse struct {
	Result []domain.Move `json:"result"`
}

// movesHandler handles GET and POST /api/v2/moves. The date comes from the
// query string or, for POST, from the JSON body, and defaults to now.
func (a *API) movesHandler(w http.ResponseWriter, r *http.Request) {
	req := MovesRequest{Date: r.URL.Query().Get("date")}
	if r.Method == http.MethodPost && r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, "")
			return
		}
	}

	target, err := req.Target(a.scheduler.Now())
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	moves, err := a.scheduler.ComputeMoves(r.Context(), target)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, MovesResponse{Result: moves})
}
