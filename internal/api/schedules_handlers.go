package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/scheduler"
)

const unavailableMessage = "Host is not available during that time frame"

// scheduleFilter holds the optional query parameters shared by the schedule reads
type scheduleFilter struct {
	host  string
	cloud string
	date  time.Time
}

func parseScheduleFilter(r *http.Request) (scheduleFilter, error) {
	q := r.URL.Query()
	c := checker{}
	f := scheduleFilter{
		host:  q.Get("host"),
		cloud: q.Get("cloud"),
		date:  c.parseTime("date", filterFormat, q.Get("date")),
	}
	return f, c.err()
}

// list returns the reservations matching the host and cloud filters.
func (a *API) list(ctx context.Context, f scheduleFilter) ([]domain.Reservation, error) {
	var (
		reservations []domain.Reservation
		err          error
	)
	switch {
	case f.host != "":
		reservations, err = a.schedules.FindByHost(ctx, f.host)
	case f.cloud != "":
		reservations, err = a.schedules.FindByCloud(ctx, f.cloud)
	default:
		reservations, err = a.schedules.FindAll(ctx)
	}
	if err != nil {
		return nil, err
	}

	out := []domain.Reservation{}
	for _, res := range reservations {
		if f.cloud != "" && res.Cloud != f.cloud {
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// listSchedulesHandler handles GET /api/v2/schedules?host=&cloud=&date=.
// With a date only the reservations active at that instant are returned.
func (a *API) listSchedulesHandler(w http.ResponseWriter, r *http.Request) {
	f, err := parseScheduleFilter(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	reservations, err := a.list(r.Context(), f)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if !f.date.IsZero() {
		active := []domain.Reservation{}
		for _, res := range reservations {
			if res.ActiveAt(f.date) {
				active = append(active, res)
			}
		}
		reservations = active
	}
	writeJSON(w, http.StatusOK, reservations)
}

// currentScheduleHandler handles GET /api/v2/current_schedule?host=&cloud=&date=.
// The date defaults to now.
func (a *API) currentScheduleHandler(w http.ResponseWriter, r *http.Request) {
	f, err := parseScheduleFilter(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	at := f.date
	if at.IsZero() {
		at = a.scheduler.Now()
	}

	var current []domain.Reservation
	switch {
	case f.host != "":
		res, err := a.scheduler.CurrentSchedule(r.Context(), f.host, at)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		if res != nil && (f.cloud == "" || res.Cloud == f.cloud) {
			current = append(current, *res)
		}
	case f.cloud != "":
		current, err = a.scheduler.CurrentScheduleForCloud(r.Context(), f.cloud, at)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
	default:
		current, err = a.scheduler.CurrentSchedules(r.Context(), at)
		if err != nil {
			writeError(w, r, err, "")
			return
		}
	}

	if len(current) == 0 {
		writeResult(w, http.StatusOK, "No results.")
		return
	}
	writeJSON(w, http.StatusOK, current)
}

// postScheduleHandler handles POST /api/v2/schedules. A body carrying an index
// updates that reservation instead of creating one.
func (a *API) postScheduleHandler(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "")
		return
	}

	if req.Index != nil {
		update, err := req.Update()
		if err != nil {
			writeError(w, r, err, "")
			return
		}
		a.applyUpdate(w, r, update)
		return
	}

	create, err := req.Create()
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if _, err := a.scheduler.Create(r.Context(), create); err != nil {
		writeError(w, r, err, scheduleMessage(err, fmt.Sprintf("Host %s or cloud %s Not Found", create.Host, create.Cloud)))
		return
	}
	writeResult(w, http.StatusCreated, fmt.Sprintf("Added schedule for %s on %s", create.Host, create.Cloud))
}

func (a *API) getScheduleHandler(w http.ResponseWriter, r *http.Request) {
	host, index, err := scheduleKey(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	res, err := a.schedules.FindByHostAndIndex(r.Context(), host, index)
	if err != nil {
		writeError(w, r, err, "schedule Not Found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// updateScheduleHandler handles PATCH /api/v2/schedules/{host}/{index}
func (a *API) updateScheduleHandler(w http.ResponseWriter, r *http.Request) {
	host, index, err := scheduleKey(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	var req ScheduleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, "")
		return
	}
	update, err := req.Update(host, index)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	a.applyUpdate(w, r, update)
}

func (a *API) applyUpdate(w http.ResponseWriter, r *http.Request, update scheduler.UpdateRequest) {
	if _, err := a.scheduler.Update(r.Context(), update); err != nil {
		notFound := "schedule Not Found"
		if errors.Is(err, scheduler.ErrUnknownCloud) {
			notFound = fmt.Sprintf("Cloud %s Not Found", *update.Cloud)
		}
		writeError(w, r, err, scheduleMessage(err, notFound))
		return
	}
	writeResult(w, http.StatusOK, fmt.Sprintf("Updated schedule %d", update.Index))
}

// deleteScheduleHandler handles DELETE /api/v2/schedules/{host}/{index}
func (a *API) deleteScheduleHandler(w http.ResponseWriter, r *http.Request) {
	host, index, err := scheduleKey(r)
	if err != nil {
		writeError(w, r, err, "")
		return
	}
	if err := a.scheduler.Delete(r.Context(), host, index); err != nil {
		writeError(w, r, err, "schedule Not Found")
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func scheduleKey(r *http.Request) (string, int64, error) {
	index, err := strconv.ParseInt(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		c := checker{}
		c.add("Could not parse index parameter")
		return "", 0, c.err()
	}
	return chi.URLParam(r, "host"), index, nil
}

// scheduleMessage picks the user-facing message for a failed reservation write.
func scheduleMessage(err error, notFound string) string {
	switch statusFor(err) {
	case http.StatusConflict:
		return unavailableMessage
	case http.StatusNotFound:
		return notFound
	}
	return ""
}
