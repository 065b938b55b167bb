package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jbweber/homelab/hutch/internal/datastore"
	"github.com/jbweber/homelab/hutch/internal/metrics"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/scheduler"
	"github.com/jbweber/homelab/hutch/internal/vlan"
	log "github.com/sirupsen/logrus"
)

// API holds repository and scheduler dependencies for the HTTP handlers
type API struct {
	hosts     repository.HostRepository
	clouds    repository.CloudRepository
	schedules repository.ScheduleRepository
	scheduler *scheduler.Scheduler
	allocator *vlan.Allocator
}

// NewAPI creates a new API instance with repositories initialized from the datastore
func NewAPI(ds *datastore.Datastore, allocator *vlan.Allocator) *API {
	hosts := repository.NewHostRepository(ds.DB)
	clouds := repository.NewCloudRepository(ds.DB)
	schedules := repository.NewScheduleRepository(ds.DB)

	return &API{
		hosts:     hosts,
		clouds:    clouds,
		schedules: schedules,
		scheduler: scheduler.New(hosts, clouds, schedules),
		allocator: allocator,
	}
}

// Scheduler exposes the scheduler backing the API.
func (a *API) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// Close releases cached statements.
func (a *API) Close() error {
	return a.schedules.Close()
}

// NewRouter builds a chi router with the standard middleware stack and all routes.
func NewRouter(a *API) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.StandardLogger(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v2", func(r chi.Router) {
		r.Route("/hosts", func(r chi.Router) {
			r.Get("/", a.listHostsHandler)
			r.Post("/", a.createHostHandler)
			r.Post("/refresh", a.refreshHostsHandler)
			r.Get("/{name}", a.getHostHandler)
			r.Delete("/{name}", a.deleteHostHandler)
			r.Get("/{name}/vlans", a.hostVlansHandler)
		})

		r.Route("/clouds", func(r chi.Router) {
			r.Get("/", a.listCloudsHandler)
			r.Post("/", a.createCloudHandler)
			r.Get("/{name}", a.getCloudHandler)
			r.Delete("/{name}", a.deleteCloudHandler)
			r.Get("/{name}/history", a.cloudHistoryHandler)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", a.listSchedulesHandler)
			r.Post("/", a.postScheduleHandler)
			r.Get("/{host}/{index}", a.getScheduleHandler)
			r.Patch("/{host}/{index}", a.updateScheduleHandler)
			r.Delete("/{host}/{index}", a.deleteScheduleHandler)
		})

		r.Get("/current_schedule", a.currentScheduleHandler)
		r.Get("/moves", a.movesHandler)
		r.Post("/moves", a.movesHandler)
	})

	r.Handle("/metrics", metrics.Handler())

	// Health check endpoint
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, http.StatusOK, "hutch is running")
	})
}
