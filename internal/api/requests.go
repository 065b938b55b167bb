package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/jbweber/homelab/hutch/internal/domain"
	"github.com/jbweber/homelab/hutch/internal/repository"
	"github.com/jbweber/homelab/hutch/internal/scheduler"
)

const (
	// timeFormat is used for reservation bounds and move dates
	timeFormat = "2006-01-02 15:04"
	// filterFormat is used for schedule date filters
	filterFormat = "2006-01-02T15:04:05"
)

// ValidationError collects every problem found in one request
type ValidationError struct {
	errs *multierror.Error
}

func (e *ValidationError) Error() string {
	problems := make([]string, 0, len(e.errs.Errors))
	for _, err := range e.errs.Errors {
		problems = append(problems, err.Error())
	}
	return "Data validation failed: " + strings.Join(problems, ", ")
}

// Is lets callers treat a ValidationError as repository.ErrInvalidEntity.
func (e *ValidationError) Is(target error) bool {
	return target == repository.ErrInvalidEntity
}

// checker accumulates field problems.
type checker struct {
	errs *multierror.Error
}

func (c *checker) add(format string, args ...any) {
	c.errs = multierror.Append(c.errs, fmt.Errorf(format, args...))
}

func (c *checker) required(name, value string) {
	if value == "" {
		c.add("Missing required parameter: %s", name)
	}
}

// parseTime returns the zero time when value is empty or invalid; invalid values are recorded.
func (c *checker) parseTime(name, layout, value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(layout, value)
	if err != nil {
		c.add("Could not parse %s parameter", name)
		return time.Time{}
	}
	return t
}

func (c *checker) err() error {
	if c.errs == nil {
		return nil
	}
	return &ValidationError{errs: c.errs}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		c := checker{}
		c.add("Invalid JSON")
		return c.err()
	}
	return nil
}

// HostRequest creates a host, or replaces it when Force is set
type HostRequest struct {
	Name       string             `json:"name"`
	HostType   string             `json:"host_type"`
	Cloud      string             `json:"cloud"`
	Interfaces []domain.Interface `json:"interfaces"`
	Force      bool               `json:"force"`
}

// Host validates the request and returns the host it describes.
func (req HostRequest) Host() (domain.Host, error) {
	c := checker{}
	c.required("name", req.Name)
	for i, iface := range req.Interfaces {
		c.required(fmt.Sprintf("interfaces[%d].name", i), iface.Name)
	}
	if err := c.err(); err != nil {
		return domain.Host{}, err
	}
	return domain.Host{
		Name:       req.Name,
		HostType:   req.HostType,
		Cloud:      req.Cloud,
		Interfaces: req.Interfaces,
	}, nil
}

// CloudRequest creates a cloud, or replaces it when Force is set
type CloudRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Owner       string   `json:"owner"`
	Ticket      string   `json:"ticket"`
	CCUsers     []string `json:"ccuser"`
	QinQ        bool     `json:"qinq"`
	Wipe        bool     `json:"wipe"`
	Vlan        *int     `json:"vlan"`
	Force       bool     `json:"force"`
}

// Cloud validates the request and returns the cloud it describes.
func (req CloudRequest) Cloud() (domain.Cloud, error) {
	c := checker{}
	c.required("name", req.Name)
	if req.Name != "" {
		if _, err := domain.CloudIndex(req.Name); err != nil {
			c.add("%v", err)
		}
	}
	if req.Vlan != nil && (*req.Vlan < 1 || *req.Vlan > 4095) {
		c.add("vlan must be between 1 and 4095")
	}
	if err := c.err(); err != nil {
		return domain.Cloud{}, err
	}
	return domain.Cloud{
		Name:        req.Name,
		Description: req.Description,
		Owner:       req.Owner,
		Ticket:      req.Ticket,
		CCUsers:     req.CCUsers,
		QinQ:        req.QinQ,
		Wipe:        req.Wipe,
		VlanID:      req.Vlan,
	}, nil
}

// ScheduleRequest creates a reservation. With Index set it updates that
// reservation of Host instead.
type ScheduleRequest struct {
	Index *int64 `json:"index,omitempty"`
	Host  string `json:"host"`
	Cloud string `json:"cloud"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Create validates a create request.
func (req ScheduleRequest) Create() (scheduler.CreateRequest, error) {
	c := checker{}
	c.required("host", req.Host)
	c.required("cloud", req.Cloud)
	c.required("start", req.Start)
	c.required("end", req.End)
	start := c.parseTime("start", timeFormat, req.Start)
	end := c.parseTime("end", timeFormat, req.End)
	if err := c.err(); err != nil {
		return scheduler.CreateRequest{}, err
	}
	return scheduler.CreateRequest{Host: req.Host, Cloud: req.Cloud, Start: start, End: end}, nil
}

// Update validates an update request; unset fields keep their stored values.
func (req ScheduleRequest) Update() (scheduler.UpdateRequest, error) {
	c := checker{}
	c.required("host", req.Host)
	if req.Index == nil {
		c.add("Missing required parameter: index")
	}
	update := ScheduleUpdateRequest{Start: optional(req.Start), End: optional(req.End), Cloud: optional(req.Cloud)}
	out := update.parse(&c)
	if err := c.err(); err != nil {
		return scheduler.UpdateRequest{}, err
	}
	out.Host = req.Host
	out.Index = *req.Index
	return out, nil
}

// ScheduleUpdateRequest is the body of PATCH /schedules/{host}/{index}
type ScheduleUpdateRequest struct {
	Cloud *string `json:"cloud,omitempty"`
	Start *string `json:"start,omitempty"`
	End   *string `json:"end,omitempty"`
}

// Update validates the body against the reservation identified by host and index.
func (req ScheduleUpdateRequest) Update(host string, index int64) (scheduler.UpdateRequest, error) {
	c := checker{}
	out := req.parse(&c)
	if err := c.err(); err != nil {
		return scheduler.UpdateRequest{}, err
	}
	out.Host = host
	out.Index = index
	return out, nil
}

func (req ScheduleUpdateRequest) parse(c *checker) scheduler.UpdateRequest {
	var out scheduler.UpdateRequest
	if req.Cloud != nil {
		c.required("cloud", *req.Cloud)
		out.Cloud = req.Cloud
	}
	if req.Start != nil {
		if t := c.parseTime("start", timeFormat, *req.Start); !t.IsZero() {
			out.Start = &t
		} else if *req.Start == "" {
			c.required("start", "")
		}
	}
	if req.End != nil {
		if t := c.parseTime("end", timeFormat, *req.End); !t.IsZero() {
			out.End = &t
		} else if *req.End == "" {
			c.required("end", "")
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// MovesRequest asks for the move plan at Date, defaulting to now
type MovesRequest struct {
	Date string `json:"date"`
}

// Target returns the requested date, or now when none was given.
func (req MovesRequest) Target(now time.Time) (time.Time, error) {
	if req.Date == "" {
		return now, nil
	}
	c := checker{}
	t := c.parseTime("date", timeFormat, req.Date)
	if err := c.err(); err != nil {
		return time.Time{}, err
	}
	return t, nil
}
