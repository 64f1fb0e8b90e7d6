// Package immunize is the HTTP client for the upstream immunization API -
// the system of record for country calendars and per-child vaccine records.
// Responses are returned in raw form (timestamps as json.RawMessage, calendar
// envelopes as-is); shaping and normalization happen in the service layer.
package immunize

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/util"
)

type IImmunize interface {
	// GetSchedules returns the full country calendar listing in whatever
	// envelope the upstream currently uses.
	GetSchedules(ctx context.Context) (json.RawMessage, error)

	// GetScheduleByCountry returns a single country's calendar, raw.
	GetScheduleByCountry(ctx context.Context, country string) (json.RawMessage, error)

	// GetVaccines returns the child's record snapshot plus the child metadata
	// that rides along on that response (birth date, assigned country,
	// needs-country flag).
	GetVaccines(ctx context.Context, childID string) (*RawRecordsResponse, error)

	CreateVaccine(ctx context.Context, childID string, payload *VaccinePayload) (*RawVaccineRecord, error)
	UpdateVaccine(ctx context.Context, childID, recordID string, payload *VaccinePayload) (*RawVaccineRecord, error)
	DeleteVaccine(ctx context.Context, childID, recordID string) error

	// AssignSchedule binds a child to a country calendar.
	AssignSchedule(ctx context.Context, childID, country string) error
}

// RawVaccineRecord mirrors the upstream record shape. Date fields are left
// raw on purpose: the upstream emits at least four incompatible timestamp
// encodings and dates.NormalizeJSON is the single place they get decoded.
type RawVaccineRecord struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Status        string          `json:"status"`
	ScheduledDate json.RawMessage `json:"scheduledDate,omitempty"`
	AppliedDate   json.RawMessage `json:"appliedDate,omitempty"`
	Location      string          `json:"location,omitempty"`
	Batch         string          `json:"batch,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

type RawRecordsResponse struct {
	Items                  []RawVaccineRecord `json:"items"`
	BirthDate              json.RawMessage    `json:"birthDate,omitempty"`
	Country                string             `json:"country,omitempty"`
	NeedsCountryAssignment bool               `json:"needsCountryAssignment,omitempty"`
}

// VaccinePayload is the write shape for create/update. Dates are ISO-8601
// strings; the upstream accepts nothing else on writes.
type VaccinePayload struct {
	Name          string `json:"name"`
	Status        string `json:"status"`
	ScheduledDate string `json:"scheduledDate,omitempty"`
	AppliedDate   string `json:"appliedDate,omitempty"`
	Location      string `json:"location,omitempty"`
	Batch         string `json:"batch,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type Immunize struct {
	opts *Options
	log  clog.ICustomLog
}

type Options struct {
	BaseURL string
	Token   string
	Log     clog.ICustomLog
}

func New(opts *Options) (*Immunize, error) {
	if err := validateOptions(opts); err != nil {
		return nil, errors.Wrap(err, "failed to validate options")
	}

	return &Immunize{
		opts: opts,
		log:  opts.Log.With(zap.String("pkg", "immunize")),
	}, nil
}

func validateOptions(opts *Options) error {
	if opts == nil {
		return errors.New("options cannot be nil")
	}

	if opts.BaseURL == "" {
		return errors.New("base URL cannot be empty")
	}

	if opts.Log == nil {
		return errors.New("log cannot be nil")
	}

	return nil
}

func (i *Immunize) GetSchedules(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage

	if _, err := util.DoHTTP(ctx, i.endpoint("/schedules"), http.MethodGet, nil, &raw, i.header()); err != nil {
		return nil, errors.Wrap(err, "failed to fetch schedules")
	}

	return raw, nil
}

func (i *Immunize) GetScheduleByCountry(ctx context.Context, country string) (json.RawMessage, error) {
	if country == "" {
		return nil, errors.New("country cannot be empty")
	}

	var raw json.RawMessage

	endpoint := i.endpoint("/schedules/" + url.PathEscape(country))

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodGet, nil, &raw, i.header()); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch schedule for country '%s'", country)
	}

	return raw, nil
}

func (i *Immunize) GetVaccines(ctx context.Context, childID string) (*RawRecordsResponse, error) {
	if childID == "" {
		return nil, errors.New("childID cannot be empty")
	}

	resp := &RawRecordsResponse{}

	endpoint := i.endpoint("/children/" + url.PathEscape(childID) + "/vaccines")

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodGet, nil, resp, i.header()); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch vaccines for child '%s'", childID)
	}

	return resp, nil
}

func (i *Immunize) CreateVaccine(ctx context.Context, childID string, payload *VaccinePayload) (*RawVaccineRecord, error) {
	if childID == "" {
		return nil, errors.New("childID cannot be empty")
	}

	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal vaccine payload")
	}

	record := &RawVaccineRecord{}

	endpoint := i.endpoint("/children/" + url.PathEscape(childID) + "/vaccines")

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodPost, body, record, i.header()); err != nil {
		return nil, errors.Wrapf(err, "failed to create vaccine for child '%s'", childID)
	}

	return record, nil
}

func (i *Immunize) UpdateVaccine(ctx context.Context, childID, recordID string, payload *VaccinePayload) (*RawVaccineRecord, error) {
	if childID == "" || recordID == "" {
		return nil, errors.New("childID and recordID cannot be empty")
	}

	if payload == nil {
		return nil, errors.New("payload cannot be nil")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal vaccine payload")
	}

	record := &RawVaccineRecord{}

	endpoint := i.endpoint("/children/" + url.PathEscape(childID) + "/vaccines/" + url.PathEscape(recordID))

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodPut, body, record, i.header()); err != nil {
		return nil, errors.Wrapf(err, "failed to update vaccine '%s'", recordID)
	}

	return record, nil
}

func (i *Immunize) DeleteVaccine(ctx context.Context, childID, recordID string) error {
	if childID == "" || recordID == "" {
		return errors.New("childID and recordID cannot be empty")
	}

	endpoint := i.endpoint("/children/" + url.PathEscape(childID) + "/vaccines/" + url.PathEscape(recordID))

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodDelete, nil, nil, i.header()); err != nil {
		return errors.Wrapf(err, "failed to delete vaccine '%s'", recordID)
	}

	return nil
}

func (i *Immunize) AssignSchedule(ctx context.Context, childID, country string) error {
	if childID == "" || country == "" {
		return errors.New("childID and country cannot be empty")
	}

	body, err := json.Marshal(map[string]string{"country": country})
	if err != nil {
		return errors.Wrap(err, "failed to marshal assignment body")
	}

	endpoint := i.endpoint("/children/" + url.PathEscape(childID) + "/schedule")

	if _, err := util.DoHTTP(ctx, endpoint, http.MethodPost, body, nil, i.header()); err != nil {
		return errors.Wrapf(err, "failed to assign schedule '%s' to child '%s'", country, childID)
	}

	return nil
}

func (i *Immunize) endpoint(path string) string {
	return fmt.Sprintf("%s/api/v1%s", i.opts.BaseURL, path)
}

func (i *Immunize) header() http.Header {
	h := http.Header{}
	h.Set("Accept", "application/json")

	if i.opts.Token != "" {
		h.Set("Authorization", "Bearer "+i.opts.Token)
	}

	return h
}
