package vaccine

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/services/reconcile"
	"github.com/sproutcare/sprout-api/services/schedule"
)

type fakeImmunize struct {
	records      *immunize.RawRecordsResponse
	recordsErr   error
	getCalls     int
	createdWith  *immunize.VaccinePayload
	deleteCalled bool
}

func (f *fakeImmunize) GetSchedules(_ context.Context) (json.RawMessage, error) { return nil, nil }

func (f *fakeImmunize) GetScheduleByCountry(_ context.Context, _ string) (json.RawMessage, error) {
	return nil, nil
}

func (f *fakeImmunize) GetVaccines(_ context.Context, _ string) (*immunize.RawRecordsResponse, error) {
	f.getCalls++
	return f.records, f.recordsErr
}

func (f *fakeImmunize) CreateVaccine(_ context.Context, _ string, payload *immunize.VaccinePayload) (*immunize.RawVaccineRecord, error) {
	f.createdWith = payload
	return &immunize.RawVaccineRecord{
		ID:          "new-1",
		Name:        payload.Name,
		Status:      payload.Status,
		AppliedDate: json.RawMessage(`"` + payload.AppliedDate + `"`),
	}, nil
}

func (f *fakeImmunize) UpdateVaccine(_ context.Context, _, recordID string, payload *immunize.VaccinePayload) (*immunize.RawVaccineRecord, error) {
	return &immunize.RawVaccineRecord{ID: recordID, Name: payload.Name, Status: payload.Status}, nil
}

func (f *fakeImmunize) DeleteVaccine(_ context.Context, _, _ string) error {
	f.deleteCalled = true
	return nil
}

func (f *fakeImmunize) AssignSchedule(_ context.Context, _, _ string) error { return nil }

type fakeSchedule struct {
	templates []reconcile.DoseTemplate
	err       error
	lastQuery string
}

func (f *fakeSchedule) ListCountries(_ context.Context) ([]schedule.Country, error) {
	return nil, nil
}

func (f *fakeSchedule) TemplatesForCountry(_ context.Context, country string) ([]reconcile.DoseTemplate, error) {
	f.lastQuery = country
	return f.templates, f.err
}

type fakePublisher struct {
	published []string
}

func (f *fakePublisher) Start() error { return nil }
func (f *fakePublisher) Stop() error  { return nil }

func (f *fakePublisher) Publish(_ context.Context, _ []byte, routingKey string) error {
	f.published = append(f.published, routingKey)
	return nil
}

func (f *fakePublisher) PublishVaccineChangeEvent(_ context.Context, eventType string, _ *events.VaccineChange) error {
	f.published = append(f.published, eventType)
	return nil
}

func (f *fakePublisher) PublishScheduleAssignedEvent(_ context.Context, _ *events.ScheduleAssigned) error {
	f.published = append(f.published, events.TypeScheduleAssigned)
	return nil
}

func months(m float64) *float64 { return &m }

func newTestService(t *testing.T, backend *fakeImmunize, sched *fakeSchedule, pub *fakePublisher) *Vaccine {
	t.Helper()

	cb, err := cache.New()
	require.NoError(t, err)

	svc, err := New(&Options{
		Backend:   backend,
		Schedule:  sched,
		Cache:     cb,
		Publisher: pub,
		Log:       &clog.TestLogger{},
	})
	require.NoError(t, err)

	return svc
}

func TestImmunizations_ComposesView(t *testing.T) {
	backend := &fakeImmunize{
		records: &immunize.RawRecordsResponse{
			Items: []immunize.RawVaccineRecord{
				{
					ID:            "r1",
					Name:          "BCG",
					Status:        "applied",
					ScheduledDate: json.RawMessage(`"2024-01-01"`),
				},
			},
			BirthDate: json.RawMessage(`"2024-01-01"`),
			Country:   "mx",
		},
	}

	sched := &fakeSchedule{
		templates: []reconcile.DoseTemplate{
			{ID: "t1", Name: "BCG", TargetAgeMonths: months(0)},
			{ID: "t2", Name: "Hepatitis B", TargetAgeMonths: months(0)},
		},
	}

	svc := newTestService(t, backend, sched, &fakePublisher{})

	view, err := svc.Immunizations(context.Background(), "child-1")
	require.NoError(t, err)

	assert.Equal(t, "mx", sched.lastQuery)
	assert.Equal(t, "mx", view.Country)
	require.Len(t, view.Buckets, 1)
	assert.Equal(t, "Newborn", view.Buckets[0].Label)
	assert.Len(t, view.Buckets[0].Entries, 2)
	assert.False(t, view.Complete)
	assert.Len(t, view.Records, 1)

	count, ok := view.Summary["Newborn"]
	require.True(t, ok)
	assert.Equal(t, 1, count.Applied)
	assert.Equal(t, 2, count.Total)
}

func TestImmunizations_NeedsCountry(t *testing.T) {
	backend := &fakeImmunize{
		records: &immunize.RawRecordsResponse{NeedsCountryAssignment: true},
	}
	sched := &fakeSchedule{}

	svc := newTestService(t, backend, sched, &fakePublisher{})

	_, err := svc.Immunizations(context.Background(), "child-1")
	require.ErrorIs(t, err, ErrNeedsCountry)

	// The engine must not run without a calendar
	assert.Empty(t, sched.lastQuery)
}

func TestListRecords_CachesSnapshot(t *testing.T) {
	backend := &fakeImmunize{
		records: &immunize.RawRecordsResponse{Country: "mx"},
	}

	svc := newTestService(t, backend, &fakeSchedule{}, &fakePublisher{})

	_, err := svc.ListRecords(context.Background(), "child-1")
	require.NoError(t, err)

	_, err = svc.ListRecords(context.Background(), "child-1")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.getCalls)

	// Invalidate forces a refetch
	svc.Invalidate("child-1")

	_, err = svc.ListRecords(context.Background(), "child-1")
	require.NoError(t, err)
	assert.Equal(t, 2, backend.getCalls)
}

func TestCreate_PublishesChangeEvent(t *testing.T) {
	backend := &fakeImmunize{
		records: &immunize.RawRecordsResponse{Country: "mx"},
	}
	pub := &fakePublisher{}

	svc := newTestService(t, backend, &fakeSchedule{}, pub)

	record, err := svc.Create(context.Background(), "child-1", &immunize.VaccinePayload{
		Name:        "BCG",
		Status:      "applied",
		AppliedDate: "2024-01-02",
	})
	require.NoError(t, err)

	assert.Equal(t, "new-1", record.ID)
	assert.Equal(t, reconcile.StatusApplied, record.Status)
	require.NotNil(t, record.AppliedDate)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeVaccineCreated, pub.published[0])
}

func TestDelete_PublishesChangeEvent(t *testing.T) {
	backend := &fakeImmunize{
		records: &immunize.RawRecordsResponse{Country: "mx"},
	}
	pub := &fakePublisher{}

	svc := newTestService(t, backend, &fakeSchedule{}, pub)

	require.NoError(t, svc.Delete(context.Background(), "child-1", "r1"))
	assert.True(t, backend.deleteCalled)

	require.Len(t, pub.published, 1)
	assert.Equal(t, events.TypeVaccineDeleted, pub.published[0])
}

func TestListRecords_BackendError(t *testing.T) {
	backend := &fakeImmunize{recordsErr: errors.New("upstream down")}

	svc := newTestService(t, backend, &fakeSchedule{}, &fakePublisher{})

	_, err := svc.ListRecords(context.Background(), "child-1")
	assert.Error(t, err)
}
