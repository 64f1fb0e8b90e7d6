package child

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sproutcare/sprout-api/backends/cache"
	"github.com/sproutcare/sprout-api/backends/immunize"
	sb "github.com/sproutcare/sprout-api/backends/state"
	"github.com/sproutcare/sprout-api/clog"
	"github.com/sproutcare/sprout-api/events"
	"github.com/sproutcare/sprout-api/services/reconcile"
	"github.com/sproutcare/sprout-api/services/vaccine"
)

type fakeState struct {
	store    map[string]string
	getCalls int
}

func newFakeState() *fakeState {
	return &fakeState{store: map[string]string{}}
}

func (f *fakeState) key(key string, prefix []string) string {
	k := ""
	for _, p := range prefix {
		k += p + ":"
	}
	return k + key
}

func (f *fakeState) Get(_ context.Context, key string, prefix ...string) (string, error) {
	f.getCalls++

	v, ok := f.store[f.key(key, prefix)]
	if !ok {
		return "", sb.ErrDoesNotExist
	}

	return v, nil
}

func (f *fakeState) Add(_ context.Context, key, value string, prefix ...string) error {
	k := f.key(key, prefix)
	if _, ok := f.store[k]; ok {
		return sb.ErrAlreadyExists
	}

	f.store[k] = value
	return nil
}

func (f *fakeState) Set(_ context.Context, key, value string, prefix ...string) error {
	f.store[f.key(key, prefix)] = value
	return nil
}

func (f *fakeState) Delete(_ context.Context, key string, prefix ...string) error {
	delete(f.store, f.key(key, prefix))
	return nil
}

func (f *fakeState) Exists(_ context.Context, key string, prefix ...string) (bool, error) {
	_, ok := f.store[f.key(key, prefix)]
	return ok, nil
}

func (f *fakeState) Obtain(_ context.Context, _ string, _ time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	return nil, redislock.ErrNotObtained
}

type stubVaccine struct {
	invalidated []string
}

func (s *stubVaccine) ListRecords(_ context.Context, _ string) (*vaccine.RecordSet, error) {
	return nil, nil
}

func (s *stubVaccine) Immunizations(_ context.Context, _ string) (*vaccine.View, error) {
	return nil, nil
}

func (s *stubVaccine) Create(_ context.Context, _ string, _ *immunize.VaccinePayload) (*reconcile.VaccineRecord, error) {
	return nil, nil
}

func (s *stubVaccine) Update(_ context.Context, _, _ string, _ *immunize.VaccinePayload) (*reconcile.VaccineRecord, error) {
	return nil, nil
}

func (s *stubVaccine) Delete(_ context.Context, _, _ string) error { return nil }

func (s *stubVaccine) Invalidate(childID string) {
	s.invalidated = append(s.invalidated, childID)
}

type noopImmunize struct{}

func (n *noopImmunize) GetSchedules(_ context.Context) (json.RawMessage, error) { return nil, nil }

func (n *noopImmunize) GetScheduleByCountry(_ context.Context, _ string) (json.RawMessage, error) {
	return nil, nil
}

func (n *noopImmunize) GetVaccines(_ context.Context, _ string) (*immunize.RawRecordsResponse, error) {
	return &immunize.RawRecordsResponse{}, nil
}

func (n *noopImmunize) CreateVaccine(_ context.Context, _ string, _ *immunize.VaccinePayload) (*immunize.RawVaccineRecord, error) {
	return &immunize.RawVaccineRecord{}, nil
}

func (n *noopImmunize) UpdateVaccine(_ context.Context, _, _ string, _ *immunize.VaccinePayload) (*immunize.RawVaccineRecord, error) {
	return &immunize.RawVaccineRecord{}, nil
}

func (n *noopImmunize) DeleteVaccine(_ context.Context, _, _ string) error { return nil }

func (n *noopImmunize) AssignSchedule(_ context.Context, _, _ string) error { return nil }

type stubPublisher struct {
	assignedEvents []*events.ScheduleAssigned
}

func (s *stubPublisher) Start() error { return nil }
func (s *stubPublisher) Stop() error  { return nil }

func (s *stubPublisher) Publish(_ context.Context, _ []byte, _ string) error { return nil }

func (s *stubPublisher) PublishVaccineChangeEvent(_ context.Context, _ string, _ *events.VaccineChange) error {
	return nil
}

func (s *stubPublisher) PublishScheduleAssignedEvent(_ context.Context, assigned *events.ScheduleAssigned) error {
	s.assignedEvents = append(s.assignedEvents, assigned)
	return nil
}

func newTestService(t *testing.T, backend sb.IState) *Child {
	t.Helper()

	cb, err := cache.New()
	require.NoError(t, err)

	svc, err := New(&Options{
		Backend:     backend,
		Cache:       cb,
		Immunize:    &noopImmunize{},
		Publisher:   &stubPublisher{},
		Vaccine:     &stubVaccine{},
		Log:         &clog.TestLogger{},
		ShutdownCtx: context.Background(),
	})
	require.NoError(t, err)

	return svc
}

func TestSelectedChildRoundTrip(t *testing.T) {
	backend := newFakeState()
	svc := newTestService(t, backend)

	ctx := context.Background()

	_, err := svc.GetSelectedChild(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNoSelectedChild)

	require.NoError(t, svc.SetSelectedChild(ctx, "user-1", "child-1"))

	childID, err := svc.GetSelectedChild(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "child-1", childID)
}

func TestGetSelectedChild_Cached(t *testing.T) {
	backend := newFakeState()
	svc := newTestService(t, backend)

	ctx := context.Background()

	require.NoError(t, backend.Set(ctx, "user-1", "child-1", SelectedChildPrefix))

	before := backend.getCalls

	_, err := svc.GetSelectedChild(ctx, "user-1")
	require.NoError(t, err)

	_, err = svc.GetSelectedChild(ctx, "user-1")
	require.NoError(t, err)

	// Second read comes out of the local cache
	assert.Equal(t, before+1, backend.getCalls)
}

func TestGetAssignedCountry(t *testing.T) {
	backend := newFakeState()
	svc := newTestService(t, backend)

	ctx := context.Background()

	_, err := svc.GetAssignedCountry(ctx, "child-1")
	assert.ErrorIs(t, err, sb.ErrDoesNotExist)

	require.NoError(t, backend.Set(ctx, "child-1", "mx", CountryPrefix))

	country, err := svc.GetAssignedCountry(ctx, "child-1")
	require.NoError(t, err)
	assert.Equal(t, "mx", country)
}

func TestAssignCountry_LockContention(t *testing.T) {
	// fakeState always reports the lock as held elsewhere
	svc := newTestService(t, newFakeState())

	err := svc.AssignCountry(context.Background(), "child-1", "mx")
	assert.Error(t, err)
}
