package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cashflow-engine/alert"
	alertstore "github.com/warp/cashflow-engine/alert/store"
	"github.com/warp/cashflow-engine/finance"
	"github.com/warp/cashflow-engine/notify"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeSource struct {
	snapshots map[int64]finance.Snapshot
	failFor   map[int64]error
	listErr   error
}

func (f *fakeSource) ListOwners(context.Context) ([]int64, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var owners []int64
	for id := range f.snapshots {
		owners = append(owners, id)
	}
	for id := range f.failFor {
		owners = append(owners, id)
	}
	return owners, nil
}

func (f *fakeSource) LoadSnapshot(_ context.Context, ownerID int64) (finance.Snapshot, error) {
	if err := f.failFor[ownerID]; err != nil {
		return finance.Snapshot{}, err
	}
	return f.snapshots[ownerID], nil
}

type recordingDispatcher struct {
	mu       sync.Mutex
	messages []notify.AlertMessage
	err      error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, msg notify.AlertMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.messages = append(d.messages, msg)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

var july20 = time.Date(2024, time.July, 20, 9, 0, 0, 0, time.UTC)

// groceriesSnapshot has a 1000 limit budget with 950 spent in July 2024.
func groceriesSnapshot(ownerID, budgetID int64) finance.Snapshot {
	return finance.Snapshot{
		Budgets: []finance.Budget{{
			ID:           budgetID,
			CategoryID:   7,
			OwnerID:      ownerID,
			Name:         "Groceries",
			MonthlyLimit: decimal.NewFromInt(1000),
			Thresholds:   []float64{0.5, 0.75, 0.9},
		}},
		Entries: []finance.LedgerEntry{
			{ID: "e1", Type: finance.EntryPayable, Status: finance.StatusPaid, Value: 600, DueDate: "2024-07-03", CategoryID: 7},
			{ID: "e2", Type: finance.EntryPayable, Status: finance.StatusPending, Value: 350, DueDate: "2024-07-18", CategoryID: 7},
			{ID: "e3", Type: finance.EntryReceivable, Status: finance.StatusPaid, Value: 5000, DueDate: "2024-07-05"},
		},
	}
}

func newTestScheduler(source SnapshotSource, dispatcher notify.Dispatcher) (*AlertScheduler, *alertstore.Memory) {
	triggers := alertstore.NewMemory()
	dedup := alert.NewDeduplicator(triggers, quietLogger())
	s := NewAlertScheduler(source, finance.NewBudgetAnalyzer(finance.DefaultClassifierConfig()), dedup, dispatcher, quietLogger())
	s.Now = func() time.Time { return july20 }
	return s, triggers
}

// =============================================================================
// RUN ONCE
// =============================================================================

func TestAlertScheduler_RunOnce_RegistersEveryCrossingAndDispatchesHighest(t *testing.T) {
	// GIVEN: A budget at 95% with thresholds 0.5, 0.75, 0.9
	// WHEN: The scheduler runs for July
	// THEN: Three triggers are stored and a single alert for 0.90 is sent
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, triggers := newTestScheduler(source, dispatcher)

	stats, err := s.RunOnce(context.Background(), july20)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Owners)
	assert.Equal(t, 1, stats.Budgets)
	assert.Equal(t, 3, stats.Crossings)
	assert.Equal(t, 3, stats.Created)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), stats.Reference)

	stored, err := triggers.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, stored, 3)

	require.Len(t, dispatcher.messages, 1)
	msg := dispatcher.messages[0]
	assert.Equal(t, int64(42), msg.OwnerID)
	assert.Equal(t, "0.90", msg.Threshold)
	assert.Equal(t, "2024-07", msg.Month)
	assert.Equal(t, "warning", msg.Status)
	assert.Equal(t, "950", msg.Consumption)
	assert.Equal(t, 95.0, msg.Percentage)
	assert.Equal(t, "created", msg.Reason)
	assert.NotEmpty(t, msg.TriggerID)
}

func TestAlertScheduler_RunOnce_IsIdempotent(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)
	ctx := context.Background()

	_, err := s.RunOnce(ctx, july20)
	require.NoError(t, err)

	stats, err := s.RunOnce(ctx, july20.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Created)
	assert.Equal(t, 3, stats.Duplicates)
	assert.Equal(t, 0, stats.Dispatched)
	assert.Len(t, dispatcher.messages, 1, "second run sends nothing")
}

func TestAlertScheduler_RunOnce_NewThresholdLaterInMonth(t *testing.T) {
	// GIVEN: Early in the month only 0.5 is crossed
	// WHEN: Spending grows past 0.75 and the scheduler runs again
	// THEN: Only the new crossing is dispatched
	snap := groceriesSnapshot(42, 1)
	snap.Entries = snap.Entries[:1] // 600 of 1000
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: snap}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)
	ctx := context.Background()

	_, err := s.RunOnce(ctx, july20)
	require.NoError(t, err)
	require.Len(t, dispatcher.messages, 1)
	assert.Equal(t, "0.50", dispatcher.messages[0].Threshold)

	source.snapshots[42] = groceriesSnapshot(42, 1)
	stats, err := s.RunOnce(ctx, july20)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Duplicates)
	require.Len(t, dispatcher.messages, 2)
	assert.Equal(t, "0.90", dispatcher.messages[1].Threshold)
}

func TestAlertScheduler_RunOnce_FailedOwnerDoesNotStopRun(t *testing.T) {
	source := &fakeSource{
		snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)},
		failFor:   map[int64]error{43: errors.New("disk I/O error")},
	}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)
	s.Workers = 2

	stats, err := s.RunOnce(context.Background(), july20)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Owners)
	assert.Equal(t, 1, stats.FailedOwners)
	assert.Equal(t, 1, stats.Dispatched)
}

func TestAlertScheduler_RunOnce_ListOwnersError(t *testing.T) {
	source := &fakeSource{listErr: errors.New("database is locked")}
	s, _ := newTestScheduler(source, &recordingDispatcher{})

	_, err := s.RunOnce(context.Background(), july20)
	assert.ErrorContains(t, err, "database is locked")
}

func TestAlertScheduler_RunOnce_DispatchErrorIsCounted(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	s, triggers := newTestScheduler(source, &recordingDispatcher{err: errors.New("broker down")})

	stats, err := s.RunOnce(context.Background(), july20)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DispatchErrors)
	assert.Equal(t, 0, stats.Dispatched)

	stored, err := triggers.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "triggers stay recorded")
}

func TestAlertScheduler_RunOnce_OtherMonthHasNoCrossings(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)

	stats, err := s.RunOnce(context.Background(), time.Date(2024, time.August, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Budgets)
	assert.Zero(t, stats.Crossings)
	assert.Empty(t, dispatcher.messages)
}

func TestAlertScheduler_RunOnce_ManyOwnersConcurrently(t *testing.T) {
	snapshots := make(map[int64]finance.Snapshot)
	for owner := int64(1); owner <= 20; owner++ {
		snapshots[owner] = groceriesSnapshot(owner, owner*10)
	}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(&fakeSource{snapshots: snapshots}, dispatcher)
	s.Workers = 8

	stats, err := s.RunOnce(context.Background(), july20)
	require.NoError(t, err)

	assert.Equal(t, 20, stats.Owners)
	assert.Equal(t, 60, stats.Created)
	assert.Len(t, dispatcher.messages, 20)
}

func TestAlertScheduler_RunNowUsesSchedulerClock(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)

	stats, err := s.RunNow(context.Background())
	require.NoError(t, err)

	assert.Equal(t, time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC), stats.Reference)
	assert.Equal(t, 3, stats.Created)
	require.Len(t, dispatcher.messages, 1)
	assert.Equal(t, "2024-07", dispatcher.messages[0].Month)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestAlertScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)
	s.CheckInterval = time.Hour

	s.Start()
	require.Eventually(t, func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return len(dispatcher.messages) == 1
	}, 2*time.Second, 10*time.Millisecond)
	s.Stop()

	// Stop is idempotent
	s.Stop()
}

func TestAlertScheduler_DisabledDoesNotStart(t *testing.T) {
	source := &fakeSource{snapshots: map[int64]finance.Snapshot{42: groceriesSnapshot(42, 1)}}
	dispatcher := &recordingDispatcher{}
	s, _ := newTestScheduler(source, dispatcher)
	s.Enabled = false

	s.Start()
	s.Stop()

	assert.Nil(t, s.ticker)
	assert.Empty(t, dispatcher.messages)
}

func TestAlertScheduler_GetNextRunTime(t *testing.T) {
	s, _ := newTestScheduler(&fakeSource{}, nil)
	s.CheckInterval = 15 * time.Minute

	assert.Equal(t, july20.Add(15*time.Minute), s.GetNextRunTime())
}
