package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
)

// fakeSnapshotStore keeps snapshots keyed the same way the real table is.
type fakeSnapshotStore struct {
	rows map[string]persistence.SnapshotRecord
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{rows: map[string]persistence.SnapshotRecord{}}
}

func snapshotKey(rec persistence.SnapshotRecord) string {
	return rec.TenantID.String() + "/" + rec.ReportDefinitionID.String() + "/" +
		rec.SnapshotDate.Format("2006-01-02")
}

func (s *fakeSnapshotStore) Upsert(_ context.Context, rec persistence.SnapshotRecord) (persistence.SnapshotRecord, error) {
	s.rows[snapshotKey(rec)] = rec
	return rec, nil
}

func (s *fakeSnapshotStore) ListSince(_ context.Context, tenantID, reportDefinitionID uuid.UUID, since time.Time) ([]persistence.SnapshotRecord, error) {
	var out []persistence.SnapshotRecord
	for _, rec := range s.rows {
		if rec.TenantID == tenantID && rec.ReportDefinitionID == reportDefinitionID && !rec.SnapshotDate.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *fakeSnapshotStore) Latest(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, since, before time.Time) (persistence.SnapshotRecord, error) {
	all, err := s.ListSince(ctx, tenantID, reportDefinitionID, since)
	if err != nil {
		return persistence.SnapshotRecord{}, err
	}
	var latest *persistence.SnapshotRecord
	for i := range all {
		if !all[i].SnapshotDate.Before(before) {
			continue
		}
		if latest == nil || all[i].SnapshotDate.After(latest.SnapshotDate) {
			latest = &all[i]
		}
	}
	if latest == nil {
		return persistence.SnapshotRecord{}, persistence.ErrNotFound
	}
	return *latest, nil
}

func newTestSnapshots(t *testing.T, store snapshotPersister, now time.Time) *Snapshots {
	t.Helper()
	snaps, err := NewSnapshots(store)
	if err != nil {
		t.Fatalf("new snapshots: %v", err)
	}
	snaps.now = func() time.Time { return now }
	return snaps
}

func TestBuildSummaryMetrics(t *testing.T) {
	rows := []map[string]any{
		{"class": "1a", "score": float64(80), "fee": int64(100)},
		{"class": "1b", "score": float64(60), "fee": int64(300)},
		{"class": "1c", "score": float64(70), "fee": int64(200)},
	}

	metrics := BuildSummaryMetrics(rows, time.Now())

	if metrics.RowCount != 3 {
		t.Fatalf("rowCount %d, want 3", metrics.RowCount)
	}
	if _, ok := metrics.Columns["class"]; ok {
		t.Fatal("non-numeric column must not be summarized")
	}
	score := metrics.Columns["score"]
	if score.Sum != 210 || score.Avg != 70 || score.Min != 60 || score.Max != 80 {
		t.Fatalf("unexpected score stats %+v", score)
	}
	fee := metrics.Columns["fee"]
	if fee.Sum != 600 || fee.Min != 100 || fee.Max != 300 {
		t.Fatalf("unexpected fee stats %+v", fee)
	}

	empty := BuildSummaryMetrics(nil, time.Now())
	if empty.RowCount != 0 || len(empty.Columns) != 0 {
		t.Fatalf("unexpected empty metrics %+v", empty)
	}
}

func TestSummaryMetricsJSONRoundTrip(t *testing.T) {
	in := SummaryMetrics{
		RowCount:  5,
		Timestamp: time.Date(2026, time.September, 1, 10, 0, 0, 0, time.UTC),
		Columns:   map[string]ColumnStats{"amount": {Sum: 100, Avg: 20, Min: 5, Max: 40}},
	}

	raw, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("unmarshal flat: %v", err)
	}
	if flat["rowCount"] != float64(5) {
		t.Fatalf("rowCount not at top level: %v", flat)
	}
	if _, ok := flat["amount"].(map[string]any); !ok {
		t.Fatalf("column stats not beside fixed keys: %v", flat)
	}

	var out SummaryMetrics
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.RowCount != in.RowCount || !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if out.Columns["amount"] != in.Columns["amount"] {
		t.Fatalf("column stats mismatch: %+v", out.Columns)
	}
}

func TestSnapshotUpsertsOncePerDay(t *testing.T) {
	store := newFakeSnapshotStore()
	now := time.Date(2026, time.September, 1, 9, 0, 0, 0, time.UTC)
	snaps := newTestSnapshots(t, store, now)

	tenantID, defID := uuid.New(), uuid.New()

	first := []map[string]any{{"amount": float64(10)}}
	if _, err := snaps.Create(context.Background(), tenantID, defID, uuid.New(), first); err != nil {
		t.Fatalf("first create: %v", err)
	}

	second := []map[string]any{{"amount": float64(25)}, {"amount": float64(5)}}
	secondExec := uuid.New()
	if _, err := snaps.Create(context.Background(), tenantID, defID, secondExec, second); err != nil {
		t.Fatalf("second create: %v", err)
	}

	if len(store.rows) != 1 {
		t.Fatalf("expected one row per day, got %d", len(store.rows))
	}
	for _, rec := range store.rows {
		if rec.ExecutionID != secondExec {
			t.Fatal("second run must overwrite the first")
		}
		var metrics SummaryMetrics
		if err := json.Unmarshal(rec.SummaryMetrics, &metrics); err != nil {
			t.Fatalf("decode metrics: %v", err)
		}
		if metrics.RowCount != 2 || metrics.Columns["amount"].Sum != 30 {
			t.Fatalf("snapshot does not reflect the second run: %+v", metrics)
		}
	}
}

func TestSnapshotDataCappedButMetricsComplete(t *testing.T) {
	store := newFakeSnapshotStore()
	snaps := newTestSnapshots(t, store, time.Now())

	rows := make([]map[string]any, 150)
	for i := range rows {
		rows[i] = map[string]any{"n": float64(1)}
	}
	rec, err := snaps.Create(context.Background(), uuid.New(), uuid.New(), uuid.New(), rows)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var data []map[string]any
	if err := json.Unmarshal(rec.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(data) != 100 {
		t.Fatalf("stored %d rows, want 100", len(data))
	}
	var metrics SummaryMetrics
	if err := json.Unmarshal(rec.SummaryMetrics, &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.RowCount != 150 || metrics.Columns["n"].Sum != 150 {
		t.Fatalf("metrics must cover the full set: %+v", metrics)
	}
}

func TestCompareWithHistoryColdStart(t *testing.T) {
	snaps := newTestSnapshots(t, newFakeSnapshotStore(), time.Now())

	cmp, err := snaps.CompareWithHistory(context.Background(), uuid.New(), uuid.New(),
		[]map[string]any{{"amount": float64(10)}}, 30)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Previous.RowCount != 0 {
		t.Fatalf("previous must be empty: %+v", cmp.Previous)
	}
	if len(cmp.Change) != 0 {
		t.Fatalf("change must be empty on cold start: %+v", cmp.Change)
	}
	if cmp.Current.RowCount != 1 {
		t.Fatalf("current metrics missing: %+v", cmp.Current)
	}
}

func TestCompareWithHistoryComputesDeltas(t *testing.T) {
	store := newFakeSnapshotStore()
	day1 := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	snaps := newTestSnapshots(t, store, day1)

	tenantID, defID := uuid.New(), uuid.New()
	baseline := []map[string]any{{"amount": float64(50)}, {"amount": float64(50)}}
	if _, err := snaps.Create(context.Background(), tenantID, defID, uuid.New(), baseline); err != nil {
		t.Fatalf("baseline create: %v", err)
	}

	snaps.now = func() time.Time { return day1.AddDate(0, 0, 1) }
	current := []map[string]any{{"amount": float64(150)}}
	cmp, err := snaps.CompareWithHistory(context.Background(), tenantID, defID, current, 30)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}

	rc := cmp.Change["rowCount"]
	if rc.Absolute != -1 || rc.Percentage != -50 {
		t.Fatalf("unexpected rowCount delta %+v", rc)
	}
	sum := cmp.Change["amount.sum"]
	if sum.Absolute != 50 || sum.Percentage != 50 {
		t.Fatalf("unexpected sum delta %+v", sum)
	}
}

// The comparison endpoint executes the report (which snapshots today's rows)
// before comparing, so the baseline lookup must skip today's snapshot or
// every delta collapses to zero.
func TestCompareWithHistoryIgnoresTodaysSnapshot(t *testing.T) {
	store := newFakeSnapshotStore()
	yesterday := time.Date(2026, time.August, 31, 9, 0, 0, 0, time.UTC)
	snaps := newTestSnapshots(t, store, yesterday)

	tenantID, defID := uuid.New(), uuid.New()
	if _, err := snaps.Create(context.Background(), tenantID, defID, uuid.New(),
		[]map[string]any{{"amount": float64(100)}}); err != nil {
		t.Fatalf("baseline create: %v", err)
	}

	snaps.now = func() time.Time { return yesterday.AddDate(0, 0, 1) }
	today := []map[string]any{{"amount": float64(300)}}
	if _, err := snaps.Create(context.Background(), tenantID, defID, uuid.New(), today); err != nil {
		t.Fatalf("today create: %v", err)
	}

	cmp, err := snaps.CompareWithHistory(context.Background(), tenantID, defID, today, 30)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	sum := cmp.Change["amount.sum"]
	if sum.Absolute != 200 || sum.Percentage != 200 {
		t.Fatalf("baseline must be yesterday's snapshot, not today's: %+v", sum)
	}
	if cmp.Previous.RowCount != 1 || cmp.Previous.Columns["amount"].Sum != 100 {
		t.Fatalf("unexpected baseline %+v", cmp.Previous)
	}
}

func TestDeltaZeroBaseline(t *testing.T) {
	d := delta(10, 0)
	if d.Absolute != 10 || d.Percentage != 0 {
		t.Fatalf("zero baseline must yield zero percentage: %+v", d)
	}
}
