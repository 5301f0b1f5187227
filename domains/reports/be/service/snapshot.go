package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BenisSula/saas-school-mgmt-system-new-sub005/platform/go/persistence"
)

// ColumnStats summarizes one numeric column of a result set.
type ColumnStats struct {
	Sum float64 `json:"sum"`
	Avg float64 `json:"avg"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// SummaryMetrics is the persisted shape of a snapshot summary: row count,
// capture time, and per-column stats for every column whose first-row value
// is numeric. Column entries sit beside the fixed keys in the JSON object.
type SummaryMetrics struct {
	RowCount  int
	Timestamp time.Time
	Columns   map[string]ColumnStats
}

func (m SummaryMetrics) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Columns)+2)
	out["rowCount"] = m.RowCount
	out["timestamp"] = m.Timestamp.UTC().Format(time.RFC3339)
	for col, stats := range m.Columns {
		out[col] = stats
	}
	return json.Marshal(out)
}

func (m *SummaryMetrics) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = SummaryMetrics{Columns: map[string]ColumnStats{}}
	for key, value := range raw {
		switch key {
		case "rowCount":
			if err := json.Unmarshal(value, &m.RowCount); err != nil {
				return fmt.Errorf("decode rowCount: %w", err)
			}
		case "timestamp":
			var ts string
			if err := json.Unmarshal(value, &ts); err != nil {
				return fmt.Errorf("decode timestamp: %w", err)
			}
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return fmt.Errorf("decode timestamp: %w", err)
			}
			m.Timestamp = parsed
		default:
			var stats ColumnStats
			if err := json.Unmarshal(value, &stats); err != nil {
				// Not a stats object; ignore unknown shapes rather than
				// rejecting snapshots written by older versions.
				continue
			}
			m.Columns[key] = stats
		}
	}
	return nil
}

// BuildSummaryMetrics computes the snapshot summary for a result set. A
// column participates when its value in the first row is numeric; later
// non-numeric values in that column are skipped.
func BuildSummaryMetrics(rows []map[string]any, at time.Time) SummaryMetrics {
	metrics := SummaryMetrics{
		RowCount:  len(rows),
		Timestamp: at,
		Columns:   map[string]ColumnStats{},
	}
	if len(rows) == 0 {
		return metrics
	}

	for col, first := range rows[0] {
		if _, ok := asNumber(first); !ok {
			continue
		}
		stats := ColumnStats{}
		count := 0
		for _, row := range rows {
			value, ok := asNumber(row[col])
			if !ok {
				continue
			}
			if count == 0 {
				stats.Min, stats.Max = value, value
			} else {
				if value < stats.Min {
					stats.Min = value
				}
				if value > stats.Max {
					stats.Max = value
				}
			}
			stats.Sum += value
			count++
		}
		if count > 0 {
			stats.Avg = stats.Sum / float64(count)
		}
		metrics.Columns[col] = stats
	}
	return metrics
}

func asNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// Delta is the change of one metric against the historical baseline.
type Delta struct {
	Absolute   float64 `json:"absolute"`
	Percentage float64 `json:"percentage"`
}

// Comparison is the result of comparing a fresh result set against the most
// recent snapshot in the trend window.
type Comparison struct {
	Current  SummaryMetrics   `json:"current"`
	Previous SummaryMetrics   `json:"previous"`
	Change   map[string]Delta `json:"change"`
}

type snapshotPersister interface {
	Upsert(ctx context.Context, rec persistence.SnapshotRecord) (persistence.SnapshotRecord, error)
	ListSince(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, since time.Time) ([]persistence.SnapshotRecord, error)
	Latest(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, since, before time.Time) (persistence.SnapshotRecord, error)
}

// Snapshots maintains the daily report history used for trend analysis.
type Snapshots struct {
	store       snapshotPersister
	now         func() time.Time
	maxDataRows int
}

func NewSnapshots(store snapshotPersister) (*Snapshots, error) {
	if store == nil {
		return nil, errors.New("snapshot store is required")
	}
	return &Snapshots{store: store, now: time.Now, maxDataRows: 100}, nil
}

// Create upserts today's snapshot for the report. The stored data is capped
// to the first rows of the result set; summary metrics always reflect the
// full set. Running the same report twice in one day overwrites.
func (s *Snapshots) Create(ctx context.Context, tenantID, reportDefinitionID, executionID uuid.UUID, rows []map[string]any) (persistence.SnapshotRecord, error) {
	now := s.now()

	sample := rows
	if len(sample) > s.maxDataRows {
		sample = sample[:s.maxDataRows]
	}
	data, err := json.Marshal(sample)
	if err != nil {
		return persistence.SnapshotRecord{}, fmt.Errorf("encode snapshot data: %w", err)
	}
	metrics, err := json.Marshal(BuildSummaryMetrics(rows, now))
	if err != nil {
		return persistence.SnapshotRecord{}, fmt.Errorf("encode summary metrics: %w", err)
	}

	return s.store.Upsert(ctx, persistence.SnapshotRecord{
		TenantID:           tenantID,
		ReportDefinitionID: reportDefinitionID,
		ExecutionID:        executionID,
		SnapshotDate:       truncateToDay(now),
		Data:               data,
		SummaryMetrics:     metrics,
	})
}

// HistoricalTrend returns the snapshots of the last `days` days, ascending
// by date.
func (s *Snapshots) HistoricalTrend(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, days int) ([]persistence.SnapshotRecord, error) {
	since := truncateToDay(s.now()).AddDate(0, 0, -days)
	return s.store.ListSince(ctx, tenantID, reportDefinitionID, since)
}

// CompareWithHistory compares a fresh result set against the most recent
// snapshot within the trend window, excluding today's: the current run has
// usually just been snapshotted, and comparing it against itself would zero
// every delta. Every metric present in both summaries gets an absolute and
// percentage delta; column stats are compared per component under
// "<column>.<stat>" keys. With no prior snapshot the comparison degrades to
// an empty change set instead of failing, so brand-new reports render
// cleanly.
func (s *Snapshots) CompareWithHistory(ctx context.Context, tenantID, reportDefinitionID uuid.UUID, currentRows []map[string]any, comparisonDays int) (Comparison, error) {
	current := BuildSummaryMetrics(currentRows, s.now())

	today := truncateToDay(s.now())
	since := today.AddDate(0, 0, -comparisonDays)
	baseline, err := s.store.Latest(ctx, tenantID, reportDefinitionID, since, today)
	if errors.Is(err, persistence.ErrNotFound) {
		return Comparison{
			Current:  current,
			Previous: SummaryMetrics{Columns: map[string]ColumnStats{}},
			Change:   map[string]Delta{},
		}, nil
	}
	if err != nil {
		return Comparison{}, fmt.Errorf("load baseline snapshot: %w", err)
	}

	var previous SummaryMetrics
	if err := json.Unmarshal(baseline.SummaryMetrics, &previous); err != nil {
		return Comparison{}, fmt.Errorf("decode baseline summary metrics: %w", err)
	}

	return Comparison{
		Current:  current,
		Previous: previous,
		Change:   diffMetrics(current, previous),
	}, nil
}

func diffMetrics(current, previous SummaryMetrics) map[string]Delta {
	change := map[string]Delta{
		"rowCount": delta(float64(current.RowCount), float64(previous.RowCount)),
	}
	for col, cur := range current.Columns {
		prev, ok := previous.Columns[col]
		if !ok {
			continue
		}
		change[col+".sum"] = delta(cur.Sum, prev.Sum)
		change[col+".avg"] = delta(cur.Avg, prev.Avg)
		change[col+".min"] = delta(cur.Min, prev.Min)
		change[col+".max"] = delta(cur.Max, prev.Max)
	}
	return change
}

func delta(current, previous float64) Delta {
	d := Delta{Absolute: current - previous}
	if previous != 0 {
		d.Percentage = d.Absolute / previous * 100
	}
	return d
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
