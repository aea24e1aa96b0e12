package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/logflow/pmdash/internal/model"
	"github.com/logflow/pmdash/pkg/aggregate"
	lferrors "github.com/logflow/pmdash/pkg/errors"
)

// Timestamps are stored as (seconds, nanoseconds) pairs so ordering is
// exact over the whole time.Time range.
const createEventsSQL = `
	CREATE OR REPLACE TABLE events (
		row_num      BIGINT NOT NULL,
		case_id      VARCHAR NOT NULL,
		activity     VARCHAR NOT NULL,
		start_s      BIGINT NOT NULL,
		start_ns     INTEGER NOT NULL,
		end_s        BIGINT NOT NULL,
		end_ns       INTEGER NOT NULL,
		duration_min DOUBLE NOT NULL
	)
`

const insertEventSQL = `
	INSERT INTO events (row_num, case_id, activity, start_s, start_ns, end_s, end_ns, duration_min)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`

// caseOrder orders events inside a case: by start, then input row.
const caseOrder = `start_s, start_ns, row_num`

// pathSep joins activities inside string_agg; it cannot occur in a
// readable activity name.
const pathSep = "\x1f"

// DuckDB computes views with SQL over an in-memory DuckDB table.
// Aggregate calls are serialized because they share the events table.
type DuckDB struct {
	db *sql.DB
	mu sync.Mutex
}

// NewDuckDB opens an in-memory DuckDB database.
func NewDuckDB() (*DuckDB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DuckDB{db: db}, nil
}

// Name implements Engine.
func (*DuckDB) Name() string {
	return NameDuckDB
}

// Close implements Engine.
func (d *DuckDB) Close() error {
	return d.db.Close()
}

// Aggregate implements Engine. Results match the native engine,
// including tie-break order.
func (d *DuckDB) Aggregate(ctx context.Context, log *model.Log) (*aggregate.Views, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.load(ctx, log); err != nil {
		return nil, aggregateErr(err, "load events")
	}

	v := &aggregate.Views{}
	var err error

	if v.CaseDurations, err = d.caseDurations(ctx); err != nil {
		return nil, aggregateErr(err, "case durations")
	}
	v.Average = aggregate.AverageCompletionTime(v.CaseDurations)

	total := int64(log.Len())
	if v.Activities, err = d.counts(ctx, `
		SELECT activity, COUNT(*) AS cnt
		FROM events
		GROUP BY activity
		ORDER BY cnt DESC, activity ASC
	`, total); err != nil {
		return nil, aggregateErr(err, "activity frequencies")
	}

	if v.Transitions, err = d.transitions(ctx); err != nil {
		return nil, aggregateErr(err, "transitions")
	}

	if v.Summary, err = d.summary(ctx); err != nil {
		return nil, aggregateErr(err, "summary")
	}

	cases := int64(v.Summary.Cases)
	if v.Variants, err = d.variants(ctx, cases); err != nil {
		return nil, aggregateErr(err, "variants")
	}
	if v.StartActivities, err = d.counts(ctx, endpointSQL("ASC"), cases); err != nil {
		return nil, aggregateErr(err, "start activities")
	}
	if v.EndActivities, err = d.counts(ctx, endpointSQL("DESC"), cases); err != nil {
		return nil, aggregateErr(err, "end activities")
	}
	return v, nil
}

func (d *DuckDB) load(ctx context.Context, log *model.Log) error {
	if _, err := d.db.ExecContext(ctx, createEventsSQL); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertEventSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range log.Events() {
		_, err := stmt.ExecContext(ctx,
			int64(e.Row), e.CaseID, e.Activity,
			e.Start.Unix(), int32(e.Start.Nanosecond()),
			e.End.Unix(), int32(e.End.Nanosecond()),
			e.DurationMinutes,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (d *DuckDB) caseDurations(ctx context.Context) (map[string]float64, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT case_id, SUM(duration_min) FROM events GROUP BY case_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var id string
		var sum float64
		if err := rows.Scan(&id, &sum); err != nil {
			return nil, err
		}
		out[id] = sum
	}
	return out, rows.Err()
}

// counts scans (activity, count) rows. total is the Percent denominator.
func (d *DuckDB) counts(ctx context.Context, query string, total int64) ([]aggregate.ActivityCount, error) {
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]aggregate.ActivityCount, 0)
	for rows.Next() {
		var ac aggregate.ActivityCount
		if err := rows.Scan(&ac.Activity, &ac.Count); err != nil {
			return nil, err
		}
		if total > 0 {
			ac.Percent = float64(ac.Count) * 100 / float64(total)
		}
		out = append(out, ac)
	}
	return out, rows.Err()
}

func (d *DuckDB) transitions(ctx context.Context) ([]aggregate.Transition, error) {
	rows, err := d.db.QueryContext(ctx, `
		WITH ordered AS (
			SELECT
				activity,
				LEAD(activity) OVER (PARTITION BY case_id ORDER BY `+caseOrder+`) AS next_activity
			FROM events
		)
		SELECT activity, next_activity, COUNT(*) AS cnt
		FROM ordered
		WHERE next_activity IS NOT NULL
		GROUP BY activity, next_activity
		ORDER BY cnt DESC, activity ASC, next_activity ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]aggregate.Transition, 0)
	for rows.Next() {
		var t aggregate.Transition
		if err := rows.Scan(&t.From, &t.To, &t.Count); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (d *DuckDB) summary(ctx context.Context) (aggregate.Summary, error) {
	var s aggregate.Summary
	var minEvents, maxEvents sql.NullInt64

	err := d.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM events),
			(SELECT COUNT(DISTINCT case_id) FROM events),
			(SELECT COUNT(DISTINCT activity) FROM events),
			MIN(cnt),
			MAX(cnt)
		FROM (SELECT COUNT(*) AS cnt FROM events GROUP BY case_id)
	`).Scan(&s.Events, &s.Cases, &s.Activities, &minEvents, &maxEvents)
	if err != nil {
		return s, err
	}
	if s.Cases == 0 {
		return s, nil
	}
	s.MinEventsPerCase = int(minEvents.Int64)
	s.MaxEventsPerCase = int(maxEvents.Int64)
	s.AvgEventsPerCase = float64(s.Events) / float64(s.Cases)

	if s.Start, err = d.instant(ctx, `SELECT start_s, start_ns FROM events ORDER BY start_s, start_ns LIMIT 1`); err != nil {
		return s, err
	}
	if s.End, err = d.instant(ctx, `SELECT end_s, end_ns FROM events ORDER BY end_s DESC, end_ns DESC LIMIT 1`); err != nil {
		return s, err
	}
	return s, nil
}

func (d *DuckDB) instant(ctx context.Context, query string) (time.Time, error) {
	var sec int64
	var nsec int32
	if err := d.db.QueryRowContext(ctx, query).Scan(&sec, &nsec); err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, int64(nsec)).UTC(), nil
}

func (d *DuckDB) variants(ctx context.Context, cases int64) ([]aggregate.Variant, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT variant, COUNT(*) AS cnt
		FROM (
			SELECT case_id, STRING_AGG(activity, chr(31) ORDER BY `+caseOrder+`) AS variant
			FROM events
			GROUP BY case_id
		)
		GROUP BY variant
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]aggregate.Variant, 0)
	for rows.Next() {
		var path string
		var v aggregate.Variant
		if err := rows.Scan(&path, &v.Count); err != nil {
			return nil, err
		}
		v.Path = strings.Split(path, pathSep)
		if cases > 0 {
			v.Percent = float64(v.Count) * 100 / float64(cases)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	aggregate.SortVariants(out)
	return out, nil
}

// endpointSQL counts the first (ASC) or last (DESC) activity per case.
func endpointSQL(dir string) string {
	return fmt.Sprintf(`
		SELECT activity, COUNT(*) AS cnt
		FROM (
			SELECT
				activity,
				ROW_NUMBER() OVER (
					PARTITION BY case_id
					ORDER BY start_s %[1]s, start_ns %[1]s, row_num %[1]s
				) AS rn
			FROM events
		)
		WHERE rn = 1
		GROUP BY activity
		ORDER BY cnt DESC, activity ASC
	`, dir)
}

func aggregateErr(err error, what string) error {
	code := lferrors.CodeAggregateFailed
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = lferrors.CodeContextCanceled
	}
	return lferrors.Wrapf(err, code, "duckdb: %s", what)
}
