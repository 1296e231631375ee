// Package store provides SQLite-backed persistence for jobs, reports, and
// artifacts. It is the concrete stand-in for the generic indexed document
// store the core spec treats as an external collaborator
// (GetSrv/CreateSrv/UpdateSrv/FindSrv/DeleteSrv); this package gives that
// contract a real implementation so the service is runnable standalone.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/marcus-qen/analyzerd/internal/attachment"
	"github.com/marcus-qen/analyzerd/internal/jobs"
	"github.com/marcus-qen/analyzerd/internal/migration"
)

const (
	maxErrorMessageBytes = 8 * 1024
	schemaVersion        = 1
)

// ErrInvalidTransition is returned when a job status transition does not
// start from an allowed current status.
var ErrInvalidTransition = errors.New("invalid job status transition")

// Store persists jobs, reports, and artifacts in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the analyzerd database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store db: %w", err)
	}

	// SQLite pragmas are connection-scoped with modernc; keep a single
	// pooled connection so concurrent admission/ingest goroutines see
	// deterministic write behavior.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS jobs (
		id                      TEXT PRIMARY KEY,
		analyzer_definition_id  TEXT NOT NULL,
		analyzer_id             TEXT NOT NULL,
		analyzer_name           TEXT NOT NULL,
		organization            TEXT NOT NULL,
		data_type               TEXT NOT NULL,
		tlp                     INTEGER NOT NULL DEFAULT 2,
		message                 TEXT NOT NULL DEFAULT '',
		parameters              TEXT NOT NULL DEFAULT '{}',
		data                    TEXT,
		attachment_id           TEXT,
		attachment_name         TEXT,
		attachment_content_type TEXT,
		attachment_size         INTEGER,
		attachment_hash         TEXT,
		status                  TEXT NOT NULL,
		start_date              TEXT,
		end_date                TEXT,
		input                   TEXT NOT NULL DEFAULT '',
		error_message           TEXT NOT NULL DEFAULT '',
		created_at              TEXT NOT NULL,
		updated_at              TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create jobs table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS reports (
		id         TEXT PRIMARY KEY,
		job_id     TEXT NOT NULL UNIQUE,
		full       TEXT NOT NULL,
		summary    TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY(job_id) REFERENCES jobs(id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create reports table: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS artifacts (
		id                      TEXT PRIMARY KEY,
		report_id               TEXT NOT NULL,
		data_type               TEXT NOT NULL,
		data                    TEXT,
		attachment_id           TEXT,
		attachment_name         TEXT,
		attachment_content_type TEXT,
		attachment_size         INTEGER,
		attachment_hash         TEXT,
		created_at              TEXT NOT NULL,
		FOREIGN KEY(report_id) REFERENCES reports(id)
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create artifacts table: %w", err)
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_org ON jobs(organization)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_analyzer_created ON jobs(analyzer_id, created_at)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`)
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_artifacts_report ON artifacts(report_id)`)

	if err := migration.EnsureVersion(db, schemaVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema version: %w", err)
	}
	if err := migration.NewRunner("analyzerd", jobMigrations()).Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run job migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// jobMigrations lists the additive schema changes applied on top of the
// baseline CREATE TABLE above, run through migration.Runner so each one
// applies at most once and is recorded in _schema_version (spec §9 —
// PRAGMA table_info-style additive growth, generalised from the teacher's
// hand-rolled ensureColumn/hasColumn pair to the versioned Runner already
// carried for this purpose).
func jobMigrations() []migration.Migration {
	return []migration.Migration{
		{
			Version:     2,
			Description: "add jobs.duration_ms for stats aggregation",
			Up: func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE jobs ADD COLUMN duration_ms INTEGER`)
				return err
			},
			Down: func(tx *sql.Tx) error {
				_, err := tx.Exec(`ALTER TABLE jobs DROP COLUMN duration_ms`)
				return err
			},
		},
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateJob inserts a new job, assigning it an id, created_at, and
// updated_at.
func (s *Store) CreateJob(j jobs.Job) (*jobs.Job, error) {
	j.ID = uuid.NewString()
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now

	params, err := json.Marshal(j.Parameters)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	var (
		dataValue                                                         sql.NullString
		attID, attName, attContentType, attHash                           sql.NullString
		attSize                                                           sql.NullInt64
	)
	if j.Observable.IsData() {
		dataValue = sql.NullString{String: *j.Observable.Data, Valid: true}
	} else if j.Observable.IsAttachment() {
		a := j.Observable.Attachment
		attID = sql.NullString{String: a.ID, Valid: true}
		attName = sql.NullString{String: a.Name, Valid: true}
		attContentType = sql.NullString{String: a.ContentType, Valid: true}
		attSize = sql.NullInt64{Int64: a.Size, Valid: true}
		attHash = sql.NullString{String: a.Hash, Valid: true}
	}

	_, err = s.db.Exec(`INSERT INTO jobs (
		id, analyzer_definition_id, analyzer_id, analyzer_name, organization,
		data_type, tlp, message, parameters,
		data, attachment_id, attachment_name, attachment_content_type, attachment_size, attachment_hash,
		status, start_date, end_date, input, error_message, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.AnalyzerDefinitionID, j.AnalyzerID, j.AnalyzerName, j.Organization,
		j.DataType, j.TLP, j.Message, string(params),
		dataValue, attID, attName, attContentType, attSize, attHash,
		string(j.Status), nullableTime(j.StartDate), nullableTime(j.EndDate), j.Input, j.ErrorMessage,
		j.CreatedAt.Format(time.RFC3339Nano), j.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return &j, nil
}

// GetJob returns the job with id, regardless of organisation. Callers
// needing organisation scoping should use the query facade instead.
func (s *Store) GetJob(id string) (*jobs.Job, error) {
	row := s.db.QueryRow(jobSelectColumns+` FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// StartJob applies transitionJob(Waiting → InProgress) and sets start_date,
// with retryOnConflict=0: at most one caller wins when two orchestrators
// race to start the same Waiting job (spec §4.1/§5).
func (s *Store) StartJob(id string) (*jobs.Job, error) {
	now := time.Now().UTC()
	return s.transitionJob(id, []jobs.Status{jobs.StatusWaiting}, jobs.StatusInProgress, func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec(`UPDATE jobs SET status = ?, start_date = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(jobs.StatusInProgress), now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), id, string(jobs.StatusWaiting))
	})
}

// EndJob transitions an InProgress job to a terminal status, recording the
// end date, optional diagnostic fields, and the job's wall-clock duration
// (for Stats aggregation) computed from its recorded start_date.
func (s *Store) EndJob(id string, status jobs.Status, errorMessage, input string) (*jobs.Job, error) {
	if status != jobs.StatusSuccess && status != jobs.StatusFailure {
		return nil, fmt.Errorf("endJob: invalid terminal status %s", status)
	}
	now := time.Now().UTC()

	var durationMS sql.NullInt64
	var startDate sql.NullString
	if err := s.db.QueryRow(`SELECT start_date FROM jobs WHERE id = ?`, id).Scan(&startDate); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read start_date: %w", err)
	}
	if startDate.Valid && startDate.String != "" {
		if ts, err := time.Parse(time.RFC3339Nano, startDate.String); err == nil {
			durationMS = sql.NullInt64{Int64: now.Sub(ts).Milliseconds(), Valid: true}
		}
	}

	return s.transitionJob(id, []jobs.Status{jobs.StatusInProgress}, status, func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec(`UPDATE jobs SET status = ?, end_date = ?, error_message = ?, input = ?, duration_ms = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(status), now.Format(time.RFC3339Nano), truncateMessage(errorMessage), input, durationMS, now.Format(time.RFC3339Nano),
			id, string(jobs.StatusInProgress))
	})
}

// DeleteJob soft-deletes a job: status=Deleted, no cascade (spec §3).
func (s *Store) DeleteJob(id string) (*jobs.Job, error) {
	now := time.Now().UTC()
	return s.transitionJob(id, []jobs.Status{
		jobs.StatusWaiting, jobs.StatusInProgress, jobs.StatusSuccess, jobs.StatusFailure,
	}, jobs.StatusDeleted, func(tx *sql.Tx) (sql.Result, error) {
		return tx.Exec(`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status != ?`,
			string(jobs.StatusDeleted), now.Format(time.RFC3339Nano), id, string(jobs.StatusDeleted))
	})
}

// transitionJob is the conditional-update pattern grounded on
// internal/controlplane/jobs/store.go's transitionRun: read current
// status inside a transaction, verify it is an allowed starting state,
// issue a WHERE-guarded UPDATE, and treat RowsAffected()==0 as a lost
// race rather than an error condition to retry blindly.
func (s *Store) transitionJob(id string, fromStatuses []jobs.Status, toStatus jobs.Status, update func(*sql.Tx) (sql.Result, error)) (*jobs.Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	if err := tx.QueryRow(`SELECT status FROM jobs WHERE id = ?`, id).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, err
	}

	allowed := false
	for _, candidate := range fromStatuses {
		if current == string(candidate) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, toStatus)
	}

	res, err := update(tx)
	if err != nil {
		return nil, err
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return nil, fmt.Errorf("%w: %s -> %s (lost race)", ErrInvalidTransition, current, toStatus)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetJob(id)
}

// CountJobsSince counts jobs for analyzerID created at or after since,
// grounding the Admission Controller's sliding-window rate-limit check in
// a store query rather than an in-memory tracker (spec §4.2/§9 — counts
// must survive restarts).
func (s *Store) CountJobsSince(analyzerID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM jobs WHERE analyzer_id = ? AND created_at >= ?`,
		analyzerID, since.Format(time.RFC3339Nano),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count jobs since: %w", err)
	}
	return count, nil
}

// FindSimilarJob returns the most recent non-failed, non-deleted job
// matching the given fingerprint within the cache window, or nil if none
// matches (spec §4.2).
func (s *Store) FindSimilarJob(analyzerID, dataType, dataIdentity string, isAttachment bool, tlp int, parametersEncoded string, since time.Time) (*jobs.Job, error) {
	identityColumn := "data"
	if isAttachment {
		identityColumn = "attachment_id"
	}
	query := jobSelectColumns + fmt.Sprintf(` FROM jobs
		WHERE analyzer_id = ?
		AND status NOT IN (?, ?)
		AND start_date >= ?
		AND data_type = ?
		AND tlp = ?
		AND %s = ?
		AND parameters = ?
		ORDER BY created_at DESC
		LIMIT 1`, identityColumn)

	row := s.db.QueryRow(query,
		analyzerID, string(jobs.StatusFailure), string(jobs.StatusDeleted),
		since.Format(time.RFC3339Nano), dataType, tlp, dataIdentity, parametersEncoded,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ListByStatus returns all jobs with the given status, across every
// organisation — used by the Recovery Scanner at startup (spec §4.6).
func (s *Store) ListByStatus(status jobs.Status) ([]jobs.Job, error) {
	rows, err := s.db.Query(jobSelectColumns+` FROM jobs WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]jobs.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// ListForOrganization returns jobs owned by organization, optionally
// filtered by substring match on dataType, data, or analyzerId/analyzerName
// (spec §4.7), most recent first, bounded by limit/offset.
func (s *Store) ListForOrganization(organization string, dataTypeFilter, dataFilter, analyzerFilter string, limit, offset int) ([]jobs.Job, error) {
	query := jobSelectColumns + ` FROM jobs WHERE organization = ?`
	args := []any{organization}

	if dataTypeFilter != "" {
		query += ` AND data_type LIKE ?`
		args = append(args, "%"+dataTypeFilter+"%")
	}
	if dataFilter != "" {
		query += ` AND (data LIKE ? OR attachment_name LIKE ?)`
		args = append(args, "%"+dataFilter+"%", "%"+dataFilter+"%")
	}
	if analyzerFilter != "" {
		query += ` AND (analyzer_id LIKE ? OR analyzer_name LIKE ?)`
		args = append(args, "%"+analyzerFilter+"%", "%"+analyzerFilter+"%")
	}

	query += ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]jobs.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

// CreateReport inserts a report for jobID. At most one report may exist
// per job (spec §3); a second insert fails on the UNIQUE(job_id) index.
func (s *Store) CreateReport(jobID, full, summary string) (*jobs.Report, error) {
	r := jobs.Report{
		ID:        uuid.NewString(),
		JobID:     jobID,
		Full:      full,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO reports (id, job_id, full, summary, created_at) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.JobID, r.Full, r.Summary, r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert report: %w", err)
	}
	return &r, nil
}

// GetReportByJob returns the report belonging to jobID.
func (s *Store) GetReportByJob(jobID string) (*jobs.Report, error) {
	row := s.db.QueryRow(`SELECT id, job_id, full, summary, created_at FROM reports WHERE job_id = ?`, jobID)
	var (
		r         jobs.Report
		createdAt string
	)
	if err := row.Scan(&r.ID, &r.JobID, &r.Full, &r.Summary, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, jobs.ErrNotFound
		}
		return nil, err
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &r, nil
}

// CreateArtifact inserts an artifact child of reportID.
func (s *Store) CreateArtifact(reportID, dataType string, obs jobs.DataRef) (*jobs.Artifact, error) {
	a := jobs.Artifact{
		ID:         uuid.NewString(),
		ReportID:   reportID,
		DataType:   dataType,
		Observable: obs,
		CreatedAt:  time.Now().UTC(),
	}

	var (
		dataValue                                               sql.NullString
		attID, attName, attContentType, attHash                 sql.NullString
		attSize                                                 sql.NullInt64
	)
	if obs.IsData() {
		dataValue = sql.NullString{String: *obs.Data, Valid: true}
	} else if obs.IsAttachment() {
		at := obs.Attachment
		attID = sql.NullString{String: at.ID, Valid: true}
		attName = sql.NullString{String: at.Name, Valid: true}
		attContentType = sql.NullString{String: at.ContentType, Valid: true}
		attSize = sql.NullInt64{Int64: at.Size, Valid: true}
		attHash = sql.NullString{String: at.Hash, Valid: true}
	}

	_, err := s.db.Exec(`INSERT INTO artifacts (
		id, report_id, data_type, data, attachment_id, attachment_name, attachment_content_type, attachment_size, attachment_hash, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ReportID, a.DataType, dataValue, attID, attName, attContentType, attSize, attHash,
		a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert artifact: %w", err)
	}
	return &a, nil
}

// FindArtifactsByReport returns every artifact belonging to reportID.
func (s *Store) FindArtifactsByReport(reportID string) ([]jobs.Artifact, error) {
	rows, err := s.db.Query(`SELECT id, report_id, data_type, data, attachment_id, attachment_name, attachment_content_type, attachment_size, attachment_hash, created_at
		FROM artifacts WHERE report_id = ? ORDER BY created_at ASC`, reportID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]jobs.Artifact, 0)
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// statsFilterColumns whitelists the job columns the stats query DSL may
// filter on, so a caller-supplied field name never reaches SQL as raw text
// (spec §4.7/§9's store query DSL: equality over a fixed set of fields).
var statsFilterColumns = map[string]string{
	"analyzerId": "analyzer_id",
	"dataType":   "data_type",
	"status":     "status",
	"tlp":        "tlp",
}

// statsAggColumns whitelists the job columns Aggregation.Field may group by.
var statsAggColumns = map[string]string{
	"status":     "status",
	"analyzerId": "analyzer_id",
	"dataType":   "data_type",
}

// Stats computes query+aggregations over organization's jobs (spec §4.7:
// "stats(query, aggregations) → JSON — delegates to the store").
func (s *Store) Stats(organization string, query jobs.StatsQuery, aggregations []jobs.Aggregation) (map[string]any, error) {
	where := `WHERE organization = ?`
	args := []any{organization}

	for _, f := range query.Filters {
		column, ok := statsFilterColumns[f.Field]
		if !ok {
			return nil, fmt.Errorf("stats: unsupported filter field %q", f.Field)
		}
		where += fmt.Sprintf(` AND %s = ?`, column)
		args = append(args, f.Value)
	}
	if query.From != nil {
		where += ` AND created_at >= ?`
		args = append(args, query.From.UTC().Format(time.RFC3339Nano))
	}
	if query.To != nil {
		where += ` AND created_at < ?`
		args = append(args, query.To.UTC().Format(time.RFC3339Nano))
	}

	out := make(map[string]any, len(aggregations))
	for _, agg := range aggregations {
		value, err := s.runAggregation(where, args, agg)
		if err != nil {
			return nil, fmt.Errorf("stats: aggregation %q: %w", agg.Name, err)
		}
		out[agg.Name] = value
	}
	return out, nil
}

// runAggregation computes a single Aggregation over the jobs matching
// where/args.
func (s *Store) runAggregation(where string, args []any, agg jobs.Aggregation) (any, error) {
	switch agg.Type {
	case jobs.AggCount:
		var count int
		if err := s.db.QueryRow(`SELECT COUNT(*) FROM jobs `+where, args...).Scan(&count); err != nil {
			return nil, err
		}
		return count, nil

	case jobs.AggCountBy:
		column, ok := statsAggColumns[agg.Field]
		if !ok {
			return nil, fmt.Errorf("unsupported group-by field %q", agg.Field)
		}
		rows, err := s.db.Query(`SELECT `+column+`, COUNT(*) FROM jobs `+where+` GROUP BY `+column, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		buckets := make(map[string]int)
		for rows.Next() {
			var key string
			var count int
			if err := rows.Scan(&key, &count); err != nil {
				return nil, err
			}
			buckets[key] = count
		}
		return buckets, rows.Err()

	case jobs.AggAvg:
		if agg.Field != "duration_ms" {
			return nil, fmt.Errorf("unsupported average field %q", agg.Field)
		}
		var avg sql.NullFloat64
		if err := s.db.QueryRow(`SELECT AVG(duration_ms) FROM jobs `+where, args...).Scan(&avg); err != nil {
			return nil, err
		}
		if !avg.Valid {
			return 0.0, nil
		}
		return avg.Float64, nil

	default:
		return nil, fmt.Errorf("unsupported aggregation type %q", agg.Type)
	}
}

const jobSelectColumns = `SELECT
	id, analyzer_definition_id, analyzer_id, analyzer_name, organization,
	data_type, tlp, message, parameters,
	data, attachment_id, attachment_name, attachment_content_type, attachment_size, attachment_hash,
	status, start_date, end_date, input, error_message, duration_ms, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*jobs.Job, error) {
	var (
		j                                                         jobs.Job
		paramsRaw                                                 string
		dataValue                                                 sql.NullString
		attID, attName, attContentType, attHash                   sql.NullString
		attSize                                                   sql.NullInt64
		status                                                    string
		startDate, endDate                                        sql.NullString
		durationMS                                                sql.NullInt64
		createdAt, updatedAt                                      string
	)

	if err := s.Scan(
		&j.ID, &j.AnalyzerDefinitionID, &j.AnalyzerID, &j.AnalyzerName, &j.Organization,
		&j.DataType, &j.TLP, &j.Message, &paramsRaw,
		&dataValue, &attID, &attName, &attContentType, &attSize, &attHash,
		&status, &startDate, &endDate, &j.Input, &j.ErrorMessage, &durationMS, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	j.Status = jobs.Status(status)
	j.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if durationMS.Valid {
		j.DurationMS = &durationMS.Int64
	}
	if startDate.Valid && startDate.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, startDate.String)
		if err == nil {
			j.StartDate = &ts
		}
	}
	if endDate.Valid && endDate.String != "" {
		ts, err := time.Parse(time.RFC3339Nano, endDate.String)
		if err == nil {
			j.EndDate = &ts
		}
	}

	if err := json.Unmarshal([]byte(paramsRaw), &j.Parameters); err != nil {
		j.Parameters = map[string]any{}
	}

	if dataValue.Valid {
		v := dataValue.String
		j.Observable.Data = &v
	} else if attID.Valid {
		j.Observable.Attachment = &attachment.Attachment{
			ID:          attID.String,
			Name:        attName.String,
			ContentType: attContentType.String,
			Size:        attSize.Int64,
			Hash:        attHash.String,
		}
	}

	return &j, nil
}

func scanArtifact(s scanner) (*jobs.Artifact, error) {
	var (
		a                                                       jobs.Artifact
		dataValue                                               sql.NullString
		attID, attName, attContentType, attHash                 sql.NullString
		attSize                                                 sql.NullInt64
		createdAt                                               string
	)

	if err := s.Scan(
		&a.ID, &a.ReportID, &a.DataType,
		&dataValue, &attID, &attName, &attContentType, &attSize, &attHash,
		&createdAt,
	); err != nil {
		return nil, err
	}

	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if dataValue.Valid {
		v := dataValue.String
		a.Observable.Data = &v
	} else if attID.Valid {
		a.Observable.Attachment = &attachment.Attachment{
			ID:          attID.String,
			Name:        attName.String,
			ContentType: attContentType.String,
			Size:        attSize.Int64,
			Hash:        attHash.String,
		}
	}
	return &a, nil
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func truncateMessage(msg string) string {
	if len(msg) <= maxErrorMessageBytes {
		return msg
	}
	return msg[:maxErrorMessageBytes]
}

// IsNotFound reports whether err is sql.ErrNoRows or jobs.ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, jobs.ErrNotFound)
}

// IsInvalidTransition reports whether err is an invalid job status
// transition, including lost optimistic-concurrency races.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
