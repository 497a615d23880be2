package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

const timetableSummaryColumns = `id, course, academic_year, cohort_mode, semester, version, status, validity, calendar_ref, generated_at, published_at, created_at, updated_at`

const timetableColumns = timetableSummaryColumns + `, payload`

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// TimetableRepository persists versioned timetable envelopes.
type TimetableRepository struct {
	db *sqlx.DB
}

// NewTimetableRepository constructs repository.
func NewTimetableRepository(db *sqlx.DB) *TimetableRepository {
	return &TimetableRepository{db: db}
}

func (r *TimetableRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a record assigning the next version of its
// (course, year, cohort mode, semester) line. Two concurrent saves on the same
// line collide on the unique constraint and surface as a conflict.
func (r *TimetableRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, record *models.TimetableRecord) error {
	if record == nil {
		return fmt.Errorf("timetable payload is nil")
	}
	if record.Course == "" || record.Year == "" || record.CohortMode == "" || record.Semester <= 0 {
		return fmt.Errorf("course, year, cohort_mode and semester are required")
	}
	if len(record.Payload) == 0 {
		return fmt.Errorf("timetable payload is empty")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = models.TimetableStatusDraft
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_envelopes WHERE course = $1 AND academic_year = $2 AND cohort_mode = $3 AND semester = $4`
	if err := sqlx.GetContext(ctx, target, &record.Version, nextVersionQuery, record.Course, record.Year, record.CohortMode, record.Semester); err != nil {
		return fmt.Errorf("compute next timetable version: %w", err)
	}

	const insertQuery = `
INSERT INTO timetable_envelopes (id, course, academic_year, cohort_mode, semester, version, status, validity, calendar_ref, payload, generated_at, published_at, created_at, updated_at)
VALUES (:id, :course, :academic_year, :cohort_mode, :semester, :version, :status, :validity, :calendar_ref, :payload, :generated_at, :published_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, record); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				fmt.Sprintf("version %d of %s already exists", record.Version, record.Key()))
		}
		return fmt.Errorf("insert timetable: %w", err)
	}
	return nil
}

// FindByID loads a record with its payload.
func (r *TimetableRepository) FindByID(ctx context.Context, id string) (*models.TimetableRecord, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetable_envelopes WHERE id = $1`
	var record models.TimetableRecord
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// List returns record summaries matching the filter, newest version first,
// together with the total number of matches.
func (r *TimetableRepository) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableRecord, int, error) {
	conditions := make([]string, 0, 5)
	args := make([]interface{}, 0, 7)
	add := func(column string, value interface{}) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if filter.Course != "" {
		add("course", filter.Course)
	}
	if filter.Year != "" {
		add("academic_year", filter.Year)
	}
	if filter.CohortMode != "" {
		add("cohort_mode", filter.CohortMode)
	}
	if filter.Semester > 0 {
		add("semester", filter.Semester)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM timetable_envelopes`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count timetables: %w", err)
	}

	page, size := normalisePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)
	query := fmt.Sprintf(`SELECT %s FROM timetable_envelopes%s ORDER BY course, academic_year, cohort_mode, semester, version DESC LIMIT $%d OFFSET $%d`,
		timetableSummaryColumns, where, len(args)-1, len(args))

	var records []models.TimetableRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list timetables: %w", err)
	}
	return records, total, nil
}

// Latest returns the highest version of a line.
func (r *TimetableRepository) Latest(ctx context.Context, key models.TimetableKey) (*models.TimetableRecord, error) {
	query := `SELECT ` + timetableColumns + ` FROM timetable_envelopes WHERE course = $1 AND academic_year = $2 AND cohort_mode = $3 AND semester = $4 ORDER BY version DESC LIMIT 1`
	var record models.TimetableRecord
	if err := r.db.GetContext(ctx, &record, query, key.Course, key.Year, key.CohortMode, key.Semester); err != nil {
		return nil, err
	}
	return &record, nil
}

// FindPublished returns the published version of a line, if any. Inside a
// transaction the row stays locked until commit.
func (r *TimetableRepository) FindPublished(ctx context.Context, exec sqlx.ExtContext, key models.TimetableKey) (*models.TimetableRecord, error) {
	query := `SELECT ` + timetableSummaryColumns + ` FROM timetable_envelopes WHERE course = $1 AND academic_year = $2 AND cohort_mode = $3 AND semester = $4 AND status = $5 FOR UPDATE`
	var record models.TimetableRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, key.Course, key.Year, key.CohortMode, key.Semester, models.TimetableStatusPublished); err != nil {
		return nil, err
	}
	return &record, nil
}

// TransitionStatus moves a record from one lifecycle status to another.
// publishedAt is only written when non-nil. sql.ErrNoRows means the record
// is missing or no longer in the from status; a second published version of
// the same line is reported as a conflict.
func (r *TimetableRepository) TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.TimetableStatus, publishedAt *time.Time) error {
	target := r.exec(exec)
	now := time.Now().UTC()

	var (
		query string
		args  []interface{}
	)
	if publishedAt != nil {
		query = `UPDATE timetable_envelopes SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4 AND status = $5`
		args = []interface{}{to, *publishedAt, now, id, from}
	} else {
		query = `UPDATE timetable_envelopes SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`
		args = []interface{}{to, now, id, from}
	}
	result, err := target.ExecContext(ctx, query, args...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
				"another version of this timetable was published concurrently")
		}
		return fmt.Errorf("update timetable status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable status rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteDraft removes a record still in DRAFT status.
func (r *TimetableRepository) DeleteDraft(ctx context.Context, id string) error {
	const query = `DELETE FROM timetable_envelopes WHERE id = $1 AND status = $2`
	result, err := r.db.ExecContext(ctx, query, id, models.TimetableStatusDraft)
	if err != nil {
		return fmt.Errorf("delete timetable: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("timetable rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MaxPageSize caps the number of records returned by List.
const MaxPageSize = 100

func normalisePage(page, size int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if size <= 0 {
		size = 20
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}
