package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
)

func newTimetableRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var weeklyKey = models.TimetableKey{Course: "criminologia", Year: "2026", CohortMode: models.CohortModeWeekly, Semester: 1}

func timetableRow(withPayload bool) *sqlmock.Rows {
	columns := []string{"id", "course", "academic_year", "cohort_mode", "semester", "version", "status", "validity", "calendar_ref", "generated_at", "published_at", "created_at", "updated_at"}
	values := []driver.Value{"tt-1", "criminologia", "2026", "WEEKLY", 1, 3, "DRAFT", "VALID", "abc", time.Now(), nil, time.Now(), time.Now()}
	if withPayload {
		columns = append(columns, "payload")
		values = append(values, []byte(`{"course":"criminologia","semester":1}`))
	}
	return sqlmock.NewRows(columns).AddRow(values...)
}

func TestTimetableRepositoryCreateVersioned(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM timetable_envelopes WHERE course = $1 AND academic_year = $2 AND cohort_mode = $3 AND semester = $4")).
		WithArgs("criminologia", "2026", "WEEKLY", 1).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_envelopes")).
		WithArgs(sqlmock.AnyArg(), "criminologia", "2026", "WEEKLY", 1, 3, "DRAFT", "VALID", "abc",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.TimetableRecord{
		Course:      "criminologia",
		Year:        "2026",
		CohortMode:  models.CohortModeWeekly,
		Semester:    1,
		Validity:    models.ValidationStatusValid,
		CalendarRef: "abc",
		Payload:     types.JSONText(`{"course":"criminologia"}`),
		GeneratedAt: time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, repo.CreateVersioned(context.Background(), nil, record))
	assert.Equal(t, 3, record.Version)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.TimetableStatusDraft, record.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedUniqueViolation(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO timetable_envelopes")).
		WillReturnError(&pq.Error{Code: uniqueViolation})

	record := &models.TimetableRecord{
		Course: "criminologia", Year: "2026", CohortMode: models.CohortModeWeekly, Semester: 1,
		Payload: types.JSONText(`{}`),
	}
	err := repo.CreateVersioned(context.Background(), nil, record)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryCreateVersionedRejectsIncompleteRecord(t *testing.T) {
	db, _, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	assert.Error(t, repo.CreateVersioned(context.Background(), nil, nil))
	assert.Error(t, repo.CreateVersioned(context.Background(), nil, &models.TimetableRecord{Course: "x"}))
	assert.Error(t, repo.CreateVersioned(context.Background(), nil, &models.TimetableRecord{
		Course: "x", Year: "2026", CohortMode: models.CohortModeWeekly, Semester: 1,
	}))
}

func TestTimetableRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_envelopes WHERE id = $1")).
		WithArgs("tt-1").
		WillReturnRows(timetableRow(true))

	record, err := repo.FindByID(context.Background(), "tt-1")
	require.NoError(t, err)
	assert.Equal(t, 3, record.Version)
	assert.Equal(t, models.CohortModeWeekly, record.CohortMode)

	env, err := record.DecodeEnvelope()
	require.NoError(t, err)
	assert.Equal(t, "criminologia", env.Course)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_envelopes WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTimetableRepositoryListFiltersAndPaginates(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM timetable_envelopes WHERE course = $1 AND semester = $2")).
		WithArgs("criminologia", 1).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(45))
	mock.ExpectQuery(regexp.QuoteMeta("FROM timetable_envelopes WHERE course = $1 AND semester = $2 ORDER BY course, academic_year, cohort_mode, semester, version DESC LIMIT $3 OFFSET $4")).
		WithArgs("criminologia", 1, 20, 20).
		WillReturnRows(timetableRow(false))

	records, total, err := repo.List(context.Background(), models.TimetableFilter{Course: "criminologia", Semester: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 45, total)
	require.Len(t, records, 1)
	assert.Empty(t, records[0].Payload)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryLatest(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE course = $1 AND academic_year = $2 AND cohort_mode = $3 AND semester = $4 ORDER BY version DESC LIMIT 1")).
		WithArgs("criminologia", "2026", "WEEKLY", 1).
		WillReturnRows(timetableRow(true))

	record, err := repo.Latest(context.Background(), weeklyKey)
	require.NoError(t, err)
	assert.Equal(t, "tt-1", record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryFindPublished(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND status = $5 FOR UPDATE")).
		WithArgs("criminologia", "2026", "WEEKLY", 1, "PUBLISHED").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindPublished(context.Background(), nil, weeklyKey)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryTransitionStatus(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	publishedAt := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_envelopes SET status = $1, published_at = $2, updated_at = $3 WHERE id = $4 AND status = $5")).
		WithArgs("PUBLISHED", publishedAt, sqlmock.AnyArg(), "tt-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_envelopes SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4")).
		WithArgs("ARCHIVED", sqlmock.AnyArg(), "tt-0", "PUBLISHED").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.TransitionStatus(context.Background(), nil, "tt-1", models.TimetableStatusDraft, models.TimetableStatusPublished, &publishedAt))
	err := repo.TransitionStatus(context.Background(), nil, "tt-0", models.TimetableStatusPublished, models.TimetableStatusArchived, nil)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryTransitionStatusSecondPublishConflicts(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE timetable_envelopes SET status = $1, published_at = $2")).
		WillReturnError(&pq.Error{Code: uniqueViolation, Constraint: "idx_timetable_envelopes_published"})

	publishedAt := time.Now()
	err := repo.TransitionStatus(context.Background(), nil, "tt-2", models.TimetableStatusDraft, models.TimetableStatusPublished, &publishedAt)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTimetableRepositoryDeleteDraft(t *testing.T) {
	db, mock, cleanup := newTimetableRepoMock(t)
	defer cleanup()
	repo := NewTimetableRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_envelopes WHERE id = $1 AND status = $2")).
		WithArgs("tt-1", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM timetable_envelopes WHERE id = $1 AND status = $2")).
		WithArgs("tt-2", "DRAFT").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.DeleteDraft(context.Background(), "tt-1"))
	assert.ErrorIs(t, repo.DeleteDraft(context.Background(), "tt-2"), sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheRepositoryWithoutClientMisses(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var out map[string]string
	assert.ErrorIs(t, repo.Get(context.Background(), "k", &out), appErrors.ErrCacheMiss)
	assert.NoError(t, repo.Set(context.Background(), "k", "v", time.Minute))
	assert.NoError(t, repo.Delete(context.Background(), "k"))
	assert.NoError(t, repo.DeleteByPattern(context.Background(), "k*"))
	assert.NoError(t, repo.Close())
	assert.False(t, repo.Enabled())
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "timetables:record:tt-1", TimetableCacheKey("tt-1"))
	assert.Equal(t, "timetables:latest:criminologia/2026/weekly/s1", LatestCacheKey(weeklyKey))
	assert.Equal(t, "timetables:*:criminologia/2026/weekly/s1*", LinePattern(weeklyKey))
}
