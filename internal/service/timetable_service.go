package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/adelinocpp/postgraduate-schedules/internal/dto"
	"github.com/adelinocpp/postgraduate-schedules/internal/models"
	"github.com/adelinocpp/postgraduate-schedules/internal/repository"
	"github.com/adelinocpp/postgraduate-schedules/pkg/config"
	appErrors "github.com/adelinocpp/postgraduate-schedules/pkg/errors"
	"github.com/adelinocpp/postgraduate-schedules/pkg/jobs"
	"github.com/adelinocpp/postgraduate-schedules/pkg/logger"
	"github.com/adelinocpp/postgraduate-schedules/pkg/middleware/requestid"
)

// PublishJobType is the job type dispatched after a timetable is published.
const PublishJobType = "timetable.publish"

type timetableRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, record *models.TimetableRecord) error
	FindByID(ctx context.Context, id string) (*models.TimetableRecord, error)
	List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableRecord, int, error)
	Latest(ctx context.Context, key models.TimetableKey) (*models.TimetableRecord, error)
	FindPublished(ctx context.Context, exec sqlx.ExtContext, key models.TimetableKey) (*models.TimetableRecord, error)
	TransitionStatus(ctx context.Context, exec sqlx.ExtContext, id string, from, to models.TimetableStatus, publishedAt *time.Time) error
	DeleteDraft(ctx context.Context, id string) error
}

type disciplineSource interface {
	LoadRows(ctx context.Context, course string) ([]models.RawDisciplineRow, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type publishQueue interface {
	Enqueue(job jobs.Job) error
}

// PublishJob is the payload of a publication job.
type PublishJob struct {
	TimetableID string
	RequestedBy string
	RequestID   string
}

// TimetableConfig governs generation and proposal behaviour.
type TimetableConfig struct {
	ProposalTTL      time.Duration
	BatchConcurrency int
	Now              func() time.Time
}

// TimetableDeps groups the collaborators of TimetableService. Tx, Cache,
// Metrics and Publisher are optional.
type TimetableDeps struct {
	Plan        config.Plan
	Holidays    models.HolidayTable
	Disciplines disciplineSource
	Repo        timetableRepository
	Tx          txProvider
	Cache       *CacheService
	Metrics     *MetricsService
	Publisher   publishQueue
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// TimetableService generates, versions and publishes timetables.
type TimetableService struct {
	plan        config.Plan
	patterns    map[models.CohortMode]models.SlotPattern
	holidays    models.HolidayTable
	disciplines disciplineSource
	repo        timetableRepository
	tx          txProvider
	cache       *CacheService
	metrics     *MetricsService
	publisher   publishQueue
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         TimetableConfig
	store       *proposalStore
}

// NewTimetableService builds the slot patterns of the plan and wires the
// service. A plan whose grids break slot pattern rules is rejected.
func NewTimetableService(deps TimetableDeps, cfg TimetableConfig) (*TimetableService, error) {
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Holidays.Mandatory == nil {
		deps.Holidays = models.NewHolidayTable()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = 4
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	patterns := make(map[models.CohortMode]models.SlotPattern, len(deps.Plan.Patterns))
	for _, pp := range deps.Plan.Patterns {
		pattern, err := PatternFromPlan(pp)
		if err != nil {
			return nil, err
		}
		patterns[pattern.CohortMode] = pattern
	}

	return &TimetableService{
		plan:        deps.Plan,
		patterns:    patterns,
		holidays:    deps.Holidays,
		disciplines: deps.Disciplines,
		repo:        deps.Repo,
		tx:          deps.Tx,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		publisher:   deps.Publisher,
		validator:   deps.Validator,
		logger:      deps.Logger,
		cfg:         cfg,
		store:       newProposalStore(cfg.ProposalTTL, cfg.Now),
	}, nil
}

// PatternFromPlan converts a plan grid into a validated slot pattern.
func PatternFromPlan(pp config.PatternPlan) (models.SlotPattern, error) {
	mode, ok := models.ParseCohortMode(pp.CohortMode)
	if !ok {
		return models.SlotPattern{}, invalidPattern("unknown cohort mode %q", pp.CohortMode)
	}
	slots := make([]models.SlotDefinition, 0, len(pp.Slots))
	for _, sp := range pp.Slots {
		weekday, err := ParseWeekday(sp.Weekday)
		if err != nil {
			return models.SlotPattern{}, err
		}
		slots = append(slots, models.SlotDefinition{Weekday: weekday, StartTime: sp.Start, EndTime: sp.End})
	}
	occurrences := make(map[int]int, len(pp.Semesters))
	for _, sem := range pp.Semesters {
		occurrences[sem.Number] = sem.Occurrences
	}
	return NewSlotPattern(mode, slots, occurrences)
}

// Generate runs the pipeline for one request and keeps the envelope as a
// proposal until it is saved or expires.
func (s *TimetableService) Generate(ctx context.Context, req dto.GenerateTimetableRequest) (*dto.GenerateTimetableResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable generation payload")
	}
	result, err := s.run(ctx, req)
	if err != nil {
		return nil, err
	}

	proposal := timetableProposal{
		ID:        uuid.NewString(),
		Envelope:  result.Envelope,
		CreatedAt: s.cfg.Now().UTC(),
	}
	s.store.Save(proposal)

	return &dto.GenerateTimetableResponse{
		ProposalID: proposal.ID,
		ExpiresAt:  proposal.CreatedAt.Add(s.cfg.ProposalTTL),
		Catalog: dto.CatalogOverview{
			Disciplines: len(result.Catalog.Disciplines),
			TotalHours:  roundHours(result.Catalog.TotalHours()),
			LoadTiers:   result.Catalog.LoadTiers(),
		},
		Envelope: result.Envelope,
	}, nil
}

// GenerateBatch runs every item independently with bounded parallelism. An
// item failing never cancels the others; its error is reported in place.
func (s *TimetableService) GenerateBatch(ctx context.Context, req dto.BatchGenerateRequest) (*dto.BatchGenerateResponse, error) {
	if len(req.Items) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch requires at least one item")
	}
	if len(req.Items) > 64 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "batch accepts at most 64 items")
	}

	results := make([]dto.BatchItemResult, len(req.Items))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, item := range req.Items {
		i, item := i, item
		g.Go(func() error {
			mode := strings.ToUpper(item.CohortMode)
			if parsed, ok := models.ParseCohortMode(item.CohortMode); ok {
				mode = string(parsed)
			}
			res := dto.BatchItemResult{
				Index: i,
				Key:   fmt.Sprintf("%s/%s/%s/s%d", item.Course, item.Year, mode, item.Semester),
			}
			if err := ctx.Err(); err != nil {
				res.Error = itemError(err)
			} else if proposal, err := s.Generate(ctx, item); err != nil {
				res.Error = itemError(err)
			} else {
				res.Proposal = proposal
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	resp := &dto.BatchGenerateResponse{Items: results}
	for _, res := range results {
		if res.Error != nil {
			resp.Failed++
		} else {
			resp.Succeeded++
		}
	}
	s.log(ctx).Info("timetable batch generated", zap.Int("items", len(results)), zap.Int("failed", resp.Failed))
	return resp, nil
}

func itemError(err error) *dto.ItemError {
	appErr := appErrors.FromError(err)
	return &dto.ItemError{Code: appErr.Code, Message: appErr.Message}
}

func (s *TimetableService) run(ctx context.Context, req dto.GenerateTimetableRequest) (*PipelineResult, error) {
	mode, ok := models.ParseCohortMode(req.CohortMode)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown cohort mode %q", req.CohortMode))
	}
	pattern, ok := s.patterns[mode]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidPattern, fmt.Sprintf("no slot pattern configured for %s cohorts", mode))
	}
	patternPlan, _ := s.plan.Pattern(string(mode))
	semester, ok := patternPlan.Semester(req.Semester)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidSemester, fmt.Sprintf("semester %d is not configured for %s cohorts", req.Semester, mode))
	}
	capacity := semester.CapacityHours
	if req.CapacityHours != nil {
		capacity = *req.CapacityHours
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "startDate must be YYYY-MM-DD")
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "endDate must be YYYY-MM-DD")
	}

	course := strings.ToLower(strings.TrimSpace(req.Course))
	if cp, ok := s.plan.Course(course); ok {
		course = cp.Key
	}
	rows, err := s.catalogRows(ctx, course, req.Disciplines)
	if err != nil {
		return nil, err
	}

	began := time.Now()
	result, err := RunPipeline(PipelineInput{
		Course:        course,
		Year:          req.Year,
		Semester:      req.Semester,
		Start:         start,
		End:           end,
		Holidays:      s.holidays,
		Pattern:       pattern,
		CapacityHours: capacity,
		Rows:          rows,
		GeneratedAt:   s.cfg.Now(),
	})
	if err != nil {
		s.log(ctx).Warn("timetable generation aborted",
			zap.String("course", course),
			zap.String("year", req.Year),
			zap.String("mode", string(mode)),
			zap.Int("semester", req.Semester),
			zap.Error(err),
		)
		return nil, err
	}

	env := &result.Envelope
	s.metrics.ObserveGeneration(env, time.Since(began))
	s.log(ctx).Info("timetable generated",
		zap.String("course", course),
		zap.String("year", req.Year),
		zap.String("mode", string(mode)),
		zap.Int("semester", req.Semester),
		zap.Int("slots", env.SlotCount),
		zap.Int("sessions", len(env.Assignment.Sessions)),
		zap.Int("conflicts", len(env.Report.Conflicts)),
		zap.Int("warnings", len(env.Report.Warnings)),
		zap.String("status", string(env.Report.Status)),
	)
	return result, nil
}

func (s *TimetableService) catalogRows(ctx context.Context, course string, inline []dto.DisciplineRowRequest) ([]models.RawDisciplineRow, error) {
	if len(inline) > 0 {
		rows := make([]models.RawDisciplineRow, 0, len(inline))
		for _, r := range inline {
			rows = append(rows, models.RawDisciplineRow{RowID: r.RowID, Name: r.Name, Code: r.Code, Hours: r.Hours, Encounters: r.Encounters})
		}
		return rows, nil
	}
	if s.disciplines == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "disciplines are required when no catalog source is configured")
	}
	rows, err := s.disciplines.LoadRows(ctx, course)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrEmptyCatalog.Code, appErrors.ErrEmptyCatalog.Status, "failed to read discipline catalog")
	}
	return rows, nil
}

// Save persists a proposal as the next draft version of its line.
func (s *TimetableService) Save(ctx context.Context, req dto.SaveTimetableRequest) (*models.TimetableRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save timetable payload")
	}
	proposal, ok := s.store.Get(req.ProposalID)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
	}

	env := proposal.Envelope
	payload, err := json.Marshal(env)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode timetable")
	}
	record := &models.TimetableRecord{
		Course:      env.Course,
		Year:        env.Year,
		CohortMode:  env.CohortMode,
		Semester:    env.Semester,
		Status:      models.TimetableStatusDraft,
		Validity:    env.Report.Status,
		CalendarRef: env.CalendarRef,
		Payload:     types.JSONText(payload),
		GeneratedAt: env.GeneratedAt,
		Envelope:    &env,
	}

	start := time.Now()
	err = s.withTx(ctx, func(exec sqlx.ExtContext) error {
		return s.repo.CreateVersioned(ctx, exec, record)
	})
	s.metrics.ObserveDBQuery("timetable_save", time.Since(start))
	if err != nil {
		return nil, persistenceError(err, "failed to save timetable")
	}

	s.store.Delete(req.ProposalID)
	s.cache.Evict(ctx, repository.LatestCacheKey(record.Key()))
	s.log(ctx).Info("timetable saved",
		zap.String("id", record.ID),
		zap.String("key", record.Key().String()),
		zap.Int("version", record.Version),
		zap.String("validity", string(record.Validity)),
	)
	return record, nil
}

// List returns stored versions matching the filter.
func (s *TimetableService) List(ctx context.Context, filter models.TimetableFilter) ([]models.TimetableRecord, *models.Pagination, error) {
	if filter.CohortMode != "" {
		mode, ok := models.ParseCohortMode(string(filter.CohortMode))
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown cohort mode %q", filter.CohortMode))
		}
		filter.CohortMode = mode
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}
	if filter.PageSize > repository.MaxPageSize {
		filter.PageSize = repository.MaxPageSize
	}
	start := time.Now()
	records, total, err := s.repo.List(ctx, filter)
	s.metrics.ObserveDBQuery("timetable_list", time.Since(start))
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list timetables")
	}
	return records, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Get loads a stored version with its envelope.
func (s *TimetableService) Get(ctx context.Context, id string) (*models.TimetableRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "timetable id is required")
	}
	key := repository.TimetableCacheKey(id)
	var cached models.TimetableRecord
	if s.cache.Get(ctx, key, &cached) && cached.Envelope != nil {
		return &cached, nil
	}

	start := time.Now()
	record, err := s.repo.FindByID(ctx, id)
	s.metrics.ObserveDBQuery("timetable_get", time.Since(start))
	if err != nil {
		return nil, lookupError(err)
	}
	if _, err := record.DecodeEnvelope(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable payload is unreadable")
	}
	s.cache.Set(ctx, key, record, 0)
	return record, nil
}

// Latest returns the newest version of a line.
func (s *TimetableService) Latest(ctx context.Context, key models.TimetableKey) (*models.TimetableRecord, error) {
	mode, ok := models.ParseCohortMode(string(key.CohortMode))
	if !ok || key.Course == "" || key.Year == "" || key.Semester <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "course, year, mode and semester are required")
	}
	key.CohortMode = mode
	key.Course = strings.ToLower(strings.TrimSpace(key.Course))

	cacheKey := repository.LatestCacheKey(key)
	var cached models.TimetableRecord
	if s.cache.Get(ctx, cacheKey, &cached) && cached.Envelope != nil {
		return &cached, nil
	}

	start := time.Now()
	record, err := s.repo.Latest(ctx, key)
	s.metrics.ObserveDBQuery("timetable_latest", time.Since(start))
	if err != nil {
		return nil, lookupError(err)
	}
	if _, err := record.DecodeEnvelope(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored timetable payload is unreadable")
	}
	s.cache.Set(ctx, cacheKey, record, 0)
	return record, nil
}

// Compare diffs two versions of the same line.
func (s *TimetableService) Compare(ctx context.Context, fromID, toID string) (*dto.TimetableComparison, error) {
	from, err := s.Get(ctx, fromID)
	if err != nil {
		return nil, err
	}
	to, err := s.Get(ctx, toID)
	if err != nil {
		return nil, err
	}
	if from.Key() != to.Key() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot compare %s with %s", from.Key(), to.Key()))
	}
	return CompareEnvelopes(from, to), nil
}

// CompareEnvelopes contrasts two decoded records. Sessions are matched per
// discipline by session number.
func CompareEnvelopes(from, to *models.TimetableRecord) *dto.TimetableComparison {
	a, b := from.Envelope, to.Envelope
	cmp := &dto.TimetableComparison{
		FromID:              from.ID,
		ToID:                to.ID,
		FromVersion:         from.Version,
		ToVersion:           to.Version,
		FromStatus:          a.Report.Status,
		ToStatus:            b.Report.Status,
		StatusChanged:       a.Report.Status != b.Report.Status,
		AllocatedHoursDelta: roundHours(b.Report.AllocatedHours - a.Report.AllocatedHours),
		SessionDelta:        len(b.Assignment.Sessions) - len(a.Assignment.Sessions),
		ConflictDelta:       len(b.Report.Conflicts) - len(a.Report.Conflicts),
		WarningDelta:        len(b.Report.Warnings) - len(a.Report.Warnings),
		CalendarChanged:     a.CalendarRef != b.CalendarRef,
		Disciplines:         make([]dto.DisciplineDiff, 0),
	}

	before := sessionIndex(a.Assignment)
	after := sessionIndex(b.Assignment)
	codes := make([]string, 0, len(before)+len(after))
	for code := range before {
		codes = append(codes, code)
	}
	for code := range after {
		if _, ok := before[code]; !ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	for _, code := range codes {
		diff := dto.DisciplineDiff{DisciplineCode: code, Added: []string{}, Removed: []string{}, Moved: []dto.SessionMove{}}
		old, cur := before[code], after[code]
		for _, session := range a.Assignment.SessionsFor(code) {
			key, ok := cur[session.Number]
			switch {
			case !ok:
				diff.Removed = append(diff.Removed, session.Slot.Key)
			case key != session.Slot.Key:
				diff.Moved = append(diff.Moved, dto.SessionMove{Number: session.Number, From: session.Slot.Key, To: key})
			}
		}
		for _, session := range b.Assignment.SessionsFor(code) {
			if _, ok := old[session.Number]; !ok {
				diff.Added = append(diff.Added, session.Slot.Key)
			}
		}
		if len(diff.Added)+len(diff.Removed)+len(diff.Moved) > 0 {
			cmp.Disciplines = append(cmp.Disciplines, diff)
		}
	}
	return cmp
}

func sessionIndex(a models.Assignment) map[string]map[int]string {
	index := make(map[string]map[int]string)
	for _, session := range a.Sessions {
		if index[session.DisciplineCode] == nil {
			index[session.DisciplineCode] = make(map[int]string)
		}
		index[session.DisciplineCode][session.Number] = session.Slot.Key
	}
	return index
}

// Publish marks a valid draft as the published version of its line,
// archives the previously published version and queues rendering and
// notification.
func (s *TimetableService) Publish(ctx context.Context, id, actor string) (*dto.PublishResponse, error) {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err)
	}
	switch record.Status {
	case models.TimetableStatusPublished:
		return nil, appErrors.Clone(appErrors.ErrConflict, "timetable is already published")
	case models.TimetableStatusArchived:
		return nil, appErrors.Clone(appErrors.ErrConflict, "archived timetables cannot be published again")
	}
	if record.Validity != models.ValidationStatusValid {
		return nil, appErrors.Clone(appErrors.ErrInvalidTimetable, fmt.Sprintf("timetable %s has conflicts and cannot be published", record.ID))
	}

	now := s.cfg.Now().UTC()
	archivedID := ""
	start := time.Now()
	err = s.withTx(ctx, func(exec sqlx.ExtContext) error {
		previous, err := s.repo.FindPublished(ctx, exec, record.Key())
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if previous != nil && previous.ID != record.ID {
			err := s.repo.TransitionStatus(ctx, exec, previous.ID, models.TimetableStatusPublished, models.TimetableStatusArchived, nil)
			if err != nil {
				return staleStatusError(err)
			}
			archivedID = previous.ID
		}
		err = s.repo.TransitionStatus(ctx, exec, record.ID, models.TimetableStatusDraft, models.TimetableStatusPublished, &now)
		return staleStatusError(err)
	})
	s.metrics.ObserveDBQuery("timetable_publish", time.Since(start))
	if err != nil {
		return nil, persistenceError(err, "failed to publish timetable")
	}

	record.Status = models.TimetableStatusPublished
	record.PublishedAt = &now
	keys := []string{repository.TimetableCacheKey(record.ID)}
	if archivedID != "" {
		keys = append(keys, repository.TimetableCacheKey(archivedID))
	}
	s.cache.Evict(ctx, keys...)
	s.cache.Invalidate(ctx, repository.LinePattern(record.Key()))

	resp := &dto.PublishResponse{Timetable: *record, ArchivedID: archivedID}
	if s.publisher != nil {
		job := jobs.Job{
			ID:       uuid.NewString(),
			Type:     PublishJobType,
			Payload:  PublishJob{TimetableID: record.ID, RequestedBy: actor, RequestID: requestid.FromContext(ctx)},
			Enqueued: now,
		}
		if err := s.publisher.Enqueue(job); err != nil {
			s.log(ctx).Warn("publish job not queued", zap.String("id", record.ID), zap.Error(err))
		} else {
			resp.JobID = job.ID
		}
	}
	s.log(ctx).Info("timetable published",
		zap.String("id", record.ID),
		zap.String("key", record.Key().String()),
		zap.Int("version", record.Version),
		zap.String("archived", archivedID),
		zap.String("actor", actor),
	)
	return resp, nil
}

// Delete removes a draft version.
func (s *TimetableService) Delete(ctx context.Context, id string) error {
	record, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err)
	}
	if record.Status != models.TimetableStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft timetables can be deleted")
	}
	start := time.Now()
	err = s.repo.DeleteDraft(ctx, id)
	s.metrics.ObserveDBQuery("timetable_delete", time.Since(start))
	if err != nil {
		return lookupError(err)
	}
	s.cache.Evict(ctx, repository.TimetableCacheKey(id))
	s.cache.Invalidate(ctx, repository.LinePattern(record.Key()))
	return nil
}

// Calendar previews the calendar a generation run would use.
func (s *TimetableService) Calendar(ctx context.Context, q dto.CalendarQuery) (*dto.CalendarPreviewResponse, error) {
	if err := s.validator.Struct(q); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar query")
	}
	mode, ok := models.ParseCohortMode(q.Mode)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown cohort mode %q", q.Mode))
	}
	start, _ := time.Parse(dateLayout, q.Start)
	end, _ := time.Parse(dateLayout, q.End)
	days, err := BuildCalendar(start, end, s.holidays, mode)
	if err != nil {
		return nil, err
	}

	resp := &dto.CalendarPreviewResponse{
		CohortMode:   mode,
		Start:        q.Start,
		End:          q.End,
		ExcludedDays: make(map[string]int),
		CalendarRef:  CalendarReference(days),
		Holidays:     s.holidays.Summary(),
		Days:         days,
	}
	for _, day := range days {
		switch {
		case day.IsTeachingEligible:
			resp.EligibleDays++
		case day.ExclusionReason != models.ExclusionNone:
			resp.ExcludedDays[string(day.ExclusionReason)]++
		}
	}
	return resp, nil
}

func (s *TimetableService) withTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	if s.tx == nil {
		return fn(nil)
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *TimetableService) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, s.logger)
}

func lookupError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load timetable")
}

// staleStatusError reports a status transition that lost a race with another
// request as a conflict rather than a missing record.
func staleStatusError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrConflict.Code, appErrors.ErrConflict.Status,
			"timetable status changed concurrently, reload and retry")
	}
	return err
}

func persistenceError(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, "timetable not found")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}

// --- Proposal cache ---

type timetableProposal struct {
	ID        string
	Envelope  models.ResultEnvelope
	CreatedAt time.Time
}

type proposalStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]timetableProposal
}

func newProposalStore(ttl time.Duration, now func() time.Time) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		now:   now,
		items: make(map[string]timetableProposal),
	}
}

func (s *proposalStore) Save(proposal timetableProposal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ID] = proposal
	for id, item := range s.items {
		if s.expired(item) {
			delete(s.items, id)
		}
	}
}

func (s *proposalStore) Get(id string) (timetableProposal, bool) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return timetableProposal{}, false
	}
	if s.expired(proposal) {
		s.Delete(id)
		return timetableProposal{}, false
	}
	return proposal, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

func (s *proposalStore) expired(p timetableProposal) bool {
	return s.now().Sub(p.CreatedAt) > s.ttl
}
