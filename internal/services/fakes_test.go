package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teamhub/assessment-engine/internal/events"
	"github.com/teamhub/assessment-engine/internal/models"
	"github.com/teamhub/assessment-engine/internal/proctoring"
	"github.com/teamhub/assessment-engine/internal/repositories"
	"github.com/teamhub/assessment-engine/internal/scorer"
	"github.com/teamhub/assessment-engine/internal/validator"
	"gorm.io/gorm"
)

// ===== IN-MEMORY REPOSITORY =====

// memStore implements repositories.Repository over maps. Every method takes
// the store lock, so concurrent callers interleave between statements the
// way separate transactions would.
type memStore struct {
	mu     sync.Mutex
	nextID uint

	tests       map[uint]*models.Test
	questions   map[uint]*models.Question
	assignments map[uint][]models.TestAssignment
	attempts    map[uint]*models.TestAttempt
	answers     map[uint]*models.AttemptAnswer
	events      []models.ProctorEvent
	suggestions map[uint]*models.AiGradingSuggestion
	memberships []models.Membership
	roster      map[uint][]uint
}

func newMemStore() *memStore {
	return &memStore{
		tests:       map[uint]*models.Test{},
		questions:   map[uint]*models.Question{},
		assignments: map[uint][]models.TestAssignment{},
		attempts:    map[uint]*models.TestAttempt{},
		answers:     map[uint]*models.AttemptAnswer{},
		suggestions: map[uint]*models.AiGradingSuggestion{},
		roster:      map[uint][]uint{},
	}
}

func (m *memStore) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memStore) Test() repositories.TestRepository             { return memTests{m} }
func (m *memStore) Question() repositories.QuestionRepository     { return memQuestions{m} }
func (m *memStore) Assignment() repositories.AssignmentRepository { return memAssignments{m} }
func (m *memStore) Attempt() repositories.AttemptRepository       { return memAttempts{m} }
func (m *memStore) Answer() repositories.AnswerRepository         { return memAnswers{m} }
func (m *memStore) ProctorEvent() repositories.ProctorEventRepository {
	return memProctorEvents{m}
}
func (m *memStore) Suggestion() repositories.SuggestionRepository { return memSuggestions{m} }
func (m *memStore) Directory() repositories.DirectoryRepository   { return memDirectory{m} }

func (m *memStore) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (m *memStore) addMember(teamID uint, userID string, role models.MemberRole, subteamID *uint) uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.memberships = append(m.memberships, models.Membership{ID: id, TeamID: teamID, UserID: userID, Role: role, SubteamID: subteamID})
	return id
}

func (m *memStore) attemptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.attempts)
}

func (m *memStore) answerFor(attemptID, questionID uint) *models.AttemptAnswer {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			cp := *a
			return &cp
		}
	}
	return nil
}

func copyQuestion(q *models.Question) models.Question {
	cp := *q
	cp.Options = append([]models.QuestionOption(nil), q.Options...)
	return cp
}

// ----- tests -----

type memTests struct{ *memStore }

func (r memTests) Create(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	test.ID = r.id()
	test.CreatedAt = time.Now()
	test.Version = 1
	cp := *test
	cp.Questions, cp.Assignments = nil, nil
	r.tests[test.ID] = &cp
	return nil
}

func (r memTests) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	cp.HasPassword = cp.RequiresPassword()
	return &cp, nil
}

func (r memTests) GetWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Test, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *t
	cp.HasPassword = cp.RequiresPassword()
	cp.Questions = r.questionsOf(id)
	cp.Assignments = append([]models.TestAssignment(nil), r.assignments[id]...)
	return &cp, nil
}

func (r memTests) questionsOf(testID uint) []models.Question {
	var out []models.Question
	for _, q := range r.questions {
		if q.TestID == testID {
			out = append(out, copyQuestion(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r memTests) Update(ctx context.Context, tx *gorm.DB, test *models.Test) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tests[test.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	test.Version++
	cp := *test
	cp.Questions, cp.Assignments = nil, nil
	r.tests[test.ID] = &cp
	return nil
}

func (r memTests) ListByTeam(ctx context.Context, tx *gorm.DB, teamID uint, filters repositories.TestFilters) ([]*models.Test, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Test
	for _, t := range r.tests {
		if t.TeamID != teamID || (filters.Status != nil && t.Status != *filters.Status) {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

// ----- questions -----

type memQuestions struct{ *memStore }

func (r memQuestions) Create(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	question.ID = r.id()
	for i := range question.Options {
		question.Options[i].ID = r.id()
		question.Options[i].QuestionID = question.ID
	}
	cp := copyQuestion(question)
	r.questions[question.ID] = &cp
	return nil
}

func (r memQuestions) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := copyQuestion(q)
	return &cp, nil
}

func (r memQuestions) Update(ctx context.Context, tx *gorm.DB, question *models.Question) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[question.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range question.Options {
		question.Options[i].ID = r.id()
		question.Options[i].QuestionID = question.ID
	}
	cp := copyQuestion(question)
	r.questions[question.ID] = &cp
	return nil
}

func (r memQuestions) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.questions[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.questions, id)
	return nil
}

func (r memQuestions) ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return memTests{r.memStore}.questionsOf(testID), nil
}

func (r memQuestions) NextPosition(ctx context.Context, tx *gorm.DB, testID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	highest := 0
	for _, q := range r.questions {
		if q.TestID == testID && q.Position > highest {
			highest = q.Position
		}
	}
	return highest + 1, nil
}

// ----- assignments -----

type memAssignments struct{ *memStore }

func (r memAssignments) ReplaceForTest(ctx context.Context, tx *gorm.DB, testID uint, assignments []models.TestAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range assignments {
		assignments[i].ID = r.id()
		assignments[i].TestID = testID
	}
	r.assignments[testID] = append([]models.TestAssignment(nil), assignments...)
	return nil
}

func (r memAssignments) ListByTest(ctx context.Context, tx *gorm.DB, testID uint) ([]models.TestAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TestAssignment(nil), r.assignments[testID]...), nil
}

// ----- attempts -----

type memAttempts struct{ *memStore }

func (r memAttempts) keyTaken(key *string, except uint) bool {
	if key == nil {
		return false
	}
	for id, a := range r.attempts {
		if id != except && a.ActiveKey != nil && *a.ActiveKey == *key {
			return true
		}
	}
	return false
}

func (r memAttempts) Create(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keyTaken(attempt.ActiveKey, 0) {
		return gorm.ErrDuplicatedKey
	}
	attempt.ID = r.id()
	attempt.CreatedAt = time.Now()
	cp := *attempt
	cp.Answers = nil
	r.attempts[attempt.ID] = &cp
	return nil
}

func (r memAttempts) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	cp.Answers = memAnswers{r.memStore}.byAttempt(id)
	return &cp, nil
}

func (r memAttempts) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.TestAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAttempts) GetActive(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (*models.TestAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := models.ActiveAttemptKey(membershipID, testID)
	for _, a := range r.attempts {
		if a.ActiveKey != nil && *a.ActiveKey == key {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r memAttempts) CountFinished(ctx context.Context, tx *gorm.DB, membershipID, testID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, a := range r.attempts {
		if a.MembershipID == membershipID && a.TestID == testID && a.Status.IsFinished() {
			n++
		}
	}
	return n, nil
}

func (r memAttempts) Update(ctx context.Context, tx *gorm.DB, attempt *models.TestAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attempts[attempt.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	if r.keyTaken(attempt.ActiveKey, attempt.ID) {
		return gorm.ErrDuplicatedKey
	}
	cp := *attempt
	cp.Answers = nil
	r.attempts[attempt.ID] = &cp
	return nil
}

func (r memAttempts) List(ctx context.Context, tx *gorm.DB, filters repositories.AttemptFilters) ([]*models.TestAttempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*models.TestAttempt
	for _, a := range r.attempts {
		if filters.TestID != nil && a.TestID != *filters.TestID {
			continue
		}
		if filters.MembershipID != nil && a.MembershipID != *filters.MembershipID {
			continue
		}
		if filters.Status != nil && a.Status != *filters.Status {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	total := int64(len(all))
	if filters.Offset > 0 {
		if filters.Offset >= len(all) {
			all = nil
		} else {
			all = all[filters.Offset:]
		}
	}
	if filters.Limit > 0 && len(all) > filters.Limit {
		all = all[:filters.Limit]
	}
	return all, total, nil
}

// ----- answers -----

type memAnswers struct{ *memStore }

func (r memAnswers) find(attemptID, questionID uint) *models.AttemptAnswer {
	for _, a := range r.answers {
		if a.AttemptID == attemptID && a.QuestionID == questionID {
			return a
		}
	}
	return nil
}

func (r memAnswers) byAttempt(attemptID uint) []models.AttemptAnswer {
	var out []models.AttemptAnswer
	for _, a := range r.answers {
		if a.AttemptID == attemptID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r memAnswers) UpsertContent(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range answers {
		if existing := r.find(in.AttemptID, in.QuestionID); existing != nil {
			existing.TextResponse = in.TextResponse
			existing.SelectedOptionIDs = in.SelectedOptionIDs
			existing.NumericResponse = in.NumericResponse
			existing.AnsweredAt = in.AnsweredAt
			in.ID = existing.ID
			continue
		}
		in.ID = r.id()
		cp := *in
		r.answers[cp.ID] = &cp
	}
	return nil
}

func (r memAnswers) UpsertGrades(ctx context.Context, tx *gorm.DB, answers []*models.AttemptAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range answers {
		if existing := r.find(in.AttemptID, in.QuestionID); existing != nil {
			existing.PointsAwarded = in.PointsAwarded
			existing.NeedsManualGrade = in.NeedsManualGrade
			existing.AutoGraded = in.AutoGraded
			existing.GradedAt = in.GradedAt
			existing.GradedBy = in.GradedBy
			existing.GraderNote = in.GraderNote
			in.ID = existing.ID
			continue
		}
		in.ID = r.id()
		cp := *in
		r.answers[cp.ID] = &cp
	}
	return nil
}

func (r memAnswers) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.answers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *a
	return &cp, nil
}

func (r memAnswers) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byAttempt(attemptID), nil
}

func (r memAnswers) ListPendingManual(ctx context.Context, tx *gorm.DB, testID uint) ([]models.AttemptAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AttemptAnswer
	for _, a := range r.answers {
		attempt, ok := r.attempts[a.AttemptID]
		if ok && attempt.TestID == testID && a.IsPendingManual() {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- proctor events -----

type memProctorEvents struct{ *memStore }

func (r memProctorEvents) Append(ctx context.Context, tx *gorm.DB, events []*models.ProctorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range events {
		ev.ID = r.id()
		r.events = append(r.events, *ev)
	}
	return nil
}

func (r memProctorEvents) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.ProctorEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProctorEvent
	for _, ev := range r.events {
		if ev.AttemptID == attemptID {
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// ----- suggestions -----

type memSuggestions struct{ *memStore }

func (r memSuggestions) Upsert(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.suggestions {
		if existing.AttemptID == suggestion.AttemptID && existing.AnswerID == suggestion.AnswerID {
			if existing.Status == models.SuggestionAccepted {
				return false, nil
			}
			suggestion.ID = existing.ID
			break
		}
	}
	if suggestion.ID == 0 {
		suggestion.ID = r.id()
	}
	suggestion.Status = models.SuggestionUnreviewed
	suggestion.ReviewedBy, suggestion.ReviewedAt = nil, nil
	cp := *suggestion
	r.suggestions[cp.ID] = &cp
	return true, nil
}

func (r memSuggestions) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.suggestions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r memSuggestions) GetForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.AiGradingSuggestion, error) {
	return r.GetByID(ctx, tx, id)
}

func (r memSuggestions) Update(ctx context.Context, tx *gorm.DB, suggestion *models.AiGradingSuggestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.suggestions[suggestion.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	cp := *suggestion
	r.suggestions[cp.ID] = &cp
	return nil
}

func (r memSuggestions) ListByAttempt(ctx context.Context, tx *gorm.DB, attemptID uint) ([]models.AiGradingSuggestion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.AiGradingSuggestion
	for _, s := range r.suggestions {
		if s.AttemptID == attemptID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- directory -----

type memDirectory struct{ *memStore }

func (r memDirectory) GetMembership(ctx context.Context, tx *gorm.DB, teamID uint, userID string) (*models.Membership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.memberships {
		if m.TeamID == teamID && m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memDirectory) ListEventIDs(ctx context.Context, tx *gorm.DB, membershipID uint) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.roster[membershipID]...), nil
}

// ===== SCORER MOCK =====

type MockScorer struct {
	mock.Mock
}

func (m *MockScorer) Suggest(ctx context.Context, req scorer.Request) (*scorer.Suggestion, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*scorer.Suggestion), args.Error(1)
	}
	return nil, args.Error(1)
}

// ===== FIXTURE =====

const testTeamID uint = 1

type fixture struct {
	store     *memStore
	services  ServiceManager
	publisher *events.MockEventPublisher
	scorer    *MockScorer
	now       time.Time

	coach    Caller
	learner  Caller
	learner2 Caller
	stranger Caller

	learnerMembership uint
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:     newMemStore(),
		publisher: events.NewMockEventPublisher(logger),
		scorer:    new(MockScorer),
		now:       time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		coach:     Caller{UserID: "coach-1"},
		learner:   Caller{UserID: "learner-1", IPAddress: "10.0.0.7", UserAgent: "test-agent"},
		learner2:  Caller{UserID: "learner-2"},
		stranger:  Caller{UserID: "stranger"},
	}

	f.store.addMember(testTeamID, f.coach.UserID, models.RoleCoach, nil)
	f.learnerMembership = f.store.addMember(testTeamID, f.learner.UserID, models.RoleMember, nil)
	f.store.addMember(testTeamID, f.learner2.UserID, models.RoleMember, nil)

	f.services = NewServiceManager(Dependencies{
		Repo:      f.store,
		Validator: validator.New(),
		Events:    NewEventService(f.publisher, logger),
		Scorer:    f.scorer,
		Policy:    proctoring.DefaultPolicy(),
		Logger:    logger,
		Now:       func() time.Time { return f.now },
	})
	return f
}

type questionSpec struct {
	kind     models.QuestionType
	points   float64
	options  []models.QuestionOption
	accepted []float64
	tol      *float64
}

func mcqSingle(points float64) questionSpec {
	return questionSpec{
		kind:   models.QuestionMCQSingle,
		points: points,
		options: []models.QuestionOption{
			{Position: 1, Label: "A", IsCorrect: true},
			{Position: 2, Label: "B"},
			{Position: 3, Label: "C"},
		},
	}
}

func numeric(points float64, accepted float64, tolerance float64) questionSpec {
	return questionSpec{
		kind:     models.QuestionNumeric,
		points:   points,
		accepted: []float64{accepted},
		tol:      &tolerance,
	}
}

func longText(points float64) questionSpec {
	return questionSpec{kind: models.QuestionLongText, points: points}
}

// seedTest stores a published, team-assigned test open around f.now.
func (f *fixture) seedTest(t *testing.T, mutate func(*models.Test), questions ...questionSpec) *models.Test {
	t.Helper()
	ctx := context.Background()

	start := f.now.Add(-time.Hour)
	end := f.now.Add(time.Hour)
	test := &models.Test{
		TeamID:          testTeamID,
		Title:           "Regional practice",
		DurationMinutes: 60,
		StartAt:         &start,
		EndAt:           &end,
		Status:          models.TestStatusPublished,
		ReleasePolicy:   models.ReleaseImmediate,
		CreatedBy:       f.coach.UserID,
	}
	if mutate != nil {
		mutate(test)
	}
	require.NoError(t, f.store.Test().Create(ctx, nil, test))

	for i, spec := range questions {
		q := &models.Question{
			TestID:         test.ID,
			Position:       i + 1,
			Type:           spec.kind,
			Prompt:         "prompt",
			Points:         spec.points,
			Tolerance:      spec.tol,
			AcceptedValues: spec.accepted,
			Options:        append([]models.QuestionOption(nil), spec.options...),
		}
		require.NoError(t, f.store.Question().Create(ctx, nil, q))
	}
	require.NoError(t, f.store.Assignment().ReplaceForTest(ctx, nil, test.ID, []models.TestAssignment{{Scope: models.ScopeTeam}}))

	details, err := f.store.Test().GetWithDetails(ctx, nil, test.ID)
	require.NoError(t, err)
	return details
}

func (f *fixture) start(t *testing.T, testID uint, caller Caller) *StartResult {
	t.Helper()
	res, err := f.services.Attempt().Start(context.Background(), testID, &StartAttemptRequest{}, caller)
	require.NoError(t, err)
	return res
}

func correctOption(q models.Question) uint {
	return q.CorrectOptionIDs()[0]
}

func wrongOption(q models.Question) uint {
	for _, opt := range q.Options {
		if !opt.IsCorrect {
			return opt.ID
		}
	}
	return 0
}

func strPtr(s string) *string { return &s }
