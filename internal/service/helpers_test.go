package service

import (
	"context"
	"errors"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/testutil"
	"examhub_backend/internal/util"
	"testing"
	"time"

	"gorm.io/gorm"
)

var testStart = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testEnv struct {
	db       *gorm.DB
	clock    *testutil.Clock
	exams    *repository.ExamRepository
	attempts *repository.AttemptRepository
	answers  *repository.AnswerRepository
	engine   *AttemptService
	catalog  *CatalogService
	results  *ResultService
	admin    *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	env := &testEnv{
		db:       db,
		clock:    testutil.NewClock(testStart),
		exams:    repository.NewExamRepository(db),
		attempts: repository.NewAttemptRepository(db),
		answers:  repository.NewAnswerRepository(db),
	}
	stats := repository.NewStatsRepository(db)
	users := repository.NewUserRepository(db)

	env.engine = NewAttemptService(env.exams, env.attempts, env.answers)
	env.engine.Now = env.clock.Now
	env.catalog = NewCatalogService(env.exams, env.attempts)
	env.results = NewResultService(env.exams, env.attempts, env.answers, stats)
	env.admin = NewAdminService(env.exams, env.attempts, stats, users, env.results)
	return env
}

// takeExam 开始考试，按 picks 作答（nil 表示不答）后交卷
func (env *testEnv) takeExam(t *testing.T, userID uint, exam *model.Exam, questions []model.Question, picks []*int) (uint, *FinishResult) {
	t.Helper()
	ctx := context.Background()

	started, err := env.engine.Start(ctx, userID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for i, pick := range picks {
		if pick == nil {
			continue
		}
		if err := env.engine.RecordAnswer(ctx, userID, exam.ID, started.AttemptID, questions[i].ID, pick); err != nil {
			t.Fatalf("record answer %d: %v", i, err)
		}
	}
	env.clock.Advance(90 * time.Second)

	result, err := env.engine.Finish(ctx, userID, exam.ID, started.AttemptID, nil)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	return started.AttemptID, result
}

// picksFor 依次生成 correct 个正确、incorrect 个错误，其余不答
func picksFor(questions []model.Question, correct, incorrect int) []*int {
	picks := make([]*int, len(questions))
	for i, q := range questions {
		switch {
		case i < correct:
			picks[i] = testutil.IntPtr(q.CorrectOption)
		case i < correct+incorrect:
			picks[i] = testutil.IntPtr(testutil.WrongOption(q))
		}
	}
	return picks
}

func assertErr(t *testing.T, got, want error) {
	t.Helper()
	if !errors.Is(got, want) {
		t.Fatalf("expected error %v, got %v", want, got)
	}
}

func assertValidationErr(t *testing.T, err error) {
	t.Helper()
	appErr, ok := util.AsAppError(err)
	if !ok || appErr.Kind != util.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}
