package repository

import (
	"context"
	"errors"
	"examhub_backend/internal/model"
	"examhub_backend/internal/testutil"
	"testing"
	"time"
)

func TestCompleteIsConditional(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, db, "Routing", 2)

	attempts := NewAttemptRepository(db)
	answers := NewAnswerRepository(db)

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	attempt := &model.Attempt{UserID: student.ID, ExamID: exam.ID, StartedAt: start, Status: model.AttemptInProgress}
	if err := attempts.Create(ctx, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if err := answers.Upsert(ctx, &model.Answer{AttemptID: attempt.ID, QuestionID: questions[0].ID, SelectedOption: testutil.IntPtr(questions[0].CorrectOption), AnsweredAt: start}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	completion := &Completion{
		FinishedAt:    start.Add(time.Minute),
		Score:         5,
		Correct:       1,
		Unanswered:    1,
		TimeSpent:     60,
		GradedAnswers: []GradedAnswer{{QuestionID: questions[0].ID, Correct: true}},
	}
	var seen []model.Answer
	err := attempts.Complete(ctx, attempt.ID, func(answers []model.Answer) *Completion {
		seen = answers
		return completion
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if len(seen) != 1 || seen[0].QuestionID != questions[0].ID {
		t.Fatalf("graded answers = %+v", seen)
	}

	graded := false
	stale := &Completion{FinishedAt: start.Add(2 * time.Minute), Score: 0, Unanswered: 2, TimeSpent: 120}
	err = attempts.Complete(ctx, attempt.ID, func([]model.Answer) *Completion {
		graded = true
		return stale
	})
	if !errors.Is(err, ErrAttemptNotInProgress) {
		t.Fatalf("second complete err = %v, want ErrAttemptNotInProgress", err)
	}
	if graded {
		t.Fatal("completed attempt was graded again")
	}

	got, err := attempts.FindByID(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Status != model.AttemptCompleted || got.Score == nil || *got.Score != 5 || got.TimeSpent != 60 {
		t.Fatalf("attempt = %+v", got)
	}

	saved, _ := answers.ListByAttempt(ctx, attempt.ID)
	if len(saved) != 1 || saved[0].IsCorrect == nil || !*saved[0].IsCorrect {
		t.Fatalf("answers = %+v", saved)
	}

	inProgress, err := attempts.FindInProgress(ctx, student.ID, exam.ID)
	if err != nil || inProgress != nil {
		t.Fatalf("in progress = %v, %v", inProgress, err)
	}
}

func TestUpsertKeepsLastChoice(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, db, "Routing", 1)

	attempt := &model.Attempt{UserID: student.ID, ExamID: exam.ID, StartedAt: time.Now(), Status: model.AttemptInProgress}
	if err := NewAttemptRepository(db).Create(ctx, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	answers := NewAnswerRepository(db)
	for _, pick := range []*int{testutil.IntPtr(0), testutil.IntPtr(3), nil, testutil.IntPtr(2)} {
		err := answers.Upsert(ctx, &model.Answer{AttemptID: attempt.ID, QuestionID: questions[0].ID, SelectedOption: pick, AnsweredAt: time.Now()})
		if err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	saved, err := answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saved) != 1 || saved[0].SelectedOption == nil || *saved[0].SelectedOption != 2 {
		t.Fatalf("answers = %+v", saved)
	}
}

func TestUpsertRejectedAfterCompletion(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, db, "Routing", 2)

	attempts := NewAttemptRepository(db)
	answers := NewAnswerRepository(db)

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	attempt := &model.Attempt{UserID: student.ID, ExamID: exam.ID, StartedAt: start, Status: model.AttemptInProgress}
	if err := attempts.Create(ctx, attempt); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	err := attempts.Complete(ctx, attempt.ID, func([]model.Answer) *Completion {
		return &Completion{FinishedAt: start.Add(time.Minute), Unanswered: 2, TimeSpent: 60}
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	// 状态检查之后才到达的写入不能落到已结算的记录上
	late := &model.Answer{AttemptID: attempt.ID, QuestionID: questions[1].ID, SelectedOption: testutil.IntPtr(1), AnsweredAt: start.Add(2 * time.Minute)}
	if err := answers.Upsert(ctx, late); !errors.Is(err, ErrAttemptNotInProgress) {
		t.Fatalf("late upsert err = %v, want ErrAttemptNotInProgress", err)
	}
	saved, err := answers.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("answers on completed attempt = %+v", saved)
	}

	unknown := &model.Answer{AttemptID: 999, QuestionID: questions[0].ID, AnsweredAt: start}
	if err := answers.Upsert(ctx, unknown); !errors.Is(err, ErrAttemptNotInProgress) {
		t.Fatalf("unknown attempt err = %v", err)
	}
}
