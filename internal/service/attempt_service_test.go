package service

import (
	"context"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/testutil"
	"examhub_backend/internal/util"
	"math"
	"strings"
	"testing"
	"time"
)

func TestStartCreatesAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 5, testutil.WithTimeLimit(600))

	res, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if res.Resumed {
		t.Fatal("new attempt reported as resumed")
	}
	if res.TimeLeft != 600 {
		t.Fatalf("timeLeft = %d, want 600", res.TimeLeft)
	}
	if len(res.Answers) != 0 {
		t.Fatalf("new attempt has %d saved answers", len(res.Answers))
	}
	if len(res.Questions) != len(questions) {
		t.Fatalf("got %d questions, want %d", len(res.Questions), len(questions))
	}
	for i, q := range res.Questions {
		if q.ID != questions[i].ID {
			t.Fatalf("question %d id = %d, want %d (order index)", i, q.ID, questions[i].ID)
		}
		if len(q.Options) != model.OptionCount {
			t.Fatalf("question %d has %d options", i, len(q.Options))
		}
	}

	attempt, err := env.attempts.FindByID(ctx, res.AttemptID)
	if err != nil {
		t.Fatalf("find attempt: %v", err)
	}
	if !attempt.InProgress() || !attempt.StartedAt.Equal(testStart) {
		t.Fatalf("unexpected attempt state %s started at %v", attempt.Status, attempt.StartedAt)
	}
}

func TestStartResumesSameAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 3, testutil.WithTimeLimit(300))

	first, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.RecordAnswer(ctx, student.ID, exam.ID, first.AttemptID, questions[1].ID, testutil.IntPtr(2)); err != nil {
		t.Fatalf("record answer: %v", err)
	}

	prevLeft := first.TimeLeft
	for _, step := range []time.Duration{0, 10 * time.Second, 45 * time.Second, 200 * time.Second} {
		env.clock.Advance(step)

		again, err := env.engine.Start(ctx, student.ID, exam.ID)
		if err != nil {
			t.Fatalf("resume after %v: %v", step, err)
		}
		if again.AttemptID != first.AttemptID {
			t.Fatalf("resume returned attempt %d, want %d", again.AttemptID, first.AttemptID)
		}
		if !again.Resumed {
			t.Fatal("resume not flagged")
		}
		if again.TimeLeft > prevLeft {
			t.Fatalf("timeLeft grew from %d to %d", prevLeft, again.TimeLeft)
		}
		prevLeft = again.TimeLeft

		saved := again.Answers[questions[1].ID]
		if saved == nil || *saved != 2 {
			t.Fatalf("saved answer not returned on resume: %v", again.Answers)
		}
	}
	if prevLeft != 300-255 {
		t.Fatalf("timeLeft = %d, want %d", prevLeft, 300-255)
	}
}

func TestStartPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")

	inactive, _ := testutil.CreateExam(t, env.db, "Inactive", 2, testutil.Inactive())
	closed, _ := testutil.CreateExam(t, env.db, "Closed", 2, testutil.WithDeadline(testStart.Add(-time.Hour)))
	open, _ := testutil.CreateExam(t, env.db, "Open", 2, testutil.WithDeadline(testStart.Add(time.Hour)))
	empty, _ := testutil.CreateExam(t, env.db, "Empty", 0)

	tests := []struct {
		name   string
		examID uint
		want   error
	}{
		{name: "unknown exam", examID: 9999, want: util.ErrExamNotFound},
		{name: "inactive exam", examID: inactive.ID, want: util.ErrExamNotFound},
		{name: "deadline passed", examID: closed.ID, want: util.ErrDeadlinePassed},
		{name: "no questions", examID: empty.ID, want: util.ErrNoQuestions},
		{name: "deadline ahead", examID: open.ID, want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.Start(ctx, student.ID, tc.examID)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertErr(t, err, tc.want)
		})
	}
}

func TestStartRejectedAfterPass(t *testing.T) {
	env := newTestEnv(t)
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 4)

	_, result := env.takeExam(t, student.ID, exam, questions, picksFor(questions, 4, 0))
	if !result.Passed {
		t.Fatalf("expected pass, got %+v", result)
	}

	_, err := env.engine.Start(context.Background(), student.ID, exam.ID)
	assertErr(t, err, util.ErrAlreadyPassed)
}

func TestRecordAnswerLastWriteWins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 2)

	started, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	for _, opt := range []int{0, 3, 1} {
		env.clock.Advance(time.Second)
		if err := env.engine.RecordAnswer(ctx, student.ID, exam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(opt)); err != nil {
			t.Fatalf("record %d: %v", opt, err)
		}
	}

	answers, err := env.answers.ListByAttempt(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 1 {
		t.Fatalf("got %d answer rows, want 1", len(answers))
	}
	if answers[0].SelectedOption == nil || *answers[0].SelectedOption != 1 {
		t.Fatalf("selected = %v, want 1", answers[0].SelectedOption)
	}

	// nil 清空选择
	if err := env.engine.RecordAnswer(ctx, student.ID, exam.ID, started.AttemptID, questions[0].ID, nil); err != nil {
		t.Fatalf("clear answer: %v", err)
	}
	answers, _ = env.answers.ListByAttempt(ctx, started.AttemptID)
	if len(answers) != 1 || answers[0].SelectedOption != nil {
		t.Fatalf("answer not cleared: %+v", answers)
	}
}

func TestRecordAnswerRejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	other := testutil.CreateStudent(t, env.db, "87654321B", "Bruno Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 2)
	otherExam, otherQuestions := testutil.CreateExam(t, env.db, "Other", 2)

	started, err := env.engine.Start(ctx, owner.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	t.Run("foreign attempt", func(t *testing.T) {
		err := env.engine.RecordAnswer(ctx, other.ID, exam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(0))
		assertErr(t, err, util.ErrInvalidAttempt)
	})
	t.Run("exam mismatch", func(t *testing.T) {
		err := env.engine.RecordAnswer(ctx, owner.ID, otherExam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(0))
		assertErr(t, err, util.ErrInvalidAttempt)
	})
	t.Run("unknown attempt", func(t *testing.T) {
		err := env.engine.RecordAnswer(ctx, owner.ID, exam.ID, 9999, questions[0].ID, testutil.IntPtr(0))
		assertErr(t, err, util.ErrInvalidAttempt)
	})
	t.Run("option out of range", func(t *testing.T) {
		err := env.engine.RecordAnswer(ctx, owner.ID, exam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(4))
		assertValidationErr(t, err)
	})
	t.Run("question from another exam", func(t *testing.T) {
		err := env.engine.RecordAnswer(ctx, owner.ID, exam.ID, started.AttemptID, otherQuestions[0].ID, testutil.IntPtr(0))
		assertValidationErr(t, err)
	})
	t.Run("finished attempt", func(t *testing.T) {
		if _, err := env.engine.Finish(ctx, owner.ID, exam.ID, started.AttemptID, nil); err != nil {
			t.Fatalf("finish: %v", err)
		}
		err := env.engine.RecordAnswer(ctx, owner.ID, exam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(0))
		assertErr(t, err, util.ErrInvalidAttempt)
	})
}

func TestRecordAnswerAfterBudgetFinalizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Timed", 4, testutil.WithTimeLimit(60))

	started, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := env.engine.RecordAnswer(ctx, student.ID, exam.ID, started.AttemptID, questions[0].ID, testutil.IntPtr(questions[0].CorrectOption)); err != nil {
		t.Fatalf("record: %v", err)
	}

	// 恰好用完时间仍可作答
	env.clock.Advance(60 * time.Second)
	if err := env.engine.RecordAnswer(ctx, student.ID, exam.ID, started.AttemptID, questions[1].ID, testutil.IntPtr(testutil.WrongOption(questions[1]))); err != nil {
		t.Fatalf("record at budget: %v", err)
	}

	env.clock.Advance(time.Second)
	err = env.engine.RecordAnswer(ctx, student.ID, exam.ID, started.AttemptID, questions[2].ID, testutil.IntPtr(0))
	assertErr(t, err, util.ErrTimeExpired)

	attempt, err := env.attempts.FindByID(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("find attempt: %v", err)
	}
	if attempt.InProgress() {
		t.Fatal("expired attempt still in progress")
	}
	if attempt.CorrectCount != 1 || attempt.IncorrectCount != 1 || attempt.UnansweredCount != 2 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/2", attempt.CorrectCount, attempt.IncorrectCount, attempt.UnansweredCount)
	}
	if attempt.TimeSpent != 61 {
		t.Fatalf("timeSpent = %d, want 61", attempt.TimeSpent)
	}

	answers, _ := env.answers.ListByAttempt(ctx, started.AttemptID)
	if len(answers) != 2 {
		t.Fatalf("late answer was saved: %d rows", len(answers))
	}
}

func TestResumeAfterBudgetFinalizes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, _ := testutil.CreateExam(t, env.db, "Timed", 3, testutil.WithTimeLimit(120))

	first, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	env.clock.Advance(120 * time.Second)
	_, err = env.engine.Start(ctx, student.ID, exam.ID)
	assertErr(t, err, util.ErrTimeExpired)

	attempt, _ := env.attempts.FindByID(ctx, first.AttemptID)
	if attempt.InProgress() || attempt.UnansweredCount != 3 || *attempt.Score != 0 {
		t.Fatalf("attempt not finalized as expired: %+v", attempt)
	}

	// 第二次机会仍然可用
	second, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start second attempt: %v", err)
	}
	if second.AttemptID == first.AttemptID || second.Resumed {
		t.Fatalf("expected a new attempt, got %+v", second)
	}
}

func TestFinishTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, _ := testutil.CreateExam(t, env.db, "Basics", 2)

	started, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stale, err := env.attempts.FindByID(ctx, started.AttemptID)
	if err != nil {
		t.Fatalf("find attempt: %v", err)
	}

	if _, err := env.engine.Finish(ctx, student.ID, exam.ID, started.AttemptID, nil); err != nil {
		t.Fatalf("finish: %v", err)
	}

	_, err = env.engine.Finish(ctx, student.ID, exam.ID, started.AttemptID, nil)
	assertErr(t, err, util.ErrInvalidAttempt)

	// 绕过状态检查直接结算，条件更新拒绝第二次写入
	_, err = env.engine.finalize(ctx, stale, stale.Exam, nil, FinalizeFinished)
	assertErr(t, err, util.ErrAlreadyFinalized)
}

func TestFinishStoresNote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")

	tests := []struct {
		name string
		note *string
		want *string
	}{
		{name: "nil", note: nil, want: nil},
		{name: "blank", note: testutil.StringPtr("   "), want: nil},
		{name: "trimmed", note: testutil.StringPtr("  question 3 was unclear \n"), want: testutil.StringPtr("question 3 was unclear")},
		{name: "capped", note: testutil.StringPtr(strings.Repeat("é", 1500)), want: testutil.StringPtr(strings.Repeat("é", MaxStudentNoteLength))},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exam, _ := testutil.CreateExam(t, env.db, "Note "+tc.name, 1)
			started, err := env.engine.Start(ctx, student.ID, exam.ID)
			if err != nil {
				t.Fatalf("start: %v", err)
			}
			if _, err := env.engine.Finish(ctx, student.ID, exam.ID, started.AttemptID, tc.note); err != nil {
				t.Fatalf("finish: %v", err)
			}

			attempt, _ := env.attempts.FindByID(ctx, started.AttemptID)
			switch {
			case tc.want == nil && attempt.StudentNote != nil:
				t.Fatalf("note = %q, want nil", *attempt.StudentNote)
			case tc.want != nil && (attempt.StudentNote == nil || *attempt.StudentNote != *tc.want):
				t.Fatalf("note = %v, want %q", attempt.StudentNote, *tc.want)
			}
		})
	}
}

func TestFinishPersistsCorrectness(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Basics", 3)

	attemptID, _ := env.takeExam(t, student.ID, exam, questions, picksFor(questions, 1, 1))

	answers, err := env.answers.ListByAttempt(ctx, attemptID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	if len(answers) != 2 {
		t.Fatalf("got %d answers, want 2", len(answers))
	}
	for _, a := range answers {
		if a.IsCorrect == nil {
			t.Fatalf("answer %d has no correctness flag", a.QuestionID)
		}
		want := a.QuestionID == questions[0].ID
		if *a.IsCorrect != want {
			t.Fatalf("answer %d correct = %v, want %v", a.QuestionID, *a.IsCorrect, want)
		}
	}
}

// 5 题，pc=1 pi=0：3 对 1 错 1 未答 => 6.0 通过
func TestScenarioPassingAttempt(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Scenario", 5, testutil.WithMaxAttempts(2))

	attemptID, result := env.takeExam(t, student.ID, exam, questions, picksFor(questions, 3, 1))

	if result.Score != 6.0 || !result.Passed {
		t.Fatalf("result = %+v, want score 6.0 passed", result)
	}
	if result.Correct != 3 || result.Incorrect != 1 || result.Unanswered != 1 || result.Total != 5 {
		t.Fatalf("counts = %+v", result)
	}
	if result.TimeSpent != 90 {
		t.Fatalf("timeSpent = %d, want 90", result.TimeSpent)
	}

	tally, err := env.attempts.Tally(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("tally: %v", err)
	}
	if !CanViewAnswers(tally, exam.MaxAttempts) {
		t.Fatal("passing attempt must open the answers")
	}

	attempt, _ := env.attempts.FindByID(ctx, attemptID)
	if math.Abs(*attempt.Score-6) > 1e-9 {
		t.Fatalf("stored score = %v", *attempt.Score)
	}
}

// pi=0.25：2 对 2 错 1 未答 => 3.0 不通过；允许重考，两次失败后开放答案
func TestScenarioFailingAttempts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Scenario", 5, testutil.WithMaxAttempts(2), testutil.WithPenalty(0.25))

	firstID, first := env.takeExam(t, student.ID, exam, questions, picksFor(questions, 2, 2))
	if first.Score != 3.0 || first.Passed {
		t.Fatalf("first result = %+v, want 3.0 failed", first)
	}

	tally, _ := env.attempts.Tally(ctx, student.ID, exam.ID)
	if tally.Completed != 1 || CanViewAnswers(tally, exam.MaxAttempts) {
		t.Fatalf("gate open after one failure: %+v", tally)
	}

	secondID, second := env.takeExam(t, student.ID, exam, questions, picksFor(questions, 2, 2))
	if secondID == firstID {
		t.Fatal("second attempt reused the first one")
	}
	if second.Passed {
		t.Fatalf("second result = %+v, want failed", second)
	}

	tally, _ = env.attempts.Tally(ctx, student.ID, exam.ID)
	if !CanViewAnswers(tally, exam.MaxAttempts) {
		t.Fatal("gate must open once attempts are exhausted")
	}

	_, err := env.engine.Start(ctx, student.ID, exam.ID)
	assertErr(t, err, util.ErrAttemptsExhausted)
}

func TestCanViewAnswers(t *testing.T) {
	score := 7.0
	tests := []struct {
		name  string
		tally repository.ExamTally
		want  bool
	}{
		{name: "nothing completed", tally: repository.ExamTally{}, want: false},
		{name: "one failure of two", tally: repository.ExamTally{Completed: 1}, want: false},
		{name: "exhausted", tally: repository.ExamTally{Completed: 2}, want: true},
		{name: "passed on first try", tally: repository.ExamTally{Completed: 1, Passed: 1, BestScore: &score}, want: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanViewAnswers(tc.tally, 2); got != tc.want {
				t.Fatalf("CanViewAnswers = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestShuffledOrderIsFrozen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	exam, questions := testutil.CreateExam(t, env.db, "Shuffled", 12, testutil.WithShuffle())

	first, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(first.Questions) != len(questions) {
		t.Fatalf("got %d questions", len(first.Questions))
	}

	env.clock.Advance(5 * time.Second)
	again, err := env.engine.Start(ctx, student.ID, exam.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	for i := range first.Questions {
		if first.Questions[i].ID != again.Questions[i].ID {
			t.Fatalf("order changed on resume at %d: %d vs %d", i, first.Questions[i].ID, again.Questions[i].ID)
		}
	}

	attempt, _ := env.attempts.FindByID(ctx, first.AttemptID)
	if len(attempt.QuestionOrder) != len(questions) {
		t.Fatalf("frozen order has %d ids, want %d", len(attempt.QuestionOrder), len(questions))
	}
}

func TestFinalizeExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ana := testutil.CreateStudent(t, env.db, "12345678A", "Ana Student")
	bruno := testutil.CreateStudent(t, env.db, "87654321B", "Bruno Student")
	short, _ := testutil.CreateExam(t, env.db, "Short", 2, testutil.WithTimeLimit(60))
	long, _ := testutil.CreateExam(t, env.db, "Long", 2, testutil.WithTimeLimit(3600))

	expired, err := env.engine.Start(ctx, ana.ID, short.ID)
	if err != nil {
		t.Fatalf("start short: %v", err)
	}
	running, err := env.engine.Start(ctx, bruno.ID, long.ID)
	if err != nil {
		t.Fatalf("start long: %v", err)
	}

	env.clock.Advance(61 * time.Second)
	n, err := env.engine.FinalizeExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("finalized %d attempts, want 1", n)
	}

	a, _ := env.attempts.FindByID(ctx, expired.AttemptID)
	b, _ := env.attempts.FindByID(ctx, running.AttemptID)
	if a.InProgress() || !b.InProgress() {
		t.Fatalf("statuses = %s/%s, want completed/in_progress", a.Status, b.Status)
	}

	// 再次执行不会重复结算
	if n, _ := env.engine.FinalizeExpired(ctx); n != 0 {
		t.Fatalf("second sweep finalized %d attempts", n)
	}

	sweeper := NewExpirySweeper(env.engine)
	if err := sweeper.Start(""); err != nil {
		t.Fatalf("disabled sweeper: %v", err)
	}
	sweeper.Stop()
	if err := sweeper.Start("not a schedule"); err == nil {
		t.Fatal("invalid schedule accepted")
	}
}
