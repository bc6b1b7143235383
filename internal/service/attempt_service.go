package service

import (
	"context"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/logger"
	"examhub_backend/pkg/monitoring"
	"examhub_backend/pkg/tracing"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaxStudentNoteLength 学生备注最大字符数
const MaxStudentNoteLength = 1000

const (
	FinalizeFinished = "finished"
	FinalizeExpired  = "expired"
)

// ExamInfo 考试进行中返回给学生的考试信息
type ExamInfo struct {
	ID              uint    `json:"id"`
	Title           string  `json:"title"`
	Icon            string  `json:"icon"`
	TimeLimit       int     `json:"timeLimit"`
	PointsCorrect   float64 `json:"pointsCorrect"`
	PointsIncorrect float64 `json:"pointsIncorrect"`
}

// QuestionView 不含正确答案与解析
type QuestionView struct {
	ID      uint     `json:"id"`
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type StartResult struct {
	AttemptID uint           `json:"attemptId"`
	Exam      ExamInfo       `json:"exam"`
	Questions []QuestionView `json:"questions"`
	// key 为题目 id
	Answers  map[uint]*int `json:"answers"`
	TimeLeft int           `json:"timeLeft"`
	Resumed  bool          `json:"resumed"`
}

type FinishResult struct {
	Score      float64 `json:"score"`
	Correct    int     `json:"correct"`
	Incorrect  int     `json:"incorrect"`
	Unanswered int     `json:"unanswered"`
	Total      int     `json:"total"`
	Passed     bool    `json:"passed"`
	TimeSpent  int     `json:"timeSpent"`
}

// AttemptService 考试作答的状态机：开始/继续、保存答案、交卷与超时结算
type AttemptService struct {
	ExamRepo    *repository.ExamRepository
	AttemptRepo *repository.AttemptRepository
	AnswerRepo  *repository.AnswerRepository
	// Now 可在测试中替换
	Now func() time.Time
}

func NewAttemptService(examRepo *repository.ExamRepository, attemptRepo *repository.AttemptRepository, answerRepo *repository.AnswerRepository) *AttemptService {
	return &AttemptService{
		ExamRepo:    examRepo,
		AttemptRepo: attemptRepo,
		AnswerRepo:  answerRepo,
		Now:         time.Now,
	}
}

// CanViewAnswers 已通过或已用完全部次数时才能查看答案
func CanViewAnswers(tally repository.ExamTally, maxAttempts int) bool {
	return tally.HasPassed() || tally.Completed >= int64(maxAttempts)
}

func elapsedSeconds(startedAt, now time.Time) int {
	return int(now.Sub(startedAt) / time.Second)
}

func (s *AttemptService) Start(ctx context.Context, userID, examID uint) (*StartResult, error) {
	exam, err := s.ExamRepo.FindActiveByID(ctx, examID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrExamNotFound
		}
		return nil, errors.Wrap(err, "find exam")
	}

	now := s.Now()
	if exam.DeadlinePassed(now) {
		return nil, util.ErrDeadlinePassed
	}

	tally, err := s.AttemptRepo.Tally(ctx, userID, exam.ID)
	if err != nil {
		return nil, errors.Wrap(err, "tally attempts")
	}
	if tally.HasPassed() {
		return nil, util.ErrAlreadyPassed
	}
	if tally.Completed >= int64(exam.MaxAttempts) {
		return nil, util.ErrAttemptsExhausted
	}

	current, err := s.AttemptRepo.FindInProgress(ctx, userID, exam.ID)
	if err != nil {
		return nil, errors.Wrap(err, "find attempt in progress")
	}
	if current != nil {
		return s.resume(ctx, exam, current, now)
	}

	questions, err := s.ExamRepo.Questions(ctx, exam.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	if len(questions) == 0 {
		return nil, util.ErrNoQuestions
	}

	attempt := &model.Attempt{
		UserID:    userID,
		ExamID:    exam.ID,
		StartedAt: now,
		Status:    model.AttemptInProgress,
	}
	if exam.Shuffle {
		shuffleQuestions(questions)
		attempt.QuestionOrder = questionIDs(questions)
	}

	if err := s.AttemptRepo.Create(ctx, attempt); err != nil {
		return nil, errors.Wrap(err, "create attempt")
	}

	logger.Log.Info("Attempt started",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("userID", userID),
		zap.Uint("examID", exam.ID),
		zap.Bool("shuffled", exam.Shuffle),
	)
	monitoring.ObserveAttemptStarted("new")

	return &StartResult{
		AttemptID: attempt.ID,
		Exam:      examInfo(exam),
		Questions: questionViews(questions),
		Answers:   map[uint]*int{},
		TimeLeft:  exam.TimeLimit,
		Resumed:   false,
	}, nil
}

func (s *AttemptService) resume(ctx context.Context, exam *model.Exam, attempt *model.Attempt, now time.Time) (*StartResult, error) {
	timeLeft := exam.TimeLimit - elapsedSeconds(attempt.StartedAt, now)
	if timeLeft <= 0 {
		if _, err := s.finalize(ctx, attempt, exam, nil, FinalizeExpired); err != nil && !errors.Is(err, util.ErrAlreadyFinalized) {
			return nil, err
		}
		return nil, util.ErrTimeExpired
	}

	questions, err := s.ExamRepo.Questions(ctx, exam.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	answers, err := s.AnswerRepo.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load answers")
	}

	saved := make(map[uint]*int, len(answers))
	for _, a := range answers {
		saved[a.QuestionID] = a.SelectedOption
	}

	logger.Log.Debug("Attempt resumed",
		zap.Uint("attemptID", attempt.ID),
		zap.Int("timeLeft", timeLeft),
	)
	monitoring.ObserveAttemptStarted("resumed")

	return &StartResult{
		AttemptID: attempt.ID,
		Exam:      examInfo(exam),
		Questions: questionViews(orderQuestions(questions, attempt.QuestionOrder)),
		Answers:   saved,
		TimeLeft:  timeLeft,
		Resumed:   true,
	}, nil
}

// activeAttempt 返回属于该用户且进行中的记录；examID 为 0 时不校验考试
func (s *AttemptService) activeAttempt(ctx context.Context, userID, examID, attemptID uint) (*model.Attempt, error) {
	attempt, err := s.AttemptRepo.FindOwned(ctx, attemptID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrInvalidAttempt
		}
		return nil, errors.Wrap(err, "find attempt")
	}
	if !attempt.InProgress() || (examID != 0 && attempt.ExamID != examID) {
		return nil, util.ErrInvalidAttempt
	}
	if attempt.Exam == nil {
		exam, err := s.ExamRepo.FindByID(ctx, attempt.ExamID)
		if err != nil {
			return nil, errors.Wrap(err, "find exam")
		}
		attempt.Exam = exam
	}
	return attempt, nil
}

// RecordAnswer 保存（覆盖）一道题的选择，selected 为 nil 表示清空
func (s *AttemptService) RecordAnswer(ctx context.Context, userID, examID, attemptID, questionID uint, selected *int) error {
	attempt, err := s.activeAttempt(ctx, userID, examID, attemptID)
	if err != nil {
		return err
	}

	now := s.Now()
	if elapsedSeconds(attempt.StartedAt, now) > attempt.Exam.TimeLimit {
		if _, err := s.finalize(ctx, attempt, attempt.Exam, nil, FinalizeExpired); err != nil && !errors.Is(err, util.ErrAlreadyFinalized) {
			return err
		}
		return util.ErrTimeExpired
	}

	if selected != nil && (*selected < 0 || *selected >= model.OptionCount) {
		return util.NewValidationError("selectedOption must be between 0 and 3")
	}
	if _, err := s.ExamRepo.FindQuestion(ctx, attempt.ExamID, questionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return util.NewValidationError("question does not belong to this exam")
		}
		return errors.Wrap(err, "find question")
	}

	answer := &model.Answer{
		AttemptID:      attempt.ID,
		QuestionID:     questionID,
		SelectedOption: selected,
		AnsweredAt:     now,
	}
	if err := s.AnswerRepo.Upsert(ctx, answer); err != nil {
		// 检查之后被并发交卷或超时结算
		if errors.Is(err, repository.ErrAttemptNotInProgress) {
			return util.ErrInvalidAttempt
		}
		return errors.Wrap(err, "save answer")
	}
	return nil
}

// Finish 交卷；超时的记录同样按当前作答结算
func (s *AttemptService) Finish(ctx context.Context, userID, examID, attemptID uint, note *string) (*FinishResult, error) {
	attempt, err := s.activeAttempt(ctx, userID, examID, attemptID)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, attempt, attempt.Exam, normalizeNote(note), FinalizeFinished)
}

func normalizeNote(note *string) *string {
	if note == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*note)
	if trimmed == "" {
		return nil
	}
	if runes := []rune(trimmed); len(runes) > MaxStudentNoteLength {
		trimmed = string(runes[:MaxStudentNoteLength])
	}
	return &trimmed
}

// finalize 判分并把记录转为 completed。调用方负责确认状态为 in_progress；
// 记录已被结算时返回 ErrAlreadyFinalized，不会重复计算。
func (s *AttemptService) finalize(ctx context.Context, attempt *model.Attempt, exam *model.Exam, note *string, reason string) (*FinishResult, error) {
	ctx, span := tracing.StartSpan(ctx, "attempt.finalize",
		attribute.Int("attempt.id", int(attempt.ID)),
		attribute.String("attempt.reason", reason),
	)
	defer span.End()

	questions, err := s.ExamRepo.Questions(ctx, exam.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load questions")
	}
	now := s.Now()
	timeSpent := elapsedSeconds(attempt.StartedAt, now)

	// 答案在结算事务内读取，之后提交的答案不会被漏判
	var sheet ScoreSheet
	err = s.AttemptRepo.Complete(ctx, attempt.ID, func(answers []model.Answer) *repository.Completion {
		sheet = GradeAnswers(exam, questions, answers)
		return &repository.Completion{
			FinishedAt:    now,
			Score:         sheet.Score,
			Correct:       sheet.Correct,
			Incorrect:     sheet.Incorrect,
			Unanswered:    sheet.Unanswered,
			TimeSpent:     timeSpent,
			StudentNote:   note,
			GradedAnswers: sheet.Graded,
		}
	})
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotInProgress) {
			return nil, util.ErrAlreadyFinalized
		}
		span.RecordError(err)
		return nil, errors.Wrap(err, "complete attempt")
	}

	passed := sheet.Score >= model.PassScore
	logger.Log.Info("Attempt finalized",
		zap.Uint("attemptID", attempt.ID),
		zap.Uint("userID", attempt.UserID),
		zap.Uint("examID", exam.ID),
		zap.String("reason", reason),
		zap.Float64("score", sheet.Score),
		zap.Bool("passed", passed),
	)
	monitoring.ObserveAttemptFinalized(reason, sheet.Score, passed)

	return &FinishResult{
		Score:      util.Round1(sheet.Score),
		Correct:    sheet.Correct,
		Incorrect:  sheet.Incorrect,
		Unanswered: sheet.Unanswered,
		Total:      sheet.Total,
		Passed:     passed,
		TimeSpent:  timeSpent,
	}, nil
}

// FinalizeExpired 结算所有已超时但仍在进行中的记录，返回结算数量
func (s *AttemptService) FinalizeExpired(ctx context.Context) (int, error) {
	attempts, err := s.AttemptRepo.ListInProgress(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "list attempts in progress")
	}

	now := s.Now()
	finalized := 0
	for i := range attempts {
		attempt := &attempts[i]
		if attempt.Exam == nil || elapsedSeconds(attempt.StartedAt, now) <= attempt.Exam.TimeLimit {
			continue
		}
		if _, err := s.finalize(ctx, attempt, attempt.Exam, nil, FinalizeExpired); err != nil {
			if errors.Is(err, util.ErrAlreadyFinalized) {
				continue
			}
			logger.Log.Error("Failed to finalize expired attempt",
				zap.Uint("attemptID", attempt.ID),
				zap.Error(err),
			)
			continue
		}
		finalized++
	}
	return finalized, nil
}

func examInfo(exam *model.Exam) ExamInfo {
	return ExamInfo{
		ID:              exam.ID,
		Title:           exam.Title,
		Icon:            exam.Icon,
		TimeLimit:       exam.TimeLimit,
		PointsCorrect:   exam.PointsCorrect,
		PointsIncorrect: exam.PointsIncorrect,
	}
}

func questionViews(questions []model.Question) []QuestionView {
	views := make([]QuestionView, len(questions))
	for i := range questions {
		views[i] = QuestionView{
			ID:      questions[i].ID,
			Text:    questions[i].Text,
			Options: questions[i].Options(),
		}
	}
	return views
}
