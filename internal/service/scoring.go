package service

import (
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"math"
	"math/rand/v2"
)

// ScoreSheet 一次判分的全部结果，Score 为未舍入的 0-10 分
type ScoreSheet struct {
	Score      float64
	Correct    int
	Incorrect  int
	Unanswered int
	Total      int
	Graded     []repository.GradedAnswer
}

// NormalizeScore (c*pc - i*pi) / (n*pc) * 10，截断到 [0, 10]；满分为 0 时记 0 分
func NormalizeScore(correct, incorrect, total int, pointsCorrect, pointsIncorrect float64) float64 {
	maxScore := float64(total) * pointsCorrect
	if maxScore <= 0 {
		return 0
	}
	raw := float64(correct)*pointsCorrect - float64(incorrect)*pointsIncorrect
	score := raw / maxScore * model.MaxScore
	return math.Max(0, math.Min(model.MaxScore, score))
}

// GradeAnswers 对考试的每道题判分；没有作答记录或选项为空视为未作答
func GradeAnswers(exam *model.Exam, questions []model.Question, answers []model.Answer) ScoreSheet {
	selected := make(map[uint]*int, len(answers))
	for _, a := range answers {
		selected[a.QuestionID] = a.SelectedOption
	}

	sheet := ScoreSheet{Total: len(questions)}
	for _, q := range questions {
		opt, ok := selected[q.ID]
		if !ok || opt == nil {
			sheet.Unanswered++
			continue
		}
		correct := *opt == q.CorrectOption
		if correct {
			sheet.Correct++
		} else {
			sheet.Incorrect++
		}
		sheet.Graded = append(sheet.Graded, repository.GradedAnswer{QuestionID: q.ID, Correct: correct})
	}

	sheet.Score = NormalizeScore(sheet.Correct, sheet.Incorrect, sheet.Total, exam.PointsCorrect, exam.PointsIncorrect)
	return sheet
}

// shuffleQuestions Fisher-Yates 原地打乱
func shuffleQuestions(questions []model.Question) {
	for i := len(questions) - 1; i > 0; i-- {
		j := rand.IntN(i + 1)
		questions[i], questions[j] = questions[j], questions[i]
	}
}

// orderQuestions 按冻结的题目顺序排列；已删除的题目跳过，新增的题目追加在末尾
func orderQuestions(questions []model.Question, order []uint) []model.Question {
	if len(order) == 0 {
		return questions
	}

	byID := make(map[uint]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	ordered := make([]model.Question, 0, len(questions))
	seen := make(map[uint]bool, len(order))
	for _, id := range order {
		if q, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, q)
			seen[id] = true
		}
	}
	for _, q := range questions {
		if !seen[q.ID] {
			ordered = append(ordered, q)
		}
	}
	return ordered
}

func questionIDs(questions []model.Question) []uint {
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}
