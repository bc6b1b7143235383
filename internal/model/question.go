package model

// OptionCount 每道题固定 4 个选项
const OptionCount = 4

// swagger:model Question
type Question struct {
	BaseModel
	ExamID        uint    `gorm:"index;not null" json:"examId"`
	Text          string  `gorm:"column:question_text;type:text;not null" json:"text"`
	OptionA       string  `gorm:"type:text;not null" json:"-"`
	OptionB       string  `gorm:"type:text;not null" json:"-"`
	OptionC       string  `gorm:"type:text;not null" json:"-"`
	OptionD       string  `gorm:"type:text;not null" json:"-"`
	CorrectOption int     `gorm:"not null" json:"correctOption"`
	Explanation   *string `gorm:"type:text" json:"explanation"`
	OrderNum      int     `gorm:"not null;default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

func (q *Question) Options() []string {
	return []string{q.OptionA, q.OptionB, q.OptionC, q.OptionD}
}

func (q *Question) SetOptions(options []string) {
	opts := make([]string, OptionCount)
	copy(opts, options)
	q.OptionA, q.OptionB, q.OptionC, q.OptionD = opts[0], opts[1], opts[2], opts[3]
}
