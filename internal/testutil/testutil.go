// Package testutil 测试用的内存数据库、配置与数据构造
package testutil

import (
	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/pkg/database"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB 每个测试独立的内存 SQLite；单连接保证所有查询落在同一个库上
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Config 测试配置，本地存储写入临时目录
func Config(t testing.TB) *config.Config {
	t.Helper()

	cfg := &config.Config{}
	cfg.Server.Mode = "test"
	cfg.JWT.Secret = "examhub-test-secret-0123456789abcdef"
	cfg.JWT.ExpireTime = 24 * time.Hour
	cfg.Storage.Type = "local"
	cfg.Storage.LocalPath = t.TempDir()
	cfg.Admin.Code = "ADMIN"
	cfg.Admin.Name = "Administrator"
	return cfg
}

// Clock 可手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func CreateStudent(t testing.TB, db *gorm.DB, code, name string) *model.User {
	t.Helper()

	user := &model.User{Code: code, Name: name, Role: model.Student}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create student %s: %v", code, err)
	}
	return user
}

// CreateAdmin 使用 MinCost 加快测试
func CreateAdmin(t testing.TB, db *gorm.DB, code, password string) *model.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	hashStr := string(hash)

	user := &model.User{Code: code, Name: "Administrator", PasswordHash: &hashStr, Role: model.Admin}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create admin %s: %v", code, err)
	}
	return user
}

// ExamOption 修改默认考试参数
type ExamOption func(*model.Exam)

func WithTimeLimit(seconds int) ExamOption {
	return func(e *model.Exam) { e.TimeLimit = seconds }
}

func WithMaxAttempts(n int) ExamOption {
	return func(e *model.Exam) { e.MaxAttempts = n }
}

func WithPenalty(points float64) ExamOption {
	return func(e *model.Exam) { e.PointsIncorrect = points }
}

func WithShuffle() ExamOption {
	return func(e *model.Exam) { e.Shuffle = true }
}

func WithDeadline(deadline time.Time) ExamOption {
	return func(e *model.Exam) { e.Deadline = &deadline }
}

func Inactive() ExamOption {
	return func(e *model.Exam) { e.IsActive = false }
}

// CreateExam 创建含 n 道题的启用考试，第 i 题的正确选项为 i%4
func CreateExam(t testing.TB, db *gorm.DB, title string, n int, opts ...ExamOption) (*model.Exam, []model.Question) {
	t.Helper()

	exam := &model.Exam{
		Title:           title,
		Icon:            model.DefaultExamIcon,
		TimeLimit:       model.DefaultTimeLimit,
		PointsCorrect:   model.DefaultPointsCorrect,
		PointsIncorrect: model.DefaultPointsIncorrect,
		MaxAttempts:     model.DefaultMaxAttempts,
		IsActive:        true,
	}
	for _, opt := range opts {
		opt(exam)
	}
	if err := db.Create(exam).Error; err != nil {
		t.Fatalf("create exam %s: %v", title, err)
	}

	questions := make([]model.Question, n)
	for i := range questions {
		questions[i] = model.Question{
			ExamID:        exam.ID,
			Text:          fmt.Sprintf("%s question %d", title, i+1),
			CorrectOption: i % model.OptionCount,
			OrderNum:      i,
		}
		questions[i].SetOptions([]string{"A", "B", "C", "D"})
	}
	if n > 0 {
		if err := db.Create(&questions).Error; err != nil {
			t.Fatalf("create questions: %v", err)
		}
	}
	return exam, questions
}

// WrongOption 返回一个错误选项
func WrongOption(q model.Question) int {
	return (q.CorrectOption + 1) % model.OptionCount
}

func IntPtr(v int) *int {
	return &v
}

func StringPtr(v string) *string {
	return &v
}
