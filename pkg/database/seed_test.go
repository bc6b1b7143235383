package database_test

import (
	"context"
	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/service"
	"examhub_backend/internal/testutil"
	"examhub_backend/pkg/database"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestSeedAdmin(t *testing.T) {
	db := testutil.NewDB(t)

	skipped := &config.AdminConfig{Code: "ADMIN", Name: "Administrator"}
	if err := database.SeedAdmin(db, skipped); err != nil {
		t.Fatalf("seed without password: %v", err)
	}
	var count int64
	db.Model(&model.User{}).Count(&count)
	if count != 0 {
		t.Fatalf("admin created without a password")
	}

	cfg := &config.AdminConfig{Code: "ADMIN", Name: "Administrator", Password: "s3cret"}
	for i := 0; i < 2; i++ {
		if err := database.SeedAdmin(db, cfg); err != nil {
			t.Fatalf("seed admin: %v", err)
		}
	}

	var admins []model.User
	db.Where("dni = ?", "ADMIN").Find(&admins)
	if len(admins) != 1 || !admins[0].IsAdmin() || admins[0].PasswordHash == nil {
		t.Fatalf("admins = %+v", admins)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*admins[0].PasswordHash), []byte("s3cret")); err != nil {
		t.Fatalf("password hash mismatch: %v", err)
	}
}

func TestSeedSampleExams(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.CreateAdmin(t, db, "ADMIN", "s3cret")

	for i := 0; i < 2; i++ {
		if err := database.SeedSampleExams(db, "ADMIN"); err != nil {
			t.Fatalf("seed exams: %v", err)
		}
	}

	var exams []model.Exam
	db.Order("id").Find(&exams)
	if len(exams) != 2 {
		t.Fatalf("exams = %d, want 2", len(exams))
	}
	for _, e := range exams {
		if !e.IsActive || e.Deadline == nil || e.CreatedBy == 0 {
			t.Fatalf("exam = %+v", e)
		}
	}

	var questions int64
	db.Model(&model.Question{}).Count(&questions)
	if questions != 13 {
		t.Fatalf("questions = %d, want 13", questions)
	}
}

func TestSeedAdminNormalizesCode(t *testing.T) {
	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	cfg.Admin = config.AdminConfig{Code: " admin ", Name: "Administrator", Password: "s3cret"}

	if err := database.SeedAdmin(db, &cfg.Admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	// 配置与规范化后的编号指向同一账号
	upper := cfg.Admin
	upper.Code = "ADMIN"
	if err := database.SeedAdmin(db, &upper); err != nil {
		t.Fatalf("seed admin again: %v", err)
	}

	var admins []model.User
	db.Find(&admins)
	if len(admins) != 1 || admins[0].Code != "ADMIN" {
		t.Fatalf("admins = %+v", admins)
	}

	auth := service.NewAuthService(repository.NewUserRepository(db), service.NewStorageService(cfg), nil, cfg)
	res, err := auth.Login(context.Background(), &service.LoginInput{Code: "admin", Password: testutil.StringPtr("s3cret")})
	if err != nil {
		t.Fatalf("login with configured code: %v", err)
	}
	if !res.User.IsAdmin() {
		t.Fatalf("role = %s", res.User.Role)
	}
}
