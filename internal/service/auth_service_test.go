package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/testutil"
	"examhub_backend/internal/util"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"
)

// memoryDenylist 测试用的内存注销列表
type memoryDenylist struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemoryDenylist() *memoryDenylist {
	return &memoryDenylist{revoked: make(map[string]time.Duration)}
}

func (d *memoryDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.revoked[jti] = ttl
	return nil
}

func (d *memoryDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.revoked[jti]
	return ok, nil
}

func newAuthService(t *testing.T, denylist TokenDenylist) (*AuthService, *gorm.DB, *config.Config) {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := testutil.Config(t)
	svc := NewAuthService(repository.NewUserRepository(db), NewStorageService(cfg), denylist, cfg)
	return svc, db, cfg
}

func TestLoginRegistersStudent(t *testing.T) {
	svc, _, _ := newAuthService(t, nil)
	ctx := context.Background()

	res, err := svc.Login(ctx, &LoginInput{Code: " 12345678a ", Name: testutil.StringPtr("  Ana  ")})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Token == "" || res.User.Code != "12345678A" || res.User.Name != "Ana" || res.User.Role != model.Student {
		t.Fatalf("login result = %+v", res.User)
	}

	user, claims, err := svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if user.ID != res.User.ID || claims.UserID != res.User.ID || claims.ID == "" {
		t.Fatalf("claims = %+v", claims)
	}

	// 已注册的学生无需再提供姓名
	again, err := svc.Login(ctx, &LoginInput{Code: "12345678A"})
	if err != nil {
		t.Fatalf("second login: %v", err)
	}
	if again.User.ID != res.User.ID {
		t.Fatalf("second login created user %d", again.User.ID)
	}
}

func TestLoginRejections(t *testing.T) {
	svc, db, _ := newAuthService(t, nil)
	ctx := context.Background()
	testutil.CreateAdmin(t, db, "ADMIN", "s3cret")

	tests := []struct {
		name      string
		input     LoginInput
		want      error
		wantValid bool
	}{
		{name: "blank dni", input: LoginInput{Code: "  "}, wantValid: true},
		{name: "new student without name", input: LoginInput{Code: "12345678A"}, wantValid: true},
		{name: "name too short", input: LoginInput{Code: "12345678A", Name: testutil.StringPtr("Al")}, wantValid: true},
		{name: "malformed dni", input: LoginInput{Code: "1234X", Name: testutil.StringPtr("Alice")}, wantValid: true},
		{name: "admin without password", input: LoginInput{Code: "admin"}, want: util.ErrCredentialRequired},
		{name: "admin empty password", input: LoginInput{Code: "ADMIN", Password: testutil.StringPtr("")}, want: util.ErrCredentialRequired},
		{name: "admin wrong password", input: LoginInput{Code: "ADMIN", Password: testutil.StringPtr("nope")}, want: util.ErrInvalidCredential},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Login(ctx, &tc.input)
			if tc.wantValid {
				assertValidationErr(t, err)
				return
			}
			assertErr(t, err, tc.want)
		})
	}

	res, err := svc.Login(ctx, &LoginInput{Code: "admin", Password: testutil.StringPtr("s3cret")})
	if err != nil {
		t.Fatalf("admin login: %v", err)
	}
	if !res.User.IsAdmin() {
		t.Fatalf("role = %s", res.User.Role)
	}
}

func TestVerifyFailures(t *testing.T) {
	svc, db, cfg := newAuthService(t, nil)
	ctx := context.Background()
	student := testutil.CreateStudent(t, db, "12345678A", "Ana Student")

	expired, err := util.GenerateJWT(student, cfg.JWT.Secret, time.Hour, time.Now().Add(-2*time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	forged, err := util.GenerateJWT(student, "another-secret", time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ghost, err := util.GenerateJWT(&model.User{BaseModel: model.BaseModel{ID: 9999}}, cfg.JWT.Secret, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "missing", token: "", want: util.ErrTokenMissing},
		{name: "garbage", token: "not.a.jwt", want: util.ErrTokenInvalid},
		{name: "wrong secret", token: forged, want: util.ErrTokenInvalid},
		{name: "expired", token: expired, want: util.ErrTokenExpired},
		{name: "deleted user", token: ghost, want: util.ErrIdentityNotFound},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Verify(ctx, tc.token)
			assertErr(t, err, tc.want)
		})
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	denylist := newMemoryDenylist()
	svc, _, _ := newAuthService(t, denylist)
	ctx := context.Background()

	res, err := svc.Login(ctx, &LoginInput{Code: "12345678A", Name: testutil.StringPtr("Ana Student")})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, claims, err := svc.Verify(ctx, res.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	ttl := denylist.revoked[claims.ID]
	if ttl <= 23*time.Hour || ttl > 24*time.Hour {
		t.Fatalf("revocation ttl = %v, want about 24h", ttl)
	}

	_, _, err = svc.Verify(ctx, res.Token)
	assertErr(t, err, util.ErrTokenRevoked)

	// 新登录签发的 token 不受影响
	fresh, err := svc.Login(ctx, &LoginInput{Code: "12345678A"})
	if err != nil {
		t.Fatalf("login again: %v", err)
	}
	if _, _, err := svc.Verify(ctx, fresh.Token); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}
}

func TestLogoutWithoutDenylist(t *testing.T) {
	svc, _, _ := newAuthService(t, nil)
	ctx := context.Background()

	res, err := svc.Login(ctx, &LoginInput{Code: "12345678A", Name: testutil.StringPtr("Ana Student")})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_, claims, _ := svc.Verify(ctx, res.Token)

	if err := svc.Logout(ctx, claims); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.Verify(ctx, res.Token); err != nil {
		t.Fatalf("token rejected without a denylist: %v", err)
	}
}

func pngDataURL(extra int) string {
	data := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, extra)...)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
}

func TestUpdateAvatar(t *testing.T) {
	svc, db, cfg := newAuthService(t, nil)
	ctx := context.Background()
	student := testutil.CreateStudent(t, db, "12345678A", "Ana Student")

	first, err := svc.UpdateAvatar(ctx, student.ID, pngDataURL(32))
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if !strings.HasPrefix(first, "/uploads/avatars/") || !strings.HasSuffix(first, ".png") {
		t.Fatalf("avatar url = %q", first)
	}
	firstPath := filepath.Join(cfg.Storage.LocalPath, filepath.FromSlash(strings.TrimPrefix(first, "/uploads/")))
	if _, err := os.Stat(firstPath); err != nil {
		t.Fatalf("avatar file missing: %v", err)
	}

	second, err := svc.UpdateAvatar(ctx, student.ID, pngDataURL(64))
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if second == first {
		t.Fatal("replacement reused the old file name")
	}
	if _, err := os.Stat(firstPath); !os.IsNotExist(err) {
		t.Fatalf("old avatar not removed: %v", err)
	}

	user, _ := svc.Me(ctx, student.ID)
	if user.Avatar == nil || *user.Avatar != second {
		t.Fatalf("stored avatar = %v, want %q", user.Avatar, second)
	}

	t.Run("too large", func(t *testing.T) {
		_, err := svc.UpdateAvatar(ctx, student.ID, pngDataURL(util.MaxAvatarBytes))
		assertValidationErr(t, err)
	})
	t.Run("not an image", func(t *testing.T) {
		text := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("hello world"))
		_, err := svc.UpdateAvatar(ctx, student.ID, text)
		assertValidationErr(t, err)
	})
	t.Run("not base64", func(t *testing.T) {
		_, err := svc.UpdateAvatar(ctx, student.ID, "data:image/png;base64,@@@")
		assertValidationErr(t, err)
	})
}
