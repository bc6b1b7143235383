package service

import (
	"context"
	"examhub_backend/internal/config"
	"examhub_backend/internal/model"
	"examhub_backend/internal/repository"
	"examhub_backend/internal/util"
	"examhub_backend/pkg/logger"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minNameLength = 3

// TokenDenylist 已注销 token 的 jti 列表
type TokenDenylist interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// RedisTokenDenylist 以 jti 为 key，过期时间与 token 一致
type RedisTokenDenylist struct {
	Client *redis.Client
}

func NewRedisTokenDenylist(client *redis.Client) *RedisTokenDenylist {
	return &RedisTokenDenylist{Client: client}
}

func revokedKey(jti string) string {
	return "examhub:revoked:" + jti
}

func (d *RedisTokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return d.Client.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

func (d *RedisTokenDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := d.Client.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type LoginInput struct {
	Code     string  `json:"dni"`
	Name     *string `json:"name"`
	Password *string `json:"password"`
}

type LoginResult struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type AuthService struct {
	UserRepo *repository.UserRepository
	Storage  *StorageService
	// Denylist 为 nil 时注销不生效（未启用 Redis）
	Denylist TokenDenylist
	Cfg      *config.Config
	Now      func() time.Time
}

func NewAuthService(userRepo *repository.UserRepository, storage *StorageService, denylist TokenDenylist, cfg *config.Config) *AuthService {
	return &AuthService{
		UserRepo: userRepo,
		Storage:  storage,
		Denylist: denylist,
		Cfg:      cfg,
		Now:      time.Now,
	}
}

// Login 管理员需要密码；已存在的学生凭 DNI 直接登录；新 DNI 自动注册为学生
func (s *AuthService) Login(ctx context.Context, input *LoginInput) (*LoginResult, error) {
	code := util.NormalizeCode(input.Code)
	if code == "" {
		return nil, util.NewValidationError("dni is required")
	}

	user, err := s.UserRepo.FindByCode(ctx, code)
	switch {
	case err == nil:
		if user.IsAdmin() {
			if err := checkAdminPassword(user, input.Password); err != nil {
				return nil, err
			}
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if user, err = s.register(ctx, code, input.Name); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(err, "find user")
	}

	token, err := util.GenerateJWT(user, s.Cfg.JWT.Secret, s.Cfg.JWT.ExpireTime, s.Now())
	if err != nil {
		return nil, errors.Wrap(err, "sign token")
	}

	logger.Log.Info("User logged in",
		zap.Uint("userID", user.ID),
		zap.String("role", string(user.Role)),
	)
	return &LoginResult{Token: token, User: user}, nil
}

func checkAdminPassword(user *model.User, password *string) error {
	if password == nil || *password == "" {
		return util.ErrCredentialRequired
	}
	if user.PasswordHash == nil {
		return util.ErrInvalidCredential
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(*password)); err != nil {
		return util.ErrInvalidCredential
	}
	return nil
}

func (s *AuthService) register(ctx context.Context, code string, name *string) (*model.User, error) {
	displayName := ""
	if name != nil {
		displayName = strings.TrimSpace(*name)
	}
	if len([]rune(displayName)) < minNameLength {
		return nil, util.NewValidationError("name must be at least 3 characters")
	}
	if !util.IsValidDNI(code) {
		return nil, util.NewValidationError("invalid DNI format (8 digits + 1 letter)")
	}

	user := &model.User{
		Code: code,
		Name: displayName,
		Role: model.Student,
	}
	if err := s.UserRepo.Create(ctx, user); err != nil {
		// 并发首次登录时唯一索引冲突，使用已创建的记录
		if existing, findErr := s.UserRepo.FindByCode(ctx, code); findErr == nil {
			return existing, nil
		}
		return nil, errors.Wrap(err, "create student")
	}

	logger.Log.Info("Student registered", zap.Uint("userID", user.ID))
	return user, nil
}

// Verify 校验 token 并重新加载用户
func (s *AuthService) Verify(ctx context.Context, token string) (*model.User, *util.Claims, error) {
	if token == "" {
		return nil, nil, util.ErrTokenMissing
	}
	claims, err := util.ParseJWT(token, s.Cfg.JWT.Secret)
	if err != nil {
		return nil, nil, err
	}

	if s.Denylist != nil && claims.ID != "" {
		revoked, err := s.Denylist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, nil, errors.Wrap(err, "check token revocation")
		}
		if revoked {
			return nil, nil, util.ErrTokenRevoked
		}
	}

	user, err := s.UserRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrIdentityNotFound
		}
		return nil, nil, errors.Wrap(err, "find user")
	}
	return user, claims, nil
}

func (s *AuthService) Me(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, "find user")
	}
	return user, nil
}

// UpdateAvatar 接收 base64 data URL，上传到存储后保存访问地址
func (s *AuthService) UpdateAvatar(ctx context.Context, userID uint, dataURL string) (string, error) {
	if strings.TrimSpace(dataURL) == "" {
		return "", util.NewValidationError("avatar is required")
	}
	data, err := util.DecodeDataURL(dataURL)
	if err != nil {
		return "", util.NewValidationError(err.Error())
	}
	if len(data) > util.MaxAvatarBytes {
		return "", util.NewValidationError("image too large (max 500KB)")
	}
	mimeType, err := util.SniffImage(data)
	if err != nil {
		return "", util.NewValidationError("avatar must be a PNG, JPEG, GIF or WebP image")
	}

	prev, err := s.Me(ctx, userID)
	if err != nil {
		return "", err
	}

	url, err := s.Storage.SaveAvatar(ctx, userID, data, mimeType)
	if err != nil {
		return "", errors.Wrap(err, "upload avatar")
	}
	if err := s.UserRepo.UpdateAvatar(ctx, userID, url); err != nil {
		return "", errors.Wrap(err, "save avatar")
	}
	if prev.Avatar != nil {
		// 旧文件删除失败只记录日志
		if err := s.Storage.RemoveByURL(ctx, *prev.Avatar); err != nil {
			logger.Log.Warn("Failed to delete previous avatar", zap.String("url", *prev.Avatar), zap.Error(err))
		}
	}
	return url, nil
}

// Logout 将 token 加入注销列表直到其自然过期
func (s *AuthService) Logout(ctx context.Context, claims *util.Claims) error {
	if s.Denylist == nil || claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return nil
	}
	ttl := claims.ExpiresAt.Time.Sub(s.Now())
	if ttl <= 0 {
		return nil
	}
	if err := s.Denylist.Revoke(ctx, claims.ID, ttl); err != nil {
		return errors.Wrap(err, "revoke token")
	}
	return nil
}
