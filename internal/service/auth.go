package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"uptask/internal/model"
	"uptask/internal/pkg/credential"
	"uptask/internal/pkg/metrics"
	"uptask/internal/pkg/notify"
	"uptask/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultTokenTTL = 10 * time.Minute

// Notifier 异步发送验证码邮件，调用方不关心发送结果。
type Notifier interface {
	NotifyConfirmation(r notify.Recipient)
	NotifyPasswordReset(r notify.Recipient)
}

// Throttle 限制同一邮箱重发验证码的频率。
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Reset(ctx context.Context, key string) error
}

// AuthStore 账号流程需要的存储能力。
type AuthStore interface {
	store.UserStore
	store.TokenStore
}

// AuthService 负责账号生命周期：注册、确认、登录、找回密码与个人资料。
type AuthService struct {
	store    AuthStore
	issuer   *credential.Issuer
	notifier Notifier
	throttle Throttle
	tokenTTL time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewAuthService 创建账号服务。tokenTTL <= 0 时使用 10 分钟，throttle 可以为 nil。
func NewAuthService(st AuthStore, issuer *credential.Issuer, notifier Notifier, throttle Throttle, tokenTTL time.Duration, logger *slog.Logger) *AuthService {
	if tokenTTL <= 0 {
		tokenTTL = defaultTokenTTL
	}
	return &AuthService{
		store:    st,
		issuer:   issuer,
		notifier: notifier,
		throttle: throttle,
		tokenTTL: tokenTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount 注册新用户并发送确认邮件。
//
// 用户与验证码是两次独立写入：两者都会执行，任一失败都返回 Internal。
func (s *AuthService) CreateAccount(ctx context.Context, name, email, password string) error {
	email = normalizeEmail(email)
	if _, err := s.store.FindUserByEmail(ctx, email); err == nil {
		return newError(KindConflict, "user already registered")
	} else if !errors.Is(err, store.ErrNotFound) {
		return internal("lookup user failed", err)
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	user := &model.User{
		ID:       uuid.NewString(),
		Name:     strings.TrimSpace(name),
		Email:    email,
		Password: hash,
	}
	token, err := s.newToken(user.ID, model.TokenPurposeConfirm)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.Go(func() error { return s.store.CreateUser(ctx, user) })
	g.Go(func() error { return s.store.CreateToken(ctx, token) })
	if err := g.Wait(); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return newError(KindConflict, "user already registered")
		}
		return internal("create account failed", err)
	}

	s.notifier.NotifyConfirmation(recipient(user, token))
	metrics.AuthEventsTotal.WithLabelValues("account_created").Inc()
	s.logger.Info("account created", slog.String("user_id", user.ID), slog.String("email", email))
	return nil
}

// ConfirmAccount 消费确认验证码，将账号标记为已确认。
func (s *AuthService) ConfirmAccount(ctx context.Context, code string) error {
	token, err := s.lookupToken(ctx, code)
	if err != nil {
		return err
	}
	if token.Purpose != model.TokenPurposeConfirm {
		return newError(KindUnauthorized, "invalid token")
	}
	user, err := s.store.FindUserByID(ctx, token.UserID)
	if err != nil {
		return fromStore(err, "invalid token")
	}
	user.Confirmed = true

	var g errgroup.Group
	g.Go(func() error { return s.store.SaveUser(ctx, user) })
	g.Go(func() error { return s.store.DeleteToken(ctx, token.ID) })
	if err := g.Wait(); err != nil {
		return internal("confirm account failed", err)
	}

	s.resetThrottle(ctx, model.TokenPurposeConfirm, user.Email)
	metrics.AuthEventsTotal.WithLabelValues("account_confirmed").Inc()
	s.logger.Info("account confirmed", slog.String("user_id", user.ID))
	return nil
}

// Login 校验邮箱与密码并签发 JWT。
//
// 未确认的账号会重新获得一个确认验证码，并返回 Unauthorized。
func (s *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", fromStore(err, "user not found")
	}

	if !user.Confirmed {
		if err := s.issueAndSend(ctx, user, model.TokenPurposeConfirm); err != nil {
			return "", err
		}
		metrics.AuthEventsTotal.WithLabelValues("login_unconfirmed").Inc()
		return "", newError(KindUnauthorized, "account not confirmed, check your email for a new confirmation code")
	}

	if !credential.CheckPassword(password, user.Password) {
		metrics.AuthEventsTotal.WithLabelValues("login_failed").Inc()
		return "", newError(KindUnauthorized, "incorrect password")
	}

	jwt, err := s.issuer.Issue(user.ID)
	if err != nil {
		return "", internal("sign token failed", err)
	}
	metrics.AuthEventsTotal.WithLabelValues("login").Inc()
	s.logger.Info("user logged in", slog.String("user_id", user.ID))
	return jwt, nil
}

// RequestConfirmationCode 为未确认的账号重新发送确认验证码。
func (s *AuthService) RequestConfirmationCode(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fromStore(err, "user not registered")
	}
	if user.Confirmed {
		return newError(KindForbidden, "user already confirmed")
	}
	return s.issueAndSend(ctx, user, model.TokenPurposeConfirm)
}

// ForgotPassword 发送密码找回验证码，不检查账号是否已确认。
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.store.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fromStore(err, "user not registered")
	}
	return s.issueAndSend(ctx, user, model.TokenPurposeReset)
}

// ValidateToken 检查验证码是否存在且未过期，不消费。
func (s *AuthService) ValidateToken(ctx context.Context, code string) error {
	_, err := s.lookupToken(ctx, code)
	return err
}

// UpdatePasswordWithToken 用找回密码验证码重设密码并消费验证码，确认验证码不能用于重设。
func (s *AuthService) UpdatePasswordWithToken(ctx context.Context, code, password string) error {
	token, err := s.lookupToken(ctx, code)
	if err != nil {
		return err
	}
	if token.Purpose != model.TokenPurposeReset {
		return newError(KindUnauthorized, "invalid token")
	}
	user, err := s.store.FindUserByID(ctx, token.UserID)
	if err != nil {
		return fromStore(err, "invalid token")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	user.Password = hash

	var g errgroup.Group
	g.Go(func() error { return s.store.SaveUser(ctx, user) })
	g.Go(func() error { return s.store.DeleteToken(ctx, token.ID) })
	if err := g.Wait(); err != nil {
		return internal("reset password failed", err)
	}

	s.resetThrottle(ctx, model.TokenPurposeReset, user.Email)
	metrics.AuthEventsTotal.WithLabelValues("password_reset").Inc()
	s.logger.Info("password reset", slog.String("user_id", user.ID))
	return nil
}

// CurrentUser 返回调用者本人。
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return nil, fromStore(err, "user not found")
	}
	return user, nil
}

// UpdateProfile 修改姓名与邮箱，邮箱不能与其他用户重复。
func (s *AuthService) UpdateProfile(ctx context.Context, userID, name, email string) error {
	email = normalizeEmail(email)
	existing, err := s.store.FindUserByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != userID:
		return newError(KindConflict, "email already in use")
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return internal("lookup user failed", err)
	}

	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return fromStore(err, "user not found")
	}
	user.Name = strings.TrimSpace(name)
	user.Email = email
	if err := s.store.SaveUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return newError(KindConflict, "email already in use")
		}
		return internal("update profile failed", err)
	}
	return nil
}

// UpdatePassword 校验当前密码后修改密码。
func (s *AuthService) UpdatePassword(ctx context.Context, userID, current, password string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return fromStore(err, "user not found")
	}
	if !credential.CheckPassword(current, user.Password) {
		return newError(KindUnauthorized, "current password is incorrect")
	}
	hash, err := hashPassword(password)
	if err != nil {
		return err
	}
	user.Password = hash
	if err := s.store.SaveUser(ctx, user); err != nil {
		return internal("update password failed", err)
	}
	return nil
}

// CheckPassword 校验调用者的密码。
func (s *AuthService) CheckPassword(ctx context.Context, userID, password string) error {
	user, err := s.store.FindUserByID(ctx, userID)
	if err != nil {
		return fromStore(err, "user not found")
	}
	if !credential.CheckPassword(password, user.Password) {
		return newError(KindUnauthorized, "password is incorrect")
	}
	return nil
}

// lookupToken 查找未过期的验证码，过期视同不存在。
func (s *AuthService) lookupToken(ctx context.Context, code string) (*model.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, newError(KindUnauthorized, "invalid token")
	}
	token, err := s.store.FindToken(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(KindUnauthorized, "invalid token")
		}
		return nil, internal("lookup token failed", err)
	}
	if token.Expired(s.now()) {
		return nil, newError(KindUnauthorized, "invalid token")
	}
	return token, nil
}

func (s *AuthService) newToken(userID string, purpose model.TokenPurpose) (*model.Token, error) {
	code, err := credential.GenerateCode()
	if err != nil {
		return nil, internal("generate code failed", err)
	}
	now := s.now()
	return &model.Token{
		ID:        uuid.NewString(),
		Code:      code,
		UserID:    userID,
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokenTTL),
	}, nil
}

// issueAndSend 生成新验证码并发送。冷却窗口内直接跳过，之前发出的验证码继续有效。
func (s *AuthService) issueAndSend(ctx context.Context, user *model.User, purpose model.TokenPurpose) error {
	if !s.allowSend(ctx, purpose, user.Email) {
		kind := "confirmation"
		if purpose == model.TokenPurposeReset {
			kind = "password_reset"
		}
		metrics.EmailsTotal.WithLabelValues(kind, "throttled").Inc()
		s.logger.Info("token resend throttled", slog.String("user_id", user.ID), slog.String("purpose", string(purpose)))
		return nil
	}
	token, err := s.newToken(user.ID, purpose)
	if err != nil {
		return err
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return internal("save token failed", err)
	}
	if purpose == model.TokenPurposeReset {
		s.notifier.NotifyPasswordReset(recipient(user, token))
	} else {
		s.notifier.NotifyConfirmation(recipient(user, token))
	}
	s.logger.Info("token issued", slog.String("user_id", user.ID), slog.String("purpose", string(purpose)))
	return nil
}

// allowSend 冷却检查失败时放行。
func (s *AuthService) allowSend(ctx context.Context, purpose model.TokenPurpose, email string) bool {
	if s.throttle == nil {
		return true
	}
	ok, err := s.throttle.Allow(ctx, throttleKey(purpose, email))
	if err != nil {
		s.logger.Warn("resend throttle check failed", slog.String("error", err.Error()))
		return true
	}
	return ok
}

// resetThrottle 验证码被消费后清除冷却，下一次请求可以立即拿到新验证码。
func (s *AuthService) resetThrottle(ctx context.Context, purpose model.TokenPurpose, email string) {
	if s.throttle == nil {
		return
	}
	if err := s.throttle.Reset(ctx, throttleKey(purpose, email)); err != nil {
		s.logger.Warn("resend throttle reset failed", slog.String("error", err.Error()))
	}
}

func throttleKey(purpose model.TokenPurpose, email string) string {
	return string(purpose) + ":" + email
}

func recipient(user *model.User, token *model.Token) notify.Recipient {
	return notify.Recipient{Email: user.Email, Name: user.Name, Code: token.Code}
}

// hashPassword 超长密码属于输入错误，其余哈希失败为内部错误。
func hashPassword(password string) (string, error) {
	hash, err := credential.HashPassword(password)
	if errors.Is(err, credential.ErrPasswordTooLong) {
		return "", newError(KindValidation, "password must be at most 72 bytes")
	}
	if err != nil {
		return "", internal("hash password failed", err)
	}
	return hash, nil
}
