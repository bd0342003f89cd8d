package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"golang.org/x/crypto/bcrypt"
)

const userPasswordMinLength = 8

// UserService 用户服务
type UserService struct {
	userRepo    repository.UserRepository
	codeService *ReferralCodeService
}

// NewUserService 创建用户服务
func NewUserService(userRepo repository.UserRepository, codeService *ReferralCodeService) *UserService {
	return &UserService{userRepo: userRepo, codeService: codeService}
}

// CreateUserInput 创建用户输入
type CreateUserInput struct {
	Email       string
	Password    string
	DisplayName string
}

// CreateUser 创建用户并立即分配邀请码；邀请码耗尽不影响用户创建
func (s *UserService) CreateUser(ctx context.Context, input CreateUserInput) (*models.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < userPasswordMinLength {
		return nil, ErrUserInvalid
	}
	repo := s.userRepo.WithContext(ctx)
	exist, err := repo.GetByEmail(email)
	if err != nil {
		return nil, err
	}
	if exist != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = strings.SplitN(email, "@", 2)[0]
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hashedPassword),
		DisplayName:  displayName,
		Status:       constants.UserStatusActive,
	}
	if err := repo.Create(user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	if s.codeService == nil {
		return user, nil
	}
	code, err := s.codeService.AssignCode(ctx, user.ID)
	switch {
	case errors.Is(err, ErrReferralCodeExhausted):
		// 已记录日志，等待补发
	case err != nil:
		logger.Warnw("user_referral_code_assign_failed", "user_id", user.ID, "error", err)
	default:
		user.ReferralCode = code
	}
	return user, nil
}

// GetUser 获取用户及其邀请码
func (s *UserService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.userRepo.WithContext(ctx).GetByID(userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	if s.codeService != nil {
		code, err := s.codeService.GetByUserID(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		user.ReferralCode = code
	}
	return user, nil
}

func normalizeEmail(email string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" {
		return "", ErrUserInvalid
	}
	if _, err := mail.ParseAddress(normalized); err != nil {
		return "", ErrUserInvalid
	}
	return normalized, nil
}
