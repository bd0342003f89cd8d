package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/dujiao-next/affiliate-engine/internal/cache"
	"github.com/dujiao-next/affiliate-engine/internal/constants"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/metrics"
	"github.com/dujiao-next/affiliate-engine/internal/models"
	"github.com/dujiao-next/affiliate-engine/internal/repository"
)

// RandomSource 随机数来源，返回 [0, n) 的整数
type RandomSource interface {
	Intn(n int) int
}

type cryptoRandomSource struct{}

// NewCryptoRandomSource 基于 crypto/rand 的随机源
func NewCryptoRandomSource() RandomSource {
	return cryptoRandomSource{}
}

func (cryptoRandomSource) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Errorf("crypto rand failed: %w", err))
	}
	return int(v.Int64())
}

// ReferralCodeOptions 邀请码生成参数
type ReferralCodeOptions struct {
	BaseURL     string
	CodeLength  int
	MaxAttempts int
	BatchSize   int
}

// BackfillResult 邀请码补发统计
type BackfillResult struct {
	Assigned int `json:"assigned"`
	Failed   int `json:"failed"`
}

// ReferralCodeService 邀请码注册服务
type ReferralCodeService struct {
	codeRepo repository.ReferralCodeRepository
	userRepo repository.UserRepository
	cache    *cache.ReferralCache
	metrics  *metrics.AffiliateMetrics
	opts     ReferralCodeOptions

	randMu sync.Mutex
	random RandomSource
}

// NewReferralCodeService 创建邀请码服务，random 为空时使用 crypto 随机源
func NewReferralCodeService(
	codeRepo repository.ReferralCodeRepository,
	userRepo repository.UserRepository,
	referralCache *cache.ReferralCache,
	m *metrics.AffiliateMetrics,
	random RandomSource,
	opts ReferralCodeOptions,
) *ReferralCodeService {
	if random == nil {
		random = NewCryptoRandomSource()
	}
	if opts.CodeLength <= 0 {
		opts.CodeLength = constants.ReferralCodeLengthDefault
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = constants.ReferralCodeMaxAttemptsDefault
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 200
	}
	opts.BaseURL = strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	return &ReferralCodeService{
		codeRepo: codeRepo,
		userRepo: userRepo,
		cache:    referralCache,
		metrics:  m,
		opts:     opts,
		random:   random,
	}
}

// BaseURL 当前邀请链接前缀
func (s *ReferralCodeService) BaseURL() string {
	return s.opts.BaseURL
}

// GenerateCandidate 从 A-Z0-9 中独立均匀抽取 length 个字符
func (s *ReferralCodeService) GenerateCandidate(length int) string {
	if length <= 0 {
		length = s.opts.CodeLength
	}
	alphabet := constants.ReferralCodeAlphabet
	buf := make([]byte, length)

	s.randMu.Lock()
	defer s.randMu.Unlock()
	for i := range buf {
		buf[i] = alphabet[s.random.Intn(len(alphabet))]
	}
	return string(buf)
}

// AssignCode 为用户分配唯一邀请码；已有邀请码时直接返回
func (s *ReferralCodeService) AssignCode(ctx context.Context, userID uint) (*models.ReferralCode, error) {
	if userID == 0 {
		return nil, ErrNotFound
	}
	codeRepo := s.codeRepo.WithContext(ctx)

	existing, err := codeRepo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		s.metrics.RecordCodeAssignment("existing")
		return s.present(existing), nil
	}

	for attempt := 1; attempt <= s.opts.MaxAttempts; attempt++ {
		candidate := s.GenerateCandidate(s.opts.CodeLength)
		taken, err := codeRepo.ExistsByCode(candidate)
		if err != nil {
			s.metrics.RecordCodeAssignment("error")
			return nil, err
		}
		if taken {
			s.metrics.RecordCodeCollision()
			continue
		}

		row := &models.ReferralCode{
			UserID: userID,
			Code:   candidate,
			URL:    models.BuildReferralURL(s.opts.BaseURL, candidate),
		}
		err = codeRepo.Create(row)
		if err == nil {
			s.metrics.RecordCodeAssignment("assigned")
			return row, nil
		}
		if !repository.IsUniqueViolation(err) {
			s.metrics.RecordCodeAssignment("error")
			return nil, err
		}
		// 并发写入：可能是同一用户已被其他请求分配，也可能是候选码被抢占
		owned, lookupErr := codeRepo.GetByUserID(userID)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if owned != nil {
			s.metrics.RecordCodeAssignment("existing")
			return s.present(owned), nil
		}
		s.metrics.RecordCodeCollision()
	}

	s.metrics.RecordCodeAssignment("exhausted")
	logger.Warnw("referral_code_exhausted",
		"user_id", userID,
		"max_attempts", s.opts.MaxAttempts,
		"code_length", s.opts.CodeLength,
	)
	return nil, ErrReferralCodeExhausted
}

// Backfill 为所有缺少邀请码的用户补发，单个用户失败不影响批次
func (s *ReferralCodeService) Backfill(ctx context.Context) (BackfillResult, error) {
	var result BackfillResult
	userRepo := s.userRepo.WithContext(ctx)

	var afterID uint
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		users, err := userRepo.ListWithoutReferralCode(afterID, s.opts.BatchSize)
		if err != nil {
			return result, fmt.Errorf("list users without referral code: %w", err)
		}
		if len(users) == 0 {
			break
		}
		for _, user := range users {
			afterID = user.ID
			if _, err := s.AssignCode(ctx, user.ID); err != nil {
				result.Failed++
				if !errors.Is(err, ErrReferralCodeExhausted) {
					logger.Warnw("referral_code_backfill_user_failed", "user_id", user.ID, "error", err)
				}
				continue
			}
			result.Assigned++
		}
	}

	logger.Infow("referral_code_backfill_done", "assigned", result.Assigned, "failed", result.Failed)
	return result, nil
}

// LookupByCode 查询邀请码，不存在返回 nil
func (s *ReferralCodeService) LookupByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if normalized == "" {
		return nil, nil
	}
	if s.cache != nil {
		row, hit, err := s.cache.GetCode(ctx, normalized)
		if err != nil {
			logger.Debugw("referral_code_cache_get_failed", "code", normalized, "error", err)
		} else if hit {
			return s.present(row), nil
		}
	}

	row, err := s.codeRepo.WithContext(ctx).GetByCode(normalized)
	if err != nil || row == nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetCode(ctx, row); err != nil {
			logger.Debugw("referral_code_cache_set_failed", "code", normalized, "error", err)
		}
	}
	return s.present(row), nil
}

// GetByUserID 查询用户邀请码
func (s *ReferralCodeService) GetByUserID(ctx context.Context, userID uint) (*models.ReferralCode, error) {
	row, err := s.codeRepo.WithContext(ctx).GetByUserID(userID)
	if err != nil || row == nil {
		return nil, err
	}
	return s.present(row), nil
}

// present 按当前配置重新生成邀请链接
func (s *ReferralCodeService) present(row *models.ReferralCode) *models.ReferralCode {
	if row == nil {
		return nil
	}
	out := row.WithBaseURL(s.opts.BaseURL)
	return &out
}
