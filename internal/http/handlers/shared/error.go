package shared

import (
	"errors"

	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/logger"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLog 提供携带 request_id 的日志实例。
func RequestLog(c *gin.Context) *zap.SugaredLogger {
	if c == nil {
		return logger.S()
	}
	if id := c.GetString(response.RequestIDKey); id != "" {
		return logger.SW("request_id", id)
	}
	return logger.S()
}

// RespondError 返回错误响应，并在有原始错误时记录日志。
func RespondError(c *gin.Context, code int, msg string, err error) {
	appErr := response.WrapError(code, msg, err)
	if err != nil {
		RequestLog(c).Errorw("handler_error",
			"code", appErr.Code,
			"message", appErr.Message,
			"error", err,
		)
	}
	response.AppErrorResponse(c, appErr)
}

// MappedError 业务错误到接口错误响应的映射关系。
type MappedError struct {
	Target error
	Code   int
	Msg    string
}

// ServiceErrorRules 服务层哨兵错误的默认映射
var ServiceErrorRules = []MappedError{
	{Target: service.ErrNotFound, Code: response.CodeNotFound, Msg: "resource not found"},
	{Target: service.ErrUserInvalid, Code: response.CodeBadRequest, Msg: "invalid user"},
	{Target: service.ErrUserExists, Code: response.CodeConflict, Msg: "user already exists"},
	{Target: service.ErrAffiliateLinkInvalid, Code: response.CodeBadRequest, Msg: "invalid affiliate slug"},
	{Target: service.ErrAffiliateLinkExists, Code: response.CodeConflict, Msg: "affiliate slug already taken"},
	{Target: service.ErrCommissionNotPending, Code: response.CodeConflict, Msg: "commission is not pending"},
	{Target: service.ErrWalletInsufficientPending, Code: response.CodeConflict, Msg: "insufficient pending balance"},
	{Target: service.ErrOrderStatusInvalid, Code: response.CodeConflict, Msg: "order status does not allow this operation"},
	{Target: service.ErrReferralCodeExhausted, Code: response.CodeUnavailable, Msg: "referral code generation exhausted"},
}

// RespondServiceError 按映射表输出业务错误，未命中时记录原始错误并返回兜底响应。
func RespondServiceError(c *gin.Context, err error, fallbackMsg string) {
	var validationErr *service.CheckoutValidationError
	if errors.As(err, &validationErr) {
		appErr := response.WrapError(response.CodeBadRequest, validationErr.Error(), nil).WithField(validationErr.Field)
		response.AppErrorResponse(c, appErr)
		return
	}
	for _, rule := range ServiceErrorRules {
		if errors.Is(err, rule.Target) {
			RespondError(c, rule.Code, rule.Msg, nil)
			return
		}
	}
	RespondError(c, response.CodeInternal, fallbackMsg, err)
}
