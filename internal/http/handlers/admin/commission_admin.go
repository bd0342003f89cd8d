package admin

import (
	"strings"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

// ListCommissions 佣金分页列表
func (h *Handler) ListCommissions(c *gin.Context) {
	page, pageSize := handlershared.NormalizePagination(cast.ToInt(c.Query("page")), cast.ToInt(c.Query("page_size")))
	filter := repository.CommissionListFilter{
		Page:        page,
		PageSize:    pageSize,
		AffiliateID: cast.ToUint(c.Query("affiliate_id")),
		OrderID:     cast.ToUint(c.Query("order_id")),
		Status:      strings.TrimSpace(c.Query("status")),
	}
	rows, total, err := h.AffiliateService.ListCommissions(c.Request.Context(), filter)
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "commission list failed", err)
		return
	}
	response.SuccessWithPage(c, rows, response.BuildPagination(page, pageSize, total))
}

// ApproveCommission 审核通过佣金
func (h *Handler) ApproveCommission(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	result, err := h.AffiliateService.ApproveCommission(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "commission approve failed")
		return
	}
	response.Success(c, result)
}

// RejectCommission 驳回佣金
func (h *Handler) RejectCommission(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	var req ReasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			handlershared.RespondError(c, response.CodeBadRequest, "invalid request", nil)
			return
		}
	}
	result, err := h.AffiliateService.RejectCommission(c.Request.Context(), id, req.Reason)
	if err != nil {
		handlershared.RespondServiceError(c, err, "commission reject failed")
		return
	}
	response.Success(c, result)
}

// BackfillReferralCodes 为缺少邀请码的用户补发
func (h *Handler) BackfillReferralCodes(c *gin.Context) {
	result, err := h.ReferralCodeService.Backfill(c.Request.Context())
	if err != nil {
		handlershared.RespondError(c, response.CodeInternal, "referral code backfill failed", err)
		return
	}
	response.SuccessWithMsg(c, "backfill finished", result)
}
