package admin

import (
	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"

	"github.com/gin-gonic/gin"
)

// CompleteOrder 确认支付并归因佣金
func (h *Handler) CompleteOrder(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	result, err := h.OrderService.Complete(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "order complete failed")
		return
	}
	response.Success(c, result)
}

// DeliverOrder 确认签收并审核通过佣金，失败时订单状态不变可重试
func (h *Handler) DeliverOrder(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	order, transitions, err := h.OrderService.Deliver(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "order deliver failed")
		return
	}
	response.Success(c, gin.H{
		"order":       order,
		"commissions": transitions,
	})
}

// CancelOrder 取消订单并驳回待确认佣金
func (h *Handler) CancelOrder(c *gin.Context) {
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
	order, transitions, err := h.OrderService.Cancel(c.Request.Context(), id, req.Reason)
	if err != nil {
		handlershared.RespondServiceError(c, err, "order cancel failed")
		return
	}
	response.Success(c, gin.H{
		"order":       order,
		"commissions": transitions,
	})
}
