package public

import (
	"strings"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateUserRequest 用户注册请求
type CreateUserRequest struct {
	Email       string `json:"email" binding:"required"`
	Password    string `json:"password" binding:"required"`
	DisplayName string `json:"display_name"`
}

// CreateAffiliateLinkRequest 创建推广链接请求
type CreateAffiliateLinkRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Slug   string `json:"slug" binding:"required"`
}

// CreateUser 注册用户并分配邀请码
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", nil)
		return
	}
	user, err := h.UserService.CreateUser(c.Request.Context(), service.CreateUserInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err, "user create failed")
		return
	}
	response.Success(c, user)
}

// GetUser 查询用户及其邀请码
func (h *Handler) GetUser(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	user, err := h.UserService.GetUser(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "user fetch failed")
		return
	}
	response.Success(c, user)
}

// GetReferralCode 按邀请码查询，URL 以当前配置重新计算
func (h *Handler) GetReferralCode(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	row, err := h.ReferralCodeService.LookupByCode(c.Request.Context(), code)
	if err != nil {
		respondError(c, response.CodeInternal, "referral code fetch failed", err)
		return
	}
	if row == nil {
		response.NotFound(c, "referral code not found")
		return
	}
	response.Success(c, row)
}

// GetAffiliateLink 按 slug 查询推广链接
func (h *Handler) GetAffiliateLink(c *gin.Context) {
	link, err := h.AffiliateService.LookupBySlug(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, response.CodeInternal, "affiliate link fetch failed", err)
		return
	}
	if link == nil {
		response.NotFound(c, "affiliate link not found")
		return
	}
	response.Success(c, link)
}

// CreateAffiliateLink 为用户创建推广链接
func (h *Handler) CreateAffiliateLink(c *gin.Context) {
	var req CreateAffiliateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request", nil)
		return
	}
	link, err := h.AffiliateService.CreateAffiliateLink(c.Request.Context(), req.UserID, req.Slug)
	if err != nil {
		handlershared.RespondServiceError(c, err, "affiliate link create failed")
		return
	}
	response.Success(c, link)
}

// GetWallet 查询推广用户钱包
func (h *Handler) GetWallet(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	wallet, err := h.AffiliateService.GetWallet(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "wallet fetch failed")
		return
	}
	response.Success(c, wallet)
}

// ListAffiliateLinks 查询推广用户的链接列表
func (h *Handler) ListAffiliateLinks(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	links, err := h.AffiliateService.ListLinks(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "affiliate links fetch failed")
		return
	}
	response.Success(c, links)
}
