package admin

import (
	"github.com/dujiao-next/affiliate-engine/internal/provider"
)

// Handler 后台管理接口处理器入口
// 说明：该处理器仅用于管理端 API，需经过管理员 JWT 校验。
type Handler struct {
	*provider.Container
}

// New 创建后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// ReasonRequest 驳回/取消原因
type ReasonRequest struct {
	Reason string `json:"reason"`
}
