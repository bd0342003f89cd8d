package public

import (
	"encoding/json"
	"strings"

	handlershared "github.com/dujiao-next/affiliate-engine/internal/http/handlers/shared"
	"github.com/dujiao-next/affiliate-engine/internal/http/response"
	"github.com/dujiao-next/affiliate-engine/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

const (
	// checkoutUserIDKey 载荷中的下单用户字段，缺省为游客
	checkoutUserIDKey     = "userId"
	checkoutFormMaxMemory = 8 << 20
)

// Checkout 创建待支付订单，支持 JSON 与表单两种提交方式
func (h *Handler) Checkout(c *gin.Context) {
	payload, err := bindCheckoutPayload(c)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid checkout payload", nil)
		return
	}
	userID, err := parseCheckoutUserID(payload[checkoutUserIDKey])
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid userId", nil)
		return
	}
	delete(payload, checkoutUserIDKey)

	order, err := h.OrderService.Checkout(c.Request.Context(), service.CheckoutInput{
		UserID:  userID,
		Payload: payload,
	})
	if err != nil {
		handlershared.RespondServiceError(c, err, "checkout failed")
		return
	}
	response.Success(c, order)
}

// GetOrder 查询订单
func (h *Handler) GetOrder(c *gin.Context) {
	id, ok := handlershared.ParseUintParam(c, "id")
	if !ok {
		return
	}
	order, err := h.OrderService.GetOrder(c.Request.Context(), id)
	if err != nil {
		handlershared.RespondServiceError(c, err, "order fetch failed")
		return
	}
	response.Success(c, order)
}

// bindCheckoutPayload 表单提交时所有值均为字符串，结构化字段为 JSON 文本，交由规范化处理
func bindCheckoutPayload(c *gin.Context) (service.RawCheckoutPayload, error) {
	contentType := c.ContentType()
	isForm := contentType == gin.MIMEPOSTForm
	isMultipart := contentType == gin.MIMEMultipartPOSTForm
	if isForm || isMultipart {
		var err error
		if isMultipart {
			err = c.Request.ParseMultipartForm(checkoutFormMaxMemory)
		} else {
			err = c.Request.ParseForm()
		}
		if err != nil {
			return nil, err
		}
		payload := service.RawCheckoutPayload{}
		for key, values := range c.Request.PostForm {
			if len(values) > 0 {
				payload[key] = values[len(values)-1]
			}
		}
		return payload, nil
	}

	payload := service.RawCheckoutPayload{}
	decoder := json.NewDecoder(c.Request.Body)
	if err := decoder.Decode(&payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func parseCheckoutUserID(value interface{}) (uint, error) {
	if text, ok := value.(string); ok {
		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
		value = text
	}
	return cast.ToUintE(value)
}
