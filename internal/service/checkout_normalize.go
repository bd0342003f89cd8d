package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

// 结算载荷字段名（与前端表单保持一致）
const (
	checkoutFieldItems          = "items"
	checkoutFieldPartialPayment = "partialPayment"
	checkoutFieldFullPayment    = "fullPayment"
	checkoutFieldShippingInfo   = "shippingInfo"

	checkoutFieldTotal                  = "total"
	checkoutFieldSubtotal               = "subtotal"
	checkoutFieldShipping               = "shipping"
	checkoutFieldTotalItems             = "totalItems"
	checkoutFieldReferralDiscountPct    = "referralDiscountPercent"
	checkoutFieldReferralDiscountAmount = "referralDiscountAmount"
	checkoutFieldPromoDiscountPct       = "promoDiscountPercent"
	checkoutFieldPromoDiscountAmount    = "promoDiscountAmount"
)

var (
	checkoutItemNumericKeys = []string{"quantity", "price", "subtotal"}
	structuredNumericKeys   = map[string][]string{
		checkoutFieldPartialPayment: {"allowedPercentage", "selectedPercentage", "payNow", "payLater", "toBalance"},
		checkoutFieldFullPayment:    {"total", "payNow", "payLater"},
		checkoutFieldShippingInfo:   nil,
	}
)

// CheckoutValidationError 结算载荷字段错误
type CheckoutValidationError struct {
	Field  string
	Reason string
}

func (e *CheckoutValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Unwrap 使 errors.Is(err, ErrCheckoutValidation) 成立
func (e *CheckoutValidationError) Unwrap() error {
	return ErrCheckoutValidation
}

func checkoutFieldError(field, reason string) error {
	return &CheckoutValidationError{Field: field, Reason: reason}
}

// RawCheckoutPayload 弱类型结算载荷，值可能是字符串、JSON 文本或原生类型
type RawCheckoutPayload map[string]interface{}

// CheckoutPayload 规范化后的结算载荷
type CheckoutPayload struct {
	Total                   *float64
	Subtotal                *float64
	Shipping                *float64
	TotalItems              *float64
	ReferralDiscountPercent *float64
	ReferralDiscountAmount  *float64
	PromoDiscountPercent    *float64
	PromoDiscountAmount     *float64

	// Items 元素为对象时已完成数字转换，其余元素原样保留
	Items          []interface{}
	PartialPayment map[string]interface{}
	FullPayment    map[string]interface{}
	ShippingInfo   map[string]interface{}

	// Extra 其余字段原样保留，包括空值与无法结构化的结构字段
	Extra map[string]interface{}
}

// NormalizeCheckoutPayload 将弱类型载荷转换为强类型载荷，对已规范化的数据无副作用。
// 只改变表示形式，不增删字段：空值与非预期形状的结构字段保留在 Extra 中。
func NormalizeCheckoutPayload(raw RawCheckoutPayload) (*CheckoutPayload, error) {
	out := &CheckoutPayload{Extra: map[string]interface{}{}}

	numeric := out.numericFields()
	for key, value := range raw {
		if target, ok := numeric[key]; ok {
			n, present, err := coerceNumber(key, value)
			if err != nil {
				return nil, err
			}
			if present {
				*target = &n
			} else {
				out.Extra[key] = value
			}
			continue
		}
		switch key {
		case checkoutFieldItems:
			items, ok, err := normalizeItems(value)
			if err != nil {
				return nil, err
			}
			if ok {
				out.Items = items
			} else {
				out.Extra[key] = passthrough(value)
			}
		case checkoutFieldPartialPayment, checkoutFieldFullPayment, checkoutFieldShippingInfo:
			obj, ok, err := normalizeObject(key, value, structuredNumericKeys[key])
			if err != nil {
				return nil, err
			}
			if ok {
				*out.objectField(key) = obj
			} else {
				out.Extra[key] = passthrough(value)
			}
		default:
			out.Extra[key] = value
		}
	}
	return out, nil
}

// ToRaw 还原为原生类型的弱类型载荷
func (p *CheckoutPayload) ToRaw() RawCheckoutPayload {
	raw := RawCheckoutPayload{}
	if p == nil {
		return raw
	}
	for key, value := range p.Extra {
		raw[key] = value
	}
	for key, target := range p.numericFields() {
		if *target != nil {
			raw[key] = **target
		}
	}
	if p.Items != nil {
		raw[checkoutFieldItems] = p.Items
	}
	if p.PartialPayment != nil {
		raw[checkoutFieldPartialPayment] = p.PartialPayment
	}
	if p.FullPayment != nil {
		raw[checkoutFieldFullPayment] = p.FullPayment
	}
	if p.ShippingInfo != nil {
		raw[checkoutFieldShippingInfo] = p.ShippingInfo
	}
	return raw
}

// String 读取附加字段的字符串值
func (p *CheckoutPayload) String(key string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(cast.ToString(p.Extra[key]))
}

// Bool 读取附加字段的布尔值，"true"/"1" 等均可识别
func (p *CheckoutPayload) Bool(key string) bool {
	if p == nil {
		return false
	}
	value := p.Extra[key]
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	return cast.ToBool(value)
}

// Value 读取附加字段原值
func (p *CheckoutPayload) Value(key string) interface{} {
	if p == nil {
		return nil
	}
	return p.Extra[key]
}

func (p *CheckoutPayload) numericFields() map[string]**float64 {
	return map[string]**float64{
		checkoutFieldTotal:                  &p.Total,
		checkoutFieldSubtotal:               &p.Subtotal,
		checkoutFieldShipping:               &p.Shipping,
		checkoutFieldTotalItems:             &p.TotalItems,
		checkoutFieldReferralDiscountPct:    &p.ReferralDiscountPercent,
		checkoutFieldReferralDiscountAmount: &p.ReferralDiscountAmount,
		checkoutFieldPromoDiscountPct:       &p.PromoDiscountPercent,
		checkoutFieldPromoDiscountAmount:    &p.PromoDiscountAmount,
	}
}

func (p *CheckoutPayload) objectField(key string) *map[string]interface{} {
	switch key {
	case checkoutFieldPartialPayment:
		return &p.PartialPayment
	case checkoutFieldFullPayment:
		return &p.FullPayment
	default:
		return &p.ShippingInfo
	}
}

// ItemObjects 返回对象形式的商品项，遇到非对象元素时返回字段错误
func (p *CheckoutPayload) ItemObjects() ([]map[string]interface{}, error) {
	if p == nil {
		return nil, nil
	}
	items := make([]map[string]interface{}, 0, len(p.Items))
	for idx, element := range p.Items {
		obj, ok := element.(map[string]interface{})
		if !ok {
			return nil, checkoutFieldError(fmt.Sprintf("%s[%d]", checkoutFieldItems, idx), "must be an object")
		}
		items = append(items, obj)
	}
	return items, nil
}

// passthrough 空白文本、null 与非预期形状的值不做转换
func passthrough(value interface{}) interface{} {
	if text, ok := value.(string); ok && strings.TrimSpace(text) != "" {
		var decoded interface{}
		if err := json.Unmarshal([]byte(text), &decoded); err == nil {
			return decoded
		}
	}
	return value
}

// decodeStructured 文本值按 JSON 解析，原生结构原样返回
func decodeStructured(field string, value interface{}) (interface{}, error) {
	text, ok := value.(string)
	if !ok {
		return value, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var decoded interface{}
	if err := json.Unmarshal([]byte(text), &decoded); err != nil {
		return nil, checkoutFieldError(field, "invalid json: "+err.Error())
	}
	return decoded, nil
}

// normalizeItems 仅当 items 为序列时逐项转换，第二个返回值表示是否已结构化
func normalizeItems(value interface{}) ([]interface{}, bool, error) {
	decoded, err := decodeStructured(checkoutFieldItems, value)
	if err != nil {
		return nil, false, err
	}
	var elements []interface{}
	switch v := decoded.(type) {
	case []interface{}:
		elements = v
	case []map[string]interface{}:
		elements = make([]interface{}, 0, len(v))
		for _, item := range v {
			elements = append(elements, item)
		}
	default:
		return nil, false, nil
	}

	items := make([]interface{}, 0, len(elements))
	for idx, element := range elements {
		obj, ok := element.(map[string]interface{})
		if !ok {
			items = append(items, element)
			continue
		}
		normalized, err := coerceObjectNumbers(fmt.Sprintf("%s[%d]", checkoutFieldItems, idx), obj, checkoutItemNumericKeys)
		if err != nil {
			return nil, false, err
		}
		items = append(items, normalized)
	}
	return items, true, nil
}

// normalizeObject 仅当值为对象时转换指定数字键，第二个返回值表示是否已结构化
func normalizeObject(field string, value interface{}, numericKeys []string) (map[string]interface{}, bool, error) {
	decoded, err := decodeStructured(field, value)
	if err != nil {
		return nil, false, err
	}
	obj, ok := decoded.(map[string]interface{})
	if !ok {
		return nil, false, nil
	}
	normalized, err := coerceObjectNumbers(field, obj, numericKeys)
	if err != nil {
		return nil, false, err
	}
	return normalized, true, nil
}

// coerceObjectNumbers 复制对象并将指定键转换为数字，缺失的键不补齐
func coerceObjectNumbers(field string, obj map[string]interface{}, keys []string) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	for _, key := range keys {
		value, exists := obj[key]
		if !exists {
			continue
		}
		n, present, err := coerceNumber(field+"."+key, value)
		if err != nil {
			return nil, err
		}
		if present {
			out[key] = n
		}
	}
	return out, nil
}

// coerceNumber 文本按浮点解析，原生数字保持不变；NaN/Inf 与非数字文本视为校验失败
func coerceNumber(field string, value interface{}) (float64, bool, error) {
	var n float64
	switch v := value.(type) {
	case nil:
		return 0, false, nil
	case float64:
		n = v
	case string:
		text := strings.TrimSpace(v)
		if text == "" {
			return 0, false, checkoutFieldError(field, "empty number")
		}
		parsed, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, false, checkoutFieldError(field, "not a number")
		}
		n = parsed
	case bool, map[string]interface{}, []interface{}:
		return 0, false, checkoutFieldError(field, "not a number")
	default:
		parsed, err := cast.ToFloat64E(v)
		if err != nil {
			return 0, false, checkoutFieldError(field, "not a number")
		}
		n = parsed
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false, checkoutFieldError(field, "not a finite number")
	}
	return n, true, nil
}
