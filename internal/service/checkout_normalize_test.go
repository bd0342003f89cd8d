package service

import (
	"errors"
	"reflect"
	"testing"
)

func sampleRawCheckout() RawCheckoutPayload {
	return RawCheckoutPayload{
		"total":                   "600000",
		"subtotal":                "590000.50",
		"shipping":                9999.5,
		"totalItems":              "3",
		"referralDiscountPercent": "0",
		"promoDiscountPercent":    10,
		"items":                   `[{"quantity":"2","price":"100.5","name":"Mouse"},{"quantity":1,"price":"589799.5","subtotal":"589799.5"}]`,
		"partialPayment":          `{"allowedPercentage":"50","selectedPercentage":"30","payNow":"180000","payLater":"420000","toBalance":"0","note":"x"}`,
		"fullPayment":             map[string]interface{}{"total": "600000", "payNow": 600000.0},
		"shippingInfo":            `{"city":"Bogota","zip":"110111"}`,
		"referralCode":            "AB12CD34",
		"isCollectionCenter":      "false",
	}
}

func TestNormalizeCheckoutPayloadCoercesItems(t *testing.T) {
	payload, err := NormalizeCheckoutPayload(RawCheckoutPayload{
		"items": `[{"quantity":"2","price":"100.5"}]`,
	})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(payload.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(payload.Items))
	}
	item, ok := payload.Items[0].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object item, got %#v", payload.Items[0])
	}
	if q, ok := item["quantity"].(float64); !ok || q != 2 {
		t.Fatalf("expected numeric quantity 2, got %#v", item["quantity"])
	}
	if p, ok := item["price"].(float64); !ok || p != 100.5 {
		t.Fatalf("expected numeric price 100.5, got %#v", item["price"])
	}
	if _, exists := item["subtotal"]; exists {
		t.Fatalf("normalizer must not invent missing fields")
	}
}

func TestNormalizeCheckoutPayloadTypedFields(t *testing.T) {
	payload, err := NormalizeCheckoutPayload(sampleRawCheckout())
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if payload.Total == nil || *payload.Total != 600000 {
		t.Fatalf("unexpected total: %v", payload.Total)
	}
	if payload.Shipping == nil || *payload.Shipping != 9999.5 {
		t.Fatalf("unexpected shipping: %v", payload.Shipping)
	}
	if payload.PromoDiscountPercent == nil || *payload.PromoDiscountPercent != 10 {
		t.Fatalf("unexpected promo percent: %v", payload.PromoDiscountPercent)
	}
	if payload.ReferralDiscountAmount != nil {
		t.Fatalf("absent numeric field must stay absent")
	}
	if v, ok := payload.PartialPayment["payLater"].(float64); !ok || v != 420000 {
		t.Fatalf("unexpected partial payLater: %#v", payload.PartialPayment["payLater"])
	}
	if payload.PartialPayment["note"] != "x" {
		t.Fatalf("non numeric keys must be preserved")
	}
	if v, ok := payload.FullPayment["total"].(float64); !ok || v != 600000 {
		t.Fatalf("unexpected full total: %#v", payload.FullPayment["total"])
	}
	if payload.ShippingInfo["zip"] != "110111" {
		t.Fatalf("shipping info must not be coerced: %#v", payload.ShippingInfo["zip"])
	}
	if payload.String("referralCode") != "AB12CD34" {
		t.Fatalf("unexpected referral code: %q", payload.String("referralCode"))
	}
	if payload.Bool("isCollectionCenter") {
		t.Fatalf("expected collection center false")
	}
}

func TestNormalizeCheckoutPayloadIdempotent(t *testing.T) {
	first, err := NormalizeCheckoutPayload(sampleRawCheckout())
	if err != nil {
		t.Fatalf("first normalize failed: %v", err)
	}
	second, err := NormalizeCheckoutPayload(first.ToRaw())
	if err != nil {
		t.Fatalf("second normalize failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize is not idempotent:\nfirst=%#v\nsecond=%#v", first, second)
	}
	if !reflect.DeepEqual(first.ToRaw(), second.ToRaw()) {
		t.Fatalf("raw projections differ")
	}
}

func TestNormalizeCheckoutPayloadRejectsInvalid(t *testing.T) {
	cases := []struct {
		name  string
		raw   RawCheckoutPayload
		field string
	}{
		{"broken items json", RawCheckoutPayload{"items": `[{"quantity":`}, "items"},
		{"non numeric total", RawCheckoutPayload{"total": "abc"}, "total"},
		{"nan total", RawCheckoutPayload{"total": "NaN"}, "total"},
		{"non numeric item price", RawCheckoutPayload{"items": `[{"price":"free"}]`}, "items[0].price"},
		{"broken partial payment", RawCheckoutPayload{"partialPayment": "{"}, "partialPayment"},
		{"non numeric nested leaf", RawCheckoutPayload{"fullPayment": `{"payNow":"soon"}`}, "fullPayment.payNow"},
		{"bool amount", RawCheckoutPayload{"subtotal": true}, "subtotal"},
	}
	for _, tc := range cases {
		_, err := NormalizeCheckoutPayload(tc.raw)
		if !errors.Is(err, ErrCheckoutValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
		var fieldErr *CheckoutValidationError
		if !errors.As(err, &fieldErr) || fieldErr.Field != tc.field {
			t.Fatalf("%s: expected field %s, got %v", tc.name, tc.field, err)
		}
	}
}

func TestNormalizeCheckoutPayloadKeepsUnstructuredValues(t *testing.T) {
	raw := RawCheckoutPayload{
		"items":          `{"quantity":"1"}`,
		"shippingInfo":   `["Bogota","110111"]`,
		"partialPayment": "",
		"fullPayment":    nil,
		"total":          nil,
		"referralCode":   "",
	}
	payload, err := NormalizeCheckoutPayload(raw)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if payload.Items != nil || payload.ShippingInfo != nil || payload.PartialPayment != nil || payload.FullPayment != nil {
		t.Fatalf("unexpected structured values: %#v", payload)
	}
	if payload.Total != nil {
		t.Fatalf("null total must stay unset")
	}

	out := payload.ToRaw()
	for key := range raw {
		if _, exists := out[key]; !exists {
			t.Fatalf("key %s dropped, raw=%#v", key, out)
		}
	}
	if len(out) != len(raw) {
		t.Fatalf("keys invented: %#v", out)
	}
	if obj, ok := out["items"].(map[string]interface{}); !ok || obj["quantity"] != "1" {
		t.Fatalf("non-sequence items must pass through untouched, got %#v", out["items"])
	}
	if list, ok := out["shippingInfo"].([]interface{}); !ok || len(list) != 2 {
		t.Fatalf("non-object shippingInfo must pass through, got %#v", out["shippingInfo"])
	}
	if out["partialPayment"] != "" || out["fullPayment"] != nil || out["total"] != nil {
		t.Fatalf("empty values must be kept as-is: %#v", out)
	}

	again, err := NormalizeCheckoutPayload(out)
	if err != nil {
		t.Fatalf("second normalize failed: %v", err)
	}
	if !reflect.DeepEqual(payload, again) {
		t.Fatalf("normalize is not idempotent:\nfirst=%#v\nsecond=%#v", payload, again)
	}
}

func TestNormalizeCheckoutPayloadKeepsNonObjectItems(t *testing.T) {
	payload, err := NormalizeCheckoutPayload(RawCheckoutPayload{"items": `[{"price":"9.5"},"gift-wrap"]`})
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[1] != "gift-wrap" {
		t.Fatalf("non-object element must be kept, got %#v", payload.Items)
	}
	if item := payload.Items[0].(map[string]interface{}); item["price"] != 9.5 {
		t.Fatalf("object element must be coerced, got %#v", item)
	}
	if _, err := payload.ItemObjects(); err == nil {
		t.Fatalf("expected ItemObjects to reject non-object element")
	}
}
