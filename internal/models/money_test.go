package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyDisplay(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"5", "5.00"},
		{"999.995", "1,000.00"},
		{"90000", "90,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-30150.5", "-30,150.50"},
	}
	for _, tc := range cases {
		got := NewMoney(decimal.RequireFromString(tc.in)).Display()
		if got != tc.want {
			t.Fatalf("display %s: want %s got %s", tc.in, tc.want, got)
		}
	}
}

func TestMoneyUnmarshalAcceptsStringAndNumber(t *testing.T) {
	var payload struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	if err := json.Unmarshal([]byte(`{"a":"100.505","b":12.3}`), &payload); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if payload.A.String() != "100.51" {
		t.Fatalf("unexpected a: %s", payload.A.String())
	}
	if payload.B.String() != "12.30" {
		t.Fatalf("unexpected b: %s", payload.B.String())
	}
}

func TestWalletBalanced(t *testing.T) {
	w := Wallet{
		Available: NewMoneyFromFloat(10),
		Pending:   NewMoneyFromFloat(90000),
		Total:     NewMoneyFromFloat(90010),
	}
	if !w.Balanced() {
		t.Fatalf("expected balanced wallet")
	}
	w.Total = NewMoneyFromFloat(90000)
	if w.Balanced() {
		t.Fatalf("expected unbalanced wallet")
	}
}

func TestBuildReferralURL(t *testing.T) {
	if got := BuildReferralURL("https://shop.example.com/r/", "AB12CD34"); got != "https://shop.example.com/r/AB12CD34" {
		t.Fatalf("unexpected url: %s", got)
	}
	code := ReferralCode{Code: "ZZ99ZZ99", URL: "https://old.example.com/ZZ99ZZ99"}
	if got := code.WithBaseURL("https://new.example.com").URL; got != "https://new.example.com/ZZ99ZZ99" {
		t.Fatalf("unexpected recomputed url: %s", got)
	}
}
