package senderfilter

import (
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestIsIgnored(t *testing.T) {
	f := New([]string{"marketing.example.com", "@promo.example", " NoReply@Shop.example ", ""}, zaptest.NewLogger(t))

	tests := []struct {
		from string
		want bool
	}{
		{"deals@marketing.example.com", true},
		{"Deals <deals@news.marketing.example.com>", true},
		{"someone@notmarketing.example.com", false},
		{"sale@promo.example", true},
		{`"Shop" <noreply@shop.example>`, true},
		{"orders@shop.example", false},
		{"teacher@school.example", false},
		{"not an address", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := f.IsIgnored(tt.from); got != tt.want {
			t.Errorf("IsIgnored(%q) = %v, want %v", tt.from, got, tt.want)
		}
	}
}

func TestEmptyAndNilFilter(t *testing.T) {
	var nilFilter *Filter
	if nilFilter.IsIgnored("a@b.example") {
		t.Error("nil filter ignored a sender")
	}
	if New(nil, nil).IsIgnored("a@b.example") {
		t.Error("empty filter ignored a sender")
	}
}
