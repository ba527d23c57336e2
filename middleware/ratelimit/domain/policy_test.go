package domain

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultPolicies_TierTable(t *testing.T) {
	p := DefaultPolicies()

	cases := []struct {
		tier Tier
		want Policy
	}{
		{TierAnonymous, Policy{Limit: 20, Window: time.Minute}},
		{TierAuthenticated, Policy{Limit: 100, Window: time.Minute}},
		{TierPremium, Policy{Limit: 500, Window: time.Minute}},
	}
	for _, tc := range cases {
		got, ok := p.Tier(tc.tier)
		if !ok {
			t.Fatalf("%s: expected a policy", tc.tier)
		}
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.tier, tc.want, got)
		}
	}

	if _, ok := p.Tier(TierAdmin); ok {
		t.Fatalf("admin must not have a policy (bypass)")
	}
}

func TestDefaultPolicies_CategoryTable(t *testing.T) {
	p := DefaultPolicies()

	want := map[Category]Policy{
		CategoryLogin:            {5, time.Minute},
		CategoryUpload:           {10, time.Hour},
		CategorySearch:           {200, time.Minute},
		CategoryAnalytics:        {5000, time.Hour},
		CategoryChatMessage:      {300, time.Minute},
		CategoryChatRoomCreate:   {5, time.Hour},
		CategoryAssignmentSubmit: {10, time.Hour},
		CategoryReportGenerate:   {10, time.Hour},
		CategoryAdminPanel:       {5000, time.Hour},
		CategoryAdminPanelBurst:  {200, time.Minute},
	}
	if len(want) != len(Categories()) {
		t.Fatalf("table covers %d categories, enum has %d", len(want), len(Categories()))
	}
	for c, w := range want {
		if got := p.Category(c); got != w {
			t.Fatalf("%s: expected %s, got %s", c, w, got)
		}
		if err := p.Category(c).Validate(); err != nil {
			t.Fatalf("%s: invalid default: %v", c, err)
		}
	}
}

func TestPolicies_WithTierReturnsCopy(t *testing.T) {
	base := DefaultPolicies()
	next, err := base.WithTier(TierAnonymous, Policy{Limit: 3, Window: time.Second})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, _ := base.Tier(TierAnonymous); got.Limit != 20 {
		t.Fatalf("base table was mutated: %s", got)
	}
	if got, _ := next.Tier(TierAnonymous); got.Limit != 3 {
		t.Fatalf("override not applied: %s", got)
	}
}

func TestPolicies_RejectsAdminAndInvalid(t *testing.T) {
	p := DefaultPolicies()
	if _, err := p.WithTier(TierAdmin, Policy{Limit: 1, Window: time.Second}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for admin, got %v", err)
	}
	if _, err := p.WithCategory(CategoryLogin, Policy{Limit: 0, Window: time.Second}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for zero limit, got %v", err)
	}
	if _, err := p.WithCategory(CategoryLogin, Policy{Limit: 1}); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy for zero window, got %v", err)
	}
}

func TestParseCategory_AcceptsDashes(t *testing.T) {
	c, err := ParseCategory("Chat-Room-Create")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c != CategoryChatRoomCreate {
		t.Fatalf("expected chat_room_create, got %s", c)
	}
	if _, err := ParseCategory("billing"); err == nil {
		t.Fatalf("expected error for unknown category")
	}
}

func TestParseTier_AcceptsNameOrScope(t *testing.T) {
	for in, want := range map[string]Tier{"anon": TierAnonymous, "Authenticated": TierAuthenticated, "user": TierAuthenticated, "premium": TierPremium} {
		got, err := ParseTier(in)
		if err != nil || got != want {
			t.Fatalf("ParseTier(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
}

func TestIdentityFor(t *testing.T) {
	cases := []struct {
		p    Principal
		tier Tier
	}{
		{Principal{ID: "7"}, TierAuthenticated},
		{Principal{ID: "7", Premium: true}, TierPremium},
		{Principal{ID: "7", Staff: true, Premium: true}, TierAdmin},
	}
	for _, tc := range cases {
		id := IdentityFor(tc.p)
		if id.Identifier != "user_7" {
			t.Fatalf("expected user_7, got %q", id.Identifier)
		}
		if id.Tier != tc.tier {
			t.Fatalf("expected %s, got %s", tc.tier, id.Tier)
		}
	}

	if got := NewKey("login", AnonymousIdentity("203.0.113.5").Identifier); got != "login:ip_203.0.113.5" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := NewKey("", "user_1"); got != "default:user_1" {
		t.Fatalf("unexpected default-scope key %q", got)
	}
}
