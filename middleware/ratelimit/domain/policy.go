package domain

import (
	"fmt"
	"strings"
	"time"
)

// Policy é o par imutável (limit, window).
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) Validate() error {
	if p.Limit <= 0 {
		return fmt.Errorf("%w: limit must be > 0, got %d", ErrInvalidPolicy, p.Limit)
	}
	if p.Window <= 0 {
		return fmt.Errorf("%w: window must be > 0, got %s", ErrInvalidPolicy, p.Window)
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.Limit, p.Window)
}

// Tier classifica o solicitante.
type Tier int

const (
	TierAnonymous Tier = iota
	TierAuthenticated
	TierPremium
	TierAdmin

	tierCount
)

func (t Tier) String() string {
	switch t {
	case TierAnonymous:
		return "anonymous"
	case TierAuthenticated:
		return "authenticated"
	case TierPremium:
		return "premium"
	case TierAdmin:
		return "admin"
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// Scope é o prefixo de chave usado pela política do tier.
func (t Tier) Scope() string {
	switch t {
	case TierAnonymous:
		return "anon"
	case TierAuthenticated:
		return "user"
	case TierPremium:
		return "premium"
	case TierAdmin:
		return "admin"
	}
	return t.String()
}

// Tiers lista todos os tiers em ordem.
func Tiers() []Tier {
	return []Tier{TierAnonymous, TierAuthenticated, TierPremium, TierAdmin}
}

func ParseTier(s string) (Tier, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, t := range Tiers() {
		if v == t.String() || v == t.Scope() {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// Category é a categoria de endpoint com limite próprio.
type Category int

const (
	CategoryLogin Category = iota
	CategoryUpload
	CategorySearch
	CategoryAnalytics
	CategoryChatMessage
	CategoryChatRoomCreate
	CategoryAssignmentSubmit
	CategoryReportGenerate
	CategoryAdminPanel
	CategoryAdminPanelBurst

	categoryCount
)

func (c Category) Scope() string {
	switch c {
	case CategoryLogin:
		return "login"
	case CategoryUpload:
		return "upload"
	case CategorySearch:
		return "search"
	case CategoryAnalytics:
		return "analytics"
	case CategoryChatMessage:
		return "chat_message"
	case CategoryChatRoomCreate:
		return "chat_room_create"
	case CategoryAssignmentSubmit:
		return "assignment_submit"
	case CategoryReportGenerate:
		return "report_generate"
	case CategoryAdminPanel:
		return "admin_panel"
	case CategoryAdminPanelBurst:
		return "admin_panel_burst"
	}
	return fmt.Sprintf("category(%d)", int(c))
}

func (c Category) String() string { return c.Scope() }

func Categories() []Category {
	out := make([]Category, 0, int(categoryCount))
	for c := CategoryLogin; c < categoryCount; c++ {
		out = append(out, c)
	}
	return out
}

// ParseCategory aceita o scope com '_' ou '-' ("chat-message" == "chat_message").
func ParseCategory(s string) (Category, error) {
	v := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_")
	for _, c := range Categories() {
		if v == c.Scope() {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown endpoint category %q", s)
}

// DefaultTierPolicy retorna a política padrão do tier.
// ok=false para admin: admin não tem política, é bypass.
func DefaultTierPolicy(t Tier) (Policy, bool) {
	switch t {
	case TierAnonymous:
		return Policy{Limit: 20, Window: time.Minute}, true
	case TierAuthenticated:
		return Policy{Limit: 100, Window: time.Minute}, true
	case TierPremium:
		return Policy{Limit: 500, Window: time.Minute}, true
	case TierAdmin:
		return Policy{}, false
	}
	return Policy{}, false
}

func DefaultCategoryPolicy(c Category) Policy {
	switch c {
	case CategoryLogin:
		return Policy{Limit: 5, Window: time.Minute}
	case CategoryUpload:
		return Policy{Limit: 10, Window: time.Hour}
	case CategorySearch:
		return Policy{Limit: 200, Window: time.Minute}
	case CategoryAnalytics:
		return Policy{Limit: 5000, Window: time.Hour}
	case CategoryChatMessage:
		return Policy{Limit: 300, Window: time.Minute}
	case CategoryChatRoomCreate:
		return Policy{Limit: 5, Window: time.Hour}
	case CategoryAssignmentSubmit:
		return Policy{Limit: 10, Window: time.Hour}
	case CategoryReportGenerate:
		return Policy{Limit: 10, Window: time.Hour}
	case CategoryAdminPanel:
		return Policy{Limit: 5000, Window: time.Hour}
	case CategoryAdminPanelBurst:
		return Policy{Limit: 200, Window: time.Minute}
	}
	return Policy{}
}

// Policies é a tabela estática tier/categoria -> política.
//
// É um valor: WithTier/WithCategory devolvem cópias. Montada uma vez no
// startup (defaults + overrides do arquivo) e nunca alterada depois.
type Policies struct {
	tiers      [tierCount]Policy
	categories [categoryCount]Policy
}

func DefaultPolicies() Policies {
	var p Policies
	for _, t := range Tiers() {
		p.tiers[t], _ = DefaultTierPolicy(t)
	}
	for _, c := range Categories() {
		p.categories[c] = DefaultCategoryPolicy(c)
	}
	return p
}

// Tier retorna a política do tier; ok=false significa bypass (admin).
func (p Policies) Tier(t Tier) (Policy, bool) {
	if t == TierAdmin || t < 0 || t >= tierCount {
		return Policy{}, false
	}
	return p.tiers[t], true
}

func (p Policies) Category(c Category) Policy {
	if c < 0 || c >= categoryCount {
		return Policy{}
	}
	return p.categories[c]
}

func (p Policies) WithTier(t Tier, pol Policy) (Policies, error) {
	if t == TierAdmin {
		return p, fmt.Errorf("%w: admin tier is a bypass and takes no policy", ErrInvalidPolicy)
	}
	if t < 0 || t >= tierCount {
		return p, fmt.Errorf("%w: unknown tier %d", ErrInvalidPolicy, int(t))
	}
	if err := pol.Validate(); err != nil {
		return p, err
	}
	p.tiers[t] = pol
	return p, nil
}

func (p Policies) WithCategory(c Category, pol Policy) (Policies, error) {
	if c < 0 || c >= categoryCount {
		return p, fmt.Errorf("%w: unknown category %d", ErrInvalidPolicy, int(c))
	}
	if err := pol.Validate(); err != nil {
		return p, err
	}
	p.categories[c] = pol
	return p, nil
}
