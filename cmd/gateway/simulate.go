package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"throttle-gateway/middleware/ratelimit/application"
	"throttle-gateway/middleware/ratelimit/clock"
	"throttle-gateway/middleware/ratelimit/domain"
	"throttle-gateway/middleware/ratelimit/infra"
)

type simulateParams struct {
	Tier       string
	Category   string
	Scope      string
	Limit      int
	Window     time.Duration
	Identifier string
	Requests   int
	Interval   time.Duration
	Pause      time.Duration
	PauseAfter int
}

// SimStep é uma linha do resultado da simulação.
type SimStep struct {
	N          int           `json:"n"`
	Offset     time.Duration `json:"offset_ns"`
	Allowed    bool          `json:"allowed"`
	Bypassed   bool          `json:"bypassed,omitempty"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after_ns,omitempty"`
}

type SimResult struct {
	Key    string    `json:"key"`
	Policy string    `json:"policy"`
	Steps  []SimStep `json:"steps"`
}

func newSimulateCmd() *cobra.Command {
	var (
		p          simulateParams
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a burst of requests against a policy on a virtual clock",
		Long: `Roda o contador de janela deslizante com store em memória e relógio
virtual: nenhuma espera real, útil para ver quando os bloqueios começam e
quando a janela libera de novo.`,
		Example: `  gateway simulate --category login --requests 6
  gateway simulate --category login --requests 4 --pause-after 3 --pause 61s
  gateway simulate --limit 2 --window 1m --scope export --requests 3 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runSimulation(cmd.Context(), p)
			if err != nil {
				return err
			}
			if outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			return printSimulation(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&p.Tier, "tier", "anonymous", "requester tier (anonymous, authenticated, premium, admin)")
	cmd.Flags().StringVar(&p.Category, "category", "", "endpoint category; overrides the tier policy")
	cmd.Flags().StringVar(&p.Scope, "scope", "", "ad-hoc scope, used with --limit/--window")
	cmd.Flags().IntVar(&p.Limit, "limit", 0, "ad-hoc limit; overrides tier and category")
	cmd.Flags().DurationVar(&p.Window, "window", time.Minute, "ad-hoc window")
	cmd.Flags().StringVar(&p.Identifier, "id", "", "user id (or IP for anonymous)")
	cmd.Flags().IntVar(&p.Requests, "requests", 10, "number of requests")
	cmd.Flags().DurationVar(&p.Interval, "interval", 0, "virtual time between requests")
	cmd.Flags().IntVar(&p.PauseAfter, "pause-after", 0, "fast-forward after this many requests")
	cmd.Flags().DurationVar(&p.Pause, "pause", 0, "virtual time to fast-forward at --pause-after")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")

	return cmd
}

func runSimulation(ctx context.Context, p simulateParams) (SimResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if p.Requests <= 0 {
		return SimResult{}, fmt.Errorf("--requests must be > 0")
	}

	tier, err := domain.ParseTier(p.Tier)
	if err != nil {
		return SimResult{}, err
	}
	id := simulatedIdentity(tier, p.Identifier)

	scope, pol, err := simulatedPolicy(tier, p)
	if err != nil {
		return SimResult{}, err
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	vc := clock.NewVirtual(start)
	store := infra.NewMemoryStore(infra.WithClock(vc), infra.WithCleanupEvery(0))
	gate := application.Gate{Counter: application.NewSlidingWindowCounter(store, vc), Clock: vc}

	res := SimResult{Key: string(domain.NewKey(scope, id.Identifier)), Policy: pol.String()}
	if tier == domain.TierAdmin {
		res.Policy = "bypass"
	}

	for i := 1; i <= p.Requests; i++ {
		dec, err := gate.Decide(ctx, id, scope, pol)
		if err != nil {
			return SimResult{}, err
		}
		res.Steps = append(res.Steps, SimStep{
			N:          i,
			Offset:     vc.Now().Sub(start),
			Allowed:    dec.Allowed,
			Bypassed:   dec.Bypassed,
			Limit:      dec.Limit,
			Remaining:  dec.Remaining,
			RetryAfter: dec.RetryAfter,
		})

		vc.Advance(p.Interval)
		if p.PauseAfter > 0 && i == p.PauseAfter {
			vc.Advance(p.Pause)
		}
	}
	return res, nil
}

func simulatedIdentity(tier domain.Tier, id string) domain.Identity {
	if tier == domain.TierAnonymous {
		if id == "" {
			id = "203.0.113.10"
		}
		return domain.AnonymousIdentity(id)
	}
	if id == "" {
		id = "1"
	}
	return domain.IdentityFor(domain.Principal{
		ID:      id,
		Staff:   tier == domain.TierAdmin,
		Premium: tier == domain.TierPremium,
	})
}

func simulatedPolicy(tier domain.Tier, p simulateParams) (string, domain.Policy, error) {
	pols := domain.DefaultPolicies()
	switch {
	case p.Limit > 0:
		pol := domain.Policy{Limit: p.Limit, Window: p.Window}
		if err := pol.Validate(); err != nil {
			return "", domain.Policy{}, err
		}
		scope := p.Scope
		if scope == "" {
			scope = domain.DefaultScope
		}
		return scope, pol, nil
	case p.Category != "":
		c, err := domain.ParseCategory(p.Category)
		if err != nil {
			return "", domain.Policy{}, err
		}
		return c.Scope(), pols.Category(c), nil
	}
	pol, _ := pols.Tier(tier)
	return tier.Scope(), pol, nil
}

func printSimulation(w io.Writer, res SimResult) error {
	fmt.Fprintf(w, "key=%s policy=%s\n\n", res.Key, res.Policy)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tT+\tRESULT\tREMAINING\tRETRY AFTER")
	allowed := 0
	for _, s := range res.Steps {
		result := "denied"
		switch {
		case s.Bypassed:
			result = "bypass"
		case s.Allowed:
			result = "allowed"
		}
		if s.Allowed {
			allowed++
		}
		remaining := fmt.Sprint(s.Remaining)
		if s.Bypassed {
			remaining = "unlimited"
		}
		retry := "-"
		if !s.Allowed {
			retry = s.RetryAfter.String()
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", s.N, s.Offset, result, remaining, retry)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d allowed, %d denied\n", allowed, len(res.Steps)-allowed)
	return err
}
