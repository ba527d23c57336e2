package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"throttle-gateway/middleware/ratelimit/domain"
)

// PolicyFile é o formato do arquivo de sobrescrita de políticas:
//
//	tiers:
//	  anonymous: {limit: 30, window: 1m}
//	categories:
//	  login: {limit: 3, window: 1m}
//
// Só é lido na inicialização; chaves omitidas mantêm o default.
type PolicyFile struct {
	Tiers      map[string]PolicyEntry `yaml:"tiers"`
	Categories map[string]PolicyEntry `yaml:"categories"`
}

type PolicyEntry struct {
	Limit  int    `yaml:"limit"`
	Window string `yaml:"window"`
}

func (e PolicyEntry) policy() (domain.Policy, error) {
	w, err := time.ParseDuration(e.Window)
	if err != nil {
		return domain.Policy{}, fmt.Errorf("window %q: %w", e.Window, err)
	}
	p := domain.Policy{Limit: e.Limit, Window: w}
	return p, p.Validate()
}

// LoadPolicyFile aplica o arquivo YAML em cima de base.
func LoadPolicyFile(path string, base domain.Policies) (domain.Policies, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read policy file: %w", err)
	}
	return ParsePolicies(raw, base)
}

func ParsePolicies(raw []byte, base domain.Policies) (domain.Policies, error) {
	var f PolicyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return base, fmt.Errorf("parse policy file: %w", err)
	}

	out := base
	for name, entry := range f.Tiers {
		t, err := domain.ParseTier(name)
		if err != nil {
			return base, err
		}
		p, err := entry.policy()
		if err != nil {
			return base, fmt.Errorf("tier %s: %w", name, err)
		}
		if out, err = out.WithTier(t, p); err != nil {
			return base, fmt.Errorf("tier %s: %w", name, err)
		}
	}
	for name, entry := range f.Categories {
		c, err := domain.ParseCategory(name)
		if err != nil {
			return base, err
		}
		p, err := entry.policy()
		if err != nil {
			return base, fmt.Errorf("category %s: %w", name, err)
		}
		if out, err = out.WithCategory(c, p); err != nil {
			return base, fmt.Errorf("category %s: %w", name, err)
		}
	}
	return out, nil
}
