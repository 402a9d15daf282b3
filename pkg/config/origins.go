package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// OriginPolicy decides which browser origins may use the HTTP API and
// upgrade WebSocket connections. Exact origins are matched O(1); patterns
// cover preview deployments (e.g. per-branch frontend hosts).
type OriginPolicy struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
	allowAll bool
}

type originsFile struct {
	Origins  []string `yaml:"origins"`
	Patterns []string `yaml:"patterns"`
}

// LoadOrigins reads the YAML allow-list at path. An empty path yields an
// allow-all policy for local development.
func LoadOrigins(path string) (*OriginPolicy, error) {
	if path == "" {
		return &OriginPolicy{allowAll: true}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read origins file: %w", err)
	}

	var file originsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse origins file: %w", err)
	}

	p := &OriginPolicy{exact: make(map[string]struct{})}
	for _, o := range file.Origins {
		o = strings.TrimSpace(o)
		if o != "" {
			p.exact[strings.ToLower(o)] = struct{}{}
		}
	}
	for _, pat := range file.Patterns {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("compile origin pattern %q: %w", pat, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Allow reports whether origin may connect. Empty origins are accepted so
// non-browser clients (curl, the bridge) are not locked out.
func (p *OriginPolicy) Allow(origin string) bool {
	if origin == "" || p.allowAll {
		return true
	}
	if _, ok := p.exact[strings.ToLower(origin)]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// AllowAll reports whether the policy is the permissive dev default.
func (p *OriginPolicy) AllowAll() bool { return p.allowAll }
