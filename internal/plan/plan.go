// Package plan implements the feature gate that decides which subscription plans may use which
// pipeline features.
package plan

import (
	"fmt"
	"sort"
	"strings"
)

// Plan is a subscription tier.
type Plan string

const (
	Free       Plan = "free"
	Starter    Plan = "starter"
	Pro        Plan = "pro"
	Business   Plan = "business"
	Enterprise Plan = "enterprise"
)

// Feature is a gated capability.
type Feature string

// AIStructuring lets the pipeline restructure text with a language model.
const AIStructuring Feature = "ai_structuring"

// DefaultEntitlements is used when no plans are configured.
var DefaultEntitlements = map[Plan][]Feature{
	Free:       nil,
	Starter:    nil,
	Pro:        {AIStructuring},
	Business:   {AIStructuring},
	Enterprise: {AIStructuring},
}

// ParsePlan normalizes a plan name. Unknown names are an error.
func ParsePlan(s string) (Plan, error) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case Free, Starter, Pro, Business, Enterprise:
		return p, nil
	case "":
		return Free, nil
	}
	return "", fmt.Errorf("unknown plan %q", s)
}

// Gate answers entitlement checks.
type Gate struct {
	features map[Plan]map[Feature]bool
}

// NewGate builds a gate from a plan → features table. A nil table uses DefaultEntitlements.
func NewGate(entitlements map[Plan][]Feature) *Gate {
	if entitlements == nil {
		entitlements = DefaultEntitlements
	}
	g := &Gate{features: make(map[Plan]map[Feature]bool, len(entitlements))}
	for p, fs := range entitlements {
		set := make(map[Feature]bool, len(fs))
		for _, f := range fs {
			set[f] = true
		}
		g.features[p] = set
	}
	return g
}

// FromConfig converts a config map of plan name to feature names.
func FromConfig(plans map[string][]string) (*Gate, error) {
	if len(plans) == 0 {
		return NewGate(nil), nil
	}
	table := make(map[Plan][]Feature, len(plans))
	for name, features := range plans {
		p, err := ParsePlan(name)
		if err != nil {
			return nil, err
		}
		for _, f := range features {
			table[p] = append(table[p], Feature(strings.TrimSpace(f)))
		}
		if _, ok := table[p]; !ok {
			table[p] = nil
		}
	}
	return NewGate(table), nil
}

// Allows reports whether plan p includes feature f. A nil gate allows nothing.
func (g *Gate) Allows(p Plan, f Feature) bool {
	if g == nil {
		return false
	}
	return g.features[p][f]
}

// Features lists the features of a plan in sorted order.
func (g *Gate) Features(p Plan) []Feature {
	var out []Feature
	for f := range g.features[p] {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
