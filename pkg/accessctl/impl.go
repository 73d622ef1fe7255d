/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package accessctl

import (
	"github.com/entago/entago/pkg/domains"
)

// # Implements:
//   - IACL
type acl struct {
	// group -> entity -> mode bit set
	grants map[string]map[string]uint8
}

func (a *acl) Check(groups []string, entity string, mode Mode) bool {
	bit := uint8(1) << mode
	for _, g := range groups {
		if entities, ok := a.grants[g]; ok {
			if entities[entity]&bit != 0 {
				return true
			}
		}
	}
	return false
}

// # Implements:
//   - IACLBuilder
type aclBuilder struct {
	grants map[string]map[string]uint8
}

func (b *aclBuilder) Grant(group, entity string, modes ...Mode) IACLBuilder {
	if _, ok := b.grants[group]; !ok {
		b.grants[group] = make(map[string]uint8)
	}
	if len(modes) == 0 {
		modes = []Mode{ModeRead, ModeWrite, ModeCreate, ModeUnlink}
	}
	for _, m := range modes {
		b.grants[group][entity] |= uint8(1) << m
	}
	return b
}

func (b *aclBuilder) Build() IACL {
	return &acl{grants: b.grants}
}

type rule struct {
	domain domains.Expr
	groups []string
}

// # Implements:
//   - IRuleSet
type ruleSet struct {
	// entity -> mode -> rules
	global map[string][ModeCount][]rule
	scoped map[string][ModeCount][]rule
}

func (rs *ruleSet) DomainFor(entity string, mode Mode, groups []string) domains.Expr {
	var parts []domains.Expr
	for _, r := range rs.global[entity][mode] {
		parts = append(parts, r.domain)
	}

	scoped := rs.scoped[entity][mode]
	if len(scoped) > 0 {
		inGroup := func(r rule) bool {
			for _, rg := range r.groups {
				for _, g := range groups {
					if rg == g {
						return true
					}
				}
			}
			return false
		}
		var ors []domains.Expr
		for _, r := range scoped {
			if inGroup(r) {
				ors = append(ors, r.domain)
			}
		}
		if len(ors) == 0 {
			// group rules exist but none matches the subject
			return domains.FALSE
		}
		parts = append(parts, domains.Or(ors...))
	}

	return domains.And(parts...)
}

// # Implements:
//   - IRuleSetBuilder
type ruleSetBuilder struct {
	global map[string][ModeCount][]rule
	scoped map[string][ModeCount][]rule
}

func (b *ruleSetBuilder) AddRule(entity string, domain domains.Expr, groups []string, modes ...Mode) IRuleSetBuilder {
	if len(modes) == 0 {
		modes = []Mode{ModeRead, ModeWrite, ModeCreate, ModeUnlink}
	}
	target := b.global
	if len(groups) > 0 {
		target = b.scoped
	}
	byMode := target[entity]
	for _, m := range modes {
		byMode[m] = append(byMode[m], rule{domain: domain, groups: groups})
	}
	target[entity] = byMode
	return b
}

func (b *ruleSetBuilder) Build() IRuleSet {
	return &ruleSet{global: b.global, scoped: b.scoped}
}
