/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package accessctl implements the two mandatory access layers: coarse
// model-level ACLs and per-entity row rules.
//
// Both are declared at startup through builders and immutable afterwards.
// Every search, read, write, create and unlink of the runtime consults them;
// no storage access happens without an ACL check, and every emitted query
// carries the subject's rule domain.
package accessctl

import "github.com/entago/entago/pkg/domains"

// Mode is an access mode.
type Mode uint8

const (
	ModeRead Mode = iota
	ModeWrite
	ModeCreate
	ModeUnlink

	ModeCount
)

var modeNames = [ModeCount]string{"read", "write", "create", "unlink"}

func (m Mode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return "unknown"
}

// Subject is the acting principal of an Environment.
type Subject struct {
	ID     int64
	Groups []string
	// Superuser bypasses record rules, never ACLs.
	Superuser bool
}

// IACL answers model-level access questions.
type IACL interface {
	// Check reports whether at least one of the groups grants mode on entity.
	Check(groups []string, entity string, mode Mode) bool
}

// IACLBuilder collects grants.
type IACLBuilder interface {
	// Grant allows the modes on entity for members of group. No modes means
	// all modes.
	Grant(group, entity string, modes ...Mode) IACLBuilder

	// Build must be the last call.
	Build() IACL
}

// IRuleSet answers row-level restriction questions.
type IRuleSet interface {
	// DomainFor combines the rules applying to (entity, mode, groups): the
	// conjunction of global rule domains AND-ed with the disjunction of the
	// domains of matching group rules. When group rules exist for the entity
	// and mode but none matches the groups, the result is domains.FALSE.
	// Without any rules the result is domains.TRUE.
	DomainFor(entity string, mode Mode, groups []string) domains.Expr
}

// IRuleSetBuilder collects row rules.
type IRuleSetBuilder interface {
	// AddRule declares a rule. Empty groups makes the rule global; empty
	// modes applies it to every mode.
	AddRule(entity string, domain domains.Expr, groups []string, modes ...Mode) IRuleSetBuilder

	// Build must be the last call.
	Build() IRuleSet
}
