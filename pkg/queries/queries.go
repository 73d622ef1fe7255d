/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

// Package queries compiles domain trees into SQL for the registry entities.
//
// The compiler expands dotted field paths into LEFT JOINs (to-one) and
// EXISTS sub-queries (to-many), injects the acting subject's row rules into
// every statement, and lowers the hierarchy operators onto the materialized
// parent_path column. Compiled statements are cached in a bounded LRU keyed
// by their canonical text.
package queries

import (
	"fmt"
	"strings"
	"time"

	"github.com/erni27/imcache"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/istorage"
	"github.com/entago/entago/pkg/modeldef"
)

// SearchFunc translates (operator, value) on a non-stored computed field
// into a replacement domain over stored fields.
type SearchFunc func(op domains.Operator, value any) (domains.Expr, error)

// Query is a compiled SQL statement with its parameters.
type Query struct {
	SQL  string
	Args []any
}

// RuleContext carries what rule injection needs to know about the caller.
type RuleContext struct {
	Groups []string
	Mode   accessctl.Mode
	// Bypass skips rule injection (superuser Environments). ACL checks are
	// the caller's duty and are never skipped here or anywhere.
	Bypass bool
}

// Spec describes one SELECT over an entity.
type Spec struct {
	Domain  domains.Expr
	Rules   RuleContext
	Columns []string // stored columns to select, default just id
	Order   string   // "" = entity's declared order
	Limit   int      // 0 = unlimited
	Offset  int
	Count   bool // SELECT count(*) instead of columns
	Lock    bool // append the dialect's row-lock suffix

	Locale  string // active locale for translated columns
	Company int64  // active company for company-dependent columns
}

// Compiler holds the immutable compilation inputs.
type Compiler struct {
	reg       modeldef.IRegistry
	dialect   istorage.Dialect
	rules     accessctl.IRuleSet
	searches  map[string]SearchFunc
	canonical string // canonical locale, the translation fallback

	plans     *lru.Cache[string, Query]
	ruleCache *imcache.Cache[string, domains.Expr]
}

const (
	planCacheSize = 512
	ruleCacheTTL  = time.Minute
)

// Config tunes a Compiler.
type Config struct {
	Registry        modeldef.IRegistry
	Dialect         istorage.Dialect
	Rules           accessctl.IRuleSet
	Searches        map[string]SearchFunc
	CanonicalLocale string // default "en"
}

// New makes a Compiler.
func New(cfg Config) *Compiler {
	plans, _ := lru.New[string, Query](planCacheSize)
	canonical := cfg.CanonicalLocale
	if canonical == "" {
		canonical = "en"
	}
	return &Compiler{
		reg:       cfg.Registry,
		dialect:   cfg.Dialect,
		rules:     cfg.Rules,
		searches:  cfg.Searches,
		canonical: canonical,
		plans:     plans,
		ruleCache: imcache.New[string, domains.Expr](),
	}
}

// RuleDomain returns the (memoized) combined rule domain for the context.
func (c *Compiler) RuleDomain(entity string, rc RuleContext) domains.Expr {
	if rc.Bypass || c.rules == nil {
		return domains.TRUE
	}
	key := entity + "\x00" + rc.Mode.String() + "\x00" + strings.Join(rc.Groups, ",")
	if d, ok := c.ruleCache.Get(key); ok {
		return d
	}
	d := c.rules.DomainFor(entity, rc.Mode, rc.Groups)
	c.ruleCache.Set(key, d, imcache.WithExpiration(ruleCacheTTL))
	return d
}

// Search compiles a full SELECT for the given Spec. Equal Specs compile to
// the same SQL (alias naming is deterministic), so results are safe to cache.
func (c *Compiler) Search(entity string, spec Spec) (Query, error) {
	e, err := c.reg.MustEntity(entity)
	if err != nil {
		return Query{}, err
	}

	effective := domains.And(spec.Domain, c.RuleDomain(entity, spec.Rules))
	effective = domains.Normalize(effective)

	key := c.planKey(entity, spec, effective)
	if q, ok := c.plans.Get(key); ok {
		return q, nil
	}

	b := &builder{c: c, spec: spec}
	where, err := b.compile(effective, e, e.Table())
	if err != nil {
		return Query{}, err
	}

	var sel string
	switch {
	case spec.Count:
		sel = "count(*)"
	default:
		cols := spec.Columns
		if len(cols) == 0 {
			cols = []string{modeldef.FieldID}
		}
		parts := make([]string, len(cols))
		for i, col := range cols {
			parts[i] = qi(e.Table()) + "." + qi(col)
		}
		sel = strings.Join(parts, ", ")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(sel)
	sb.WriteString(" FROM ")
	sb.WriteString(qi(e.Table()))
	for _, join := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(join)
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(where)

	if !spec.Count {
		order, err := c.orderClause(e, spec.Order)
		if err != nil {
			return Query{}, err
		}
		if order != "" {
			sb.WriteString(" ORDER BY ")
			sb.WriteString(order)
		}
		if spec.Limit > 0 {
			fmt.Fprintf(&sb, " LIMIT %d", spec.Limit)
		}
		if spec.Offset > 0 {
			fmt.Fprintf(&sb, " OFFSET %d", spec.Offset)
		}
		if spec.Lock {
			sb.WriteString(c.dialect.ForUpdate())
		}
	}

	q := Query{SQL: sb.String(), Args: b.args}
	c.plans.Add(key, q)
	return q, nil
}

func (c *Compiler) planKey(entity string, spec Spec, effective domains.Expr) string {
	var sb strings.Builder
	sb.WriteString(entity)
	sb.WriteByte('\x00')
	sb.WriteString(effective.String())
	fmt.Fprintf(&sb, "\x00%s\x00%v\x00%d\x00%d\x00%v\x00%v\x00%s\x00%d",
		strings.Join(spec.Columns, ","), spec.Count, spec.Limit, spec.Offset,
		spec.Lock, spec.Order, spec.Locale, spec.Company)
	return sb.String()
}

// orderClause resolves the order key list against stored columns.
func (c *Compiler) orderClause(e modeldef.IEntity, order string) (string, error) {
	if order == "" {
		order = e.Order()
	}
	var parts []string
	for _, key := range strings.Split(order, ",") {
		fields := strings.Fields(strings.TrimSpace(key))
		if len(fields) == 0 {
			continue
		}
		fld := e.Field(fields[0])
		if fld == nil {
			return "", errFieldMissing(e, fields[0])
		}
		if !fld.Stored() {
			return "", errUnsearchable(e.Name(), fields[0])
		}
		part := qi(e.Table()) + "." + qi(fields[0])
		if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
			part += " DESC"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, ", "), nil
}

func errFieldMissing(e modeldef.IEntity, name string) error {
	_, err := e.MustField(name)
	return err
}

// qi quotes an SQL identifier.
func qi(name string) string { return `"` + name + `"` }
