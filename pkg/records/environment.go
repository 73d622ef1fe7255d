/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

import (
	"context"
	"strings"

	"github.com/untillpro/goutils/logger"
	"golang.org/x/text/language"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/istorage"
	"github.com/entago/entago/pkg/modeldef"
	"github.com/entago/entago/pkg/queries"
)

// Engine binds the registry to one storage and holds the registered
// compute, constraint and default functions. Immutable after construction,
// safe for concurrent use.
type Engine struct {
	reg         modeldef.IRegistry
	storage     istorage.IStorage
	acl         accessctl.IACL
	rules       accessctl.IRuleSet
	compiler    *queries.Compiler
	computes    map[string]ComputeFunc
	constraints map[string]ConstraintFunc
	defaults    map[string]DefaultFunc
	deps        *depGraph
	canonical   string
}

// NewEngine makes an Engine. It panics on a registry/function mismatch
// (a declared compute or constraint without a registered function), the
// same way a broken declaration panics at declaration time.
func NewEngine(cfg Config) *Engine {
	canonical := cfg.CanonicalLocale
	if canonical == "" {
		canonical = "en"
	}
	e := &Engine{
		reg:         cfg.Registry,
		storage:     cfg.Storage,
		acl:         cfg.ACL,
		rules:       cfg.Rules,
		computes:    cfg.Computes,
		constraints: cfg.Constraints,
		defaults:    cfg.Defaults,
		canonical:   canonical,
	}
	e.compiler = queries.New(queries.Config{
		Registry:        cfg.Registry,
		Dialect:         cfg.Storage.Dialect(),
		Rules:           cfg.Rules,
		Searches:        cfg.Searches,
		CanonicalLocale: canonical,
	})
	e.deps = buildDepGraph(cfg.Registry)
	e.verifyFuncs()
	return e
}

func (e *Engine) verifyFuncs() {
	e.reg.Entities(func(ent modeldef.IEntity) {
		ent.Fields(func(fld modeldef.IField) {
			if fn := fld.Compute(); fn != "" {
				if _, ok := e.computes[fn]; !ok {
					panic("compute function not registered: " + fn)
				}
			}
			if fn := fld.DefaultFn(); fn != "" {
				if _, ok := e.defaults[fn]; !ok {
					panic("default function not registered: " + fn)
				}
			}
		})
		for _, c := range ent.Constraints() {
			if _, ok := e.constraints[c.Name]; !ok {
				panic("constraint function not registered: " + c.Name)
			}
		}
	})
}

// Registry exposes the model registry the engine runs on.
func (e *Engine) Registry() modeldef.IRegistry { return e.reg }

// envState is the transaction-scoped state shared by an Environment and
// every context variant derived from it.
type envState struct {
	engine   *Engine
	ctx      context.Context
	cursor   istorage.ICursor
	cache    *fieldCache
	todo     *recomputeTodo
	ruleOK   map[string]map[int64]struct{} // (subject,entity) -> read-rule-verified ids
	draftSeq int64
	done     bool
}

// Environment is one actor's view over one transaction. Variants made by
// WithSubject, Sudo, WithLocale, WithCompany and WithInactiveTest share the
// transaction, cache and pending recomputations of their origin.
type Environment struct {
	st           *envState
	subject      accessctl.Subject
	locale       string
	company      int64
	inactiveTest bool
}

// EnvOption tunes a new Environment.
type EnvOption func(*Environment)

// WithLocale sets the active locale of translated fields.
func WithLocale(locale string) EnvOption {
	return func(env *Environment) { env.locale = normalizeLocale(locale) }
}

// normalizeLocale maps a BCP 47 tag onto the base language key used in
// translation columns: "fr-BE" and "fr_BE" both read and write "fr".
func normalizeLocale(locale string) string {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return locale
	}
	base, _ := tag.Base()
	return base.String()
}

// WithCompany sets the active company of company-dependent fields.
func WithCompany(id int64) EnvOption {
	return func(env *Environment) { env.company = id }
}

// NewEnvironment opens a transaction and binds it to the subject.
func (e *Engine) NewEnvironment(ctx context.Context, subject accessctl.Subject, opts ...EnvOption) (*Environment, error) {
	cursor, err := e.storage.Begin(ctx)
	if err != nil {
		return nil, err
	}
	env := &Environment{
		st: &envState{
			engine: e,
			ctx:    ctx,
			cursor: cursor,
			cache:  newFieldCache(),
			todo:   newRecomputeTodo(),
			ruleOK: make(map[string]map[int64]struct{}),
		},
		subject: subject,
		locale:  e.canonical,
	}
	for _, opt := range opts {
		opt(env)
	}
	return env, nil
}

// Subject returns the acting subject.
func (env *Environment) Subject() accessctl.Subject { return env.subject }

// Locale returns the active locale.
func (env *Environment) Locale() string { return env.locale }

// Company returns the active company id.
func (env *Environment) Company() int64 { return env.company }

// WithSubject returns a variant acting as another subject.
func (env *Environment) WithSubject(subject accessctl.Subject) *Environment {
	v := *env
	v.subject = subject
	return &v
}

// Sudo returns a variant that skips record rules; ACL checks still apply.
func (env *Environment) Sudo() *Environment {
	subject := env.subject
	subject.Superuser = true
	return env.WithSubject(subject)
}

// WithLocaleVariant returns a variant reading and writing another locale.
func (env *Environment) WithLocaleVariant(locale string) *Environment {
	v := *env
	v.locale = normalizeLocale(locale)
	return &v
}

// WithCompanyVariant returns a variant acting in another company.
func (env *Environment) WithCompanyVariant(id int64) *Environment {
	v := *env
	v.company = id
	return &v
}

// WithInactiveTest returns a variant that sees archived records.
func (env *Environment) WithInactiveTest() *Environment {
	v := *env
	v.inactiveTest = true
	return &v
}

// Set returns the recordset of the entity over the given ids, in order.
// It panics on an unknown entity, like any misspelled declaration.
func (env *Environment) Set(entity string, ids ...int64) RecordSet {
	if env.st.engine.reg.Entity(entity) == nil {
		panic("unknown entity: " + entity)
	}
	return RecordSet{env: env, entity: entity, ids: dedupIDs(ids)}
}

// Draft returns a new draft record of the entity: it lives only in the
// cache under a negative id, seeded with defaults overridden by values.
func (env *Environment) Draft(entity string, values map[string]any) (RecordSet, error) {
	rs := env.Set(entity)
	defaults, err := rs.DefaultGet(nil)
	if err != nil {
		return RecordSet{}, err
	}
	env.st.draftSeq--
	id := env.st.draftSeq
	rs = env.Set(entity, id)
	for field, v := range defaults {
		if err := rs.cacheRaw(id, field, v); err != nil {
			return RecordSet{}, err
		}
	}
	for field, v := range values {
		if err := rs.cacheRaw(id, field, v); err != nil {
			return RecordSet{}, err
		}
	}
	return rs, nil
}

// Flush runs all pending recomputations.
func (env *Environment) Flush() error {
	return env.st.todo.run(env, nil)
}

// FlushFields runs only the pending recomputations of the named fields of
// one entity.
func (env *Environment) FlushFields(entity string, fields ...string) error {
	return env.st.todo.run(env, func(e, f string) bool {
		if e != entity {
			return false
		}
		for _, name := range fields {
			if name == f {
				return true
			}
		}
		return false
	})
}

// Invalidate drops cached values of the records, forcing the next read to
// go back to storage. Without fields the whole records leave the cache.
func (env *Environment) Invalidate(rs RecordSet, fields ...string) {
	for _, id := range rs.ids {
		if len(fields) == 0 {
			env.st.cache.invalidateRecord(rs.entity, id)
			continue
		}
		for _, field := range fields {
			env.st.cache.invalidateField(rs.entity, id, field)
		}
	}
}

// Commit flushes and commits the transaction. The Environment and all of
// its variants are unusable afterwards.
func (env *Environment) Commit() error {
	if err := env.Flush(); err != nil {
		if rbErr := env.st.cursor.Rollback(env.st.ctx); rbErr != nil {
			logger.Error("rollback after failed flush:", rbErr)
		}
		env.st.done = true
		return err
	}
	env.st.done = true
	return env.st.cursor.Commit(env.st.ctx)
}

// Rollback discards the transaction and the cache.
func (env *Environment) Rollback() error {
	env.st.done = true
	env.st.cache.invalidateAll()
	return env.st.cursor.Rollback(env.st.ctx)
}

func (env *Environment) ctx() context.Context { return env.st.ctx }

func (env *Environment) cursor() istorage.ICursor { return env.st.cursor }

func (env *Environment) engine() *Engine { return env.st.engine }

// check verifies the subject's ACL right. Superuser bypasses record rules
// only, never the ACL.
func (env *Environment) check(entity string, mode accessctl.Mode) error {
	if env.st.engine.acl == nil {
		return nil
	}
	if !env.st.engine.acl.Check(env.subject.Groups, entity, mode) {
		return accessctl.ErrAccessDenied(entity, mode)
	}
	return nil
}

// ruleContext is what rule injection needs to know about this view.
func (env *Environment) ruleContext(mode accessctl.Mode) queries.RuleContext {
	return queries.RuleContext{
		Groups: env.subject.Groups,
		Mode:   mode,
		Bypass: env.subject.Superuser,
	}
}

func dedupIDs(ids []int64) []int64 {
	if len(ids) < 2 {
		return append([]int64(nil), ids...)
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
