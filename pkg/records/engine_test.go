/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/entago/entago/pkg/accessctl"
	"github.com/entago/entago/pkg/domains"
	"github.com/entago/entago/pkg/istorage"
	"github.com/entago/entago/pkg/istorage/sqlite"
	"github.com/entago/entago/pkg/modeldef"
	"github.com/entago/entago/pkg/records"
)

func testRegistry(t *testing.T) modeldef.IRegistry {
	t.Helper()
	b := modeldef.New()

	b.AddEntity("res.partner", modeldef.Order("name asc, id asc")).
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddField("active", modeldef.KindBoolean, modeldef.Default(true)).
		AddField("color", modeldef.KindInteger)

	b.AddEntity("res.users").
		Delegate("res.partner", "partner_id").
		AddField("login", modeldef.KindChar, modeldef.Required, modeldef.Unique)

	b.AddEntity("product.category").
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddMany2one("parent_id", "product.category").
		SetParentField("parent_id")

	b.AddEntity("product.tag").
		AddField("name", modeldef.KindChar, modeldef.Required)

	b.AddEntity("product.product").
		AddField("name", modeldef.KindChar, modeldef.Required, modeldef.Translate).
		AddField("list_price", modeldef.KindDecimal, modeldef.Digits(16, 2), modeldef.DefaultFn("default_price")).
		AddField("image", modeldef.KindBinary).
		AddMany2one("categ_id", "product.category").
		AddMany2many("tag_ids", "product.tag").
		AddConstraint("check_price_positive", []string{"list_price"}, "price must not be negative")

	b.AddEntity("sale.order", modeldef.Order("id desc")).
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddField("amount_total", modeldef.KindDecimal, modeldef.Digits(16, 2),
			modeldef.Compute("compute_amounts", "line_ids.subtotal"), modeldef.Stored).
		AddMany2one("partner_id", "res.partner", modeldef.Required).
		AddOne2many("line_ids", "sale.order.line", "order_id")

	b.AddEntity("sale.order.line").
		AddField("subtotal", modeldef.KindDecimal, modeldef.Digits(16, 2)).
		AddMany2one("order_id", "sale.order", modeldef.Required,
			modeldef.OnDeletePolicy(modeldef.OnDeleteCascade)).
		AddMany2one("product_id", "product.product", modeldef.Required).
		AddRelated("order_name", "order_id.name", modeldef.Stored)

	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func testEngine(t *testing.T) (*records.Engine, istorage.IStorage) {
	t.Helper()
	ctx := context.Background()

	storage, err := sqlite.Provide(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	reg := testRegistry(t)
	cursor, err := storage.Begin(ctx)
	require.NoError(t, err)
	for _, stmt := range modeldef.DDL(reg, modeldef.DDLSQLite) {
		_, err := cursor.Execute(ctx, stmt)
		require.NoError(t, err, stmt)
	}
	require.NoError(t, cursor.Commit(ctx))

	aclb := accessctl.NewACLBuilder().
		Grant("sales", "res.partner",
			accessctl.ModeRead, accessctl.ModeWrite, accessctl.ModeCreate).
		Grant("sales", "sale.order",
			accessctl.ModeRead, accessctl.ModeWrite, accessctl.ModeCreate).
		Grant("sales", "sale.order.line",
			accessctl.ModeRead, accessctl.ModeWrite, accessctl.ModeCreate)
	for _, entity := range []string{
		"res.partner", "res.users", "product.category", "product.tag",
		"product.product", "sale.order", "sale.order.line",
	} {
		aclb.Grant("admin", entity, accessctl.ModeRead, accessctl.ModeWrite,
			accessctl.ModeCreate, accessctl.ModeUnlink)
	}
	acl := aclb.Build()

	rules := accessctl.NewRuleSetBuilder().
		AddRule("res.partner", domains.Leaf("color", domains.OpEq, int64(1)),
			[]string{"sales"}, accessctl.ModeRead, accessctl.ModeWrite).
		Build()

	engine := records.NewEngine(records.Config{
		Registry: reg,
		Storage:  storage,
		ACL:      acl,
		Rules:    rules,
		Computes: map[string]records.ComputeFunc{
			"compute_amounts": func(rs records.RecordSet) error {
				return rs.Each(func(r records.RecordSet) error {
					lines, err := r.GetSet("line_ids")
					if err != nil {
						return err
					}
					total := decimal.Zero
					if err := lines.Each(func(line records.RecordSet) error {
						s, err := line.GetString("subtotal")
						if err != nil {
							return err
						}
						if s == "" {
							return nil
						}
						d, err := decimal.NewFromString(s)
						if err != nil {
							return err
						}
						total = total.Add(d)
						return nil
					}); err != nil {
						return err
					}
					return r.SetComputed("amount_total", total.StringFixed(2))
				})
			},
		},
		Constraints: map[string]records.ConstraintFunc{
			"check_price_positive": func(rs records.RecordSet) error {
				return rs.Each(func(r records.RecordSet) error {
					s, err := r.GetString("list_price")
					if err != nil || s == "" {
						return err
					}
					d, err := decimal.NewFromString(s)
					if err != nil {
						return err
					}
					if d.IsNegative() {
						return fmt.Errorf("negative price %s", s)
					}
					return nil
				})
			},
		},
		Defaults: map[string]records.DefaultFunc{
			"default_price": func(*records.Environment) (any, error) { return "1.00", nil },
		},
	})
	return engine, storage
}

func rootEnv(t *testing.T, engine *records.Engine) *records.Environment {
	t.Helper()
	env, err := engine.NewEnvironment(context.Background(),
		accessctl.Subject{ID: 1, Superuser: true, Groups: []string{"admin"}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Rollback() })
	return env
}

func TestEngine_CRUD(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	partner, err := env.Set("res.partner").Create(map[string]any{
		"name":  "Amber Corp",
		"color": int64(2),
	})
	require.NoError(err)
	id, err := partner.ID()
	require.NoError(err)
	require.Positive(id)

	t.Run("should read back through the cache", func(t *testing.T) {
		rows, err := partner.Read([]string{"name", "color", "active"})
		require.NoError(err)
		require.Len(rows, 1)
		require.Equal("Amber Corp", rows[0]["name"])
		require.Equal(int64(2), rows[0]["color"])
		require.Equal(true, rows[0]["active"]) // default applied
	})

	t.Run("should find the record by domain", func(t *testing.T) {
		found, err := env.Set("res.partner").Search(
			domains.Leaf("name", domains.OpILike, "amber"), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(partner))
	})

	t.Run("should write and see the new value", func(t *testing.T) {
		require.NoError(partner.Write(map[string]any{"color": int64(5)}))
		v, err := partner.Get("color")
		require.NoError(err)
		require.Equal(int64(5), v)
	})

	t.Run("should count matching records", func(t *testing.T) {
		n, err := env.Set("res.partner").SearchCount(domains.TRUE)
		require.NoError(err)
		require.Equal(int64(1), n)
	})

	t.Run("should unlink and stop existing", func(t *testing.T) {
		require.NoError(partner.Unlink())
		left, err := partner.Exists()
		require.NoError(err)
		require.True(left.IsEmpty())
	})
}

func TestEngine_Defaults(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	t.Run("should surface declared and functional defaults", func(t *testing.T) {
		defaults, err := env.Set("product.product").DefaultGet(nil)
		require.NoError(err)
		require.Equal("1.00", defaults["list_price"])
	})

	t.Run("should apply defaults on create", func(t *testing.T) {
		p, err := env.Set("product.product").Create(map[string]any{"name": "Desk"})
		require.NoError(err)
		s, err := p.GetString("list_price")
		require.NoError(err)
		require.Equal("1.00", s)
	})

	t.Run("should reject a create missing a required field", func(t *testing.T) {
		_, err := env.Set("product.product").Create(map[string]any{})
		require.ErrorIs(err, records.ErrMissingRequired)
	})
}

func TestEngine_ComputedStored(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	partner, err := env.Set("res.partner").Create(map[string]any{"name": "Briar"})
	require.NoError(err)
	pid, _ := partner.ID()
	product, err := env.Set("product.product").Create(map[string]any{"name": "Desk"})
	require.NoError(err)
	prodID, _ := product.ID()

	order, err := env.Set("sale.order").Create(map[string]any{
		"name":       "SO001",
		"partner_id": pid,
		"line_ids": []records.Command{
			records.Create(map[string]any{"subtotal": "100.00", "product_id": prodID}),
			records.Create(map[string]any{"subtotal": "50.50", "product_id": prodID}),
		},
	})
	require.NoError(err)
	require.NoError(env.Flush())

	t.Run("should aggregate the lines into the stored total", func(t *testing.T) {
		s, err := order.GetString("amount_total")
		require.NoError(err)
		require.Equal("150.50", s)
	})

	t.Run("should recompute when a dependency changes", func(t *testing.T) {
		lines, err := order.GetSet("line_ids")
		require.NoError(err)
		require.Equal(2, lines.Len())
		require.NoError(lines.Record(0).Write(map[string]any{"subtotal": "10.00"}))
		require.NoError(env.Flush())

		s, err := order.GetString("amount_total")
		require.NoError(err)
		require.Equal("60.50", s)
	})

	t.Run("should serve a pending recomputation on direct read", func(t *testing.T) {
		lines, err := order.GetSet("line_ids")
		require.NoError(err)
		require.NoError(lines.Record(1).Write(map[string]any{"subtotal": "25.00"}))
		s, err := order.GetString("amount_total") // no explicit flush
		require.NoError(err)
		require.Equal("35.00", s)
		require.NoError(env.Flush())
	})

	t.Run("should flush a single field on demand", func(t *testing.T) {
		lines, err := order.GetSet("line_ids")
		require.NoError(err)
		require.NoError(lines.Record(1).Write(map[string]any{"subtotal": "50.50"}))
		require.NoError(env.FlushFields("sale.order", "amount_total"))
		s, err := order.GetString("amount_total")
		require.NoError(err)
		require.Equal("60.50", s)
	})

	t.Run("should see the recomputed value through search", func(t *testing.T) {
		found, err := env.Set("sale.order").Search(
			domains.Leaf("amount_total", domains.OpEq, "60.50"), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(order))
	})

	t.Run("should cascade the unlink of the order to its lines", func(t *testing.T) {
		lines, err := order.GetSet("line_ids")
		require.NoError(err)
		require.NoError(order.Unlink())
		left, err := lines.Exists()
		require.NoError(err)
		require.True(left.IsEmpty())
	})

	t.Run("should refuse writing a computed field directly", func(t *testing.T) {
		o2, err := env.Set("sale.order").Create(map[string]any{"name": "SO002", "partner_id": pid})
		require.NoError(err)
		err = o2.Write(map[string]any{"amount_total": "1.00"})
		require.ErrorIs(err, records.ErrReadonlyField)
	})
}

func TestEngine_Hierarchy(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	cats := env.Set("product.category")
	all, err := cats.Create(map[string]any{"name": "All"})
	require.NoError(err)
	allID, _ := all.ID()
	office, err := cats.Create(map[string]any{"name": "Office", "parent_id": allID})
	require.NoError(err)
	officeID, _ := office.ID()
	chairs, err := cats.Create(map[string]any{"name": "Chairs", "parent_id": officeID})
	require.NoError(err)
	other, err := cats.Create(map[string]any{"name": "Other"})
	require.NoError(err)

	t.Run("should include the node itself among its children", func(t *testing.T) {
		found, err := cats.Search(domains.Leaf("id", domains.OpChildOf, officeID), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Contains(office))
		require.True(found.Contains(chairs))
		require.False(found.Contains(all))
	})

	t.Run("should walk ancestors with parent_of", func(t *testing.T) {
		chairsID, _ := chairs.ID()
		found, err := cats.Search(domains.Leaf("id", domains.OpParentOf, chairsID), records.SearchOptions{})
		require.NoError(err)
		require.Equal(3, found.Len())
		require.False(found.Contains(other))
	})

	t.Run("should re-root a moved subtree", func(t *testing.T) {
		otherID, _ := other.ID()
		require.NoError(office.Write(map[string]any{"parent_id": otherID}))
		found, err := cats.Search(domains.Leaf("id", domains.OpChildOf, otherID), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Contains(chairs))
		under, err := cats.Search(domains.Leaf("id", domains.OpChildOf, allID), records.SearchOptions{})
		require.NoError(err)
		require.False(under.Contains(chairs))
	})

	t.Run("should refuse moving a node under its descendant", func(t *testing.T) {
		chairsID, _ := chairs.ID()
		err := office.Write(map[string]any{"parent_id": chairsID})
		require.ErrorIs(err, records.ErrConstraintViolation)
	})
}

func TestEngine_Translated(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	product, err := env.Set("product.product").Create(map[string]any{"name": "Chair"})
	require.NoError(err)
	id, _ := product.ID()

	fr := env.WithLocaleVariant("fr")
	require.NoError(fr.Set("product.product", id).Write(map[string]any{"name": "Chaise"}))

	t.Run("should read the locale's value", func(t *testing.T) {
		s, err := fr.Set("product.product", id).GetString("name")
		require.NoError(err)
		require.Equal("Chaise", s)
		s, err = product.GetString("name")
		require.NoError(err)
		require.Equal("Chair", s)
	})

	t.Run("should fall back to the canonical locale", func(t *testing.T) {
		de := env.WithLocaleVariant("de")
		s, err := de.Set("product.product", id).GetString("name")
		require.NoError(err)
		require.Equal("Chair", s)
	})

	t.Run("should search in the active locale", func(t *testing.T) {
		found, err := fr.Set("product.product").Search(
			domains.Leaf("name", domains.OpILike, "chaise"), records.SearchOptions{})
		require.NoError(err)
		require.Equal(1, found.Len())
	})
}

func TestEngine_AccessControl(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	root := rootEnv(t, engine)

	inRule, err := root.Set("res.partner").Create(map[string]any{"name": "Visible", "color": int64(1)})
	require.NoError(err)
	hidden, err := root.Set("res.partner").Create(map[string]any{"name": "Hidden", "color": int64(2)})
	require.NoError(err)
	hiddenID, err := hidden.ID()
	require.NoError(err)
	require.NoError(root.Commit())

	env, err := engine.NewEnvironment(context.Background(),
		accessctl.Subject{ID: 7, Groups: []string{"sales"}})
	require.NoError(err)
	t.Cleanup(func() { _ = env.Rollback() })

	t.Run("should deny entities without a grant", func(t *testing.T) {
		_, err := env.Set("product.product").Search(domains.TRUE, records.SearchOptions{})
		require.ErrorIs(err, accessctl.ErrAccess)
	})

	t.Run("should filter searches through the rule domain", func(t *testing.T) {
		found, err := env.Set("res.partner").Search(domains.TRUE, records.SearchOptions{})
		require.NoError(err)
		require.Equal(inRule.IDs(), found.IDs())
	})

	t.Run("should deny reading outside the read rules", func(t *testing.T) {
		_, err := env.Set("res.partner", hiddenID).Read([]string{"name"})
		require.ErrorIs(err, accessctl.ErrAccess)
		_, err = env.Set("res.partner", hiddenID).Get("name")
		require.ErrorIs(err, accessctl.ErrAccess)
	})

	t.Run("should hold superusers to the ACL", func(t *testing.T) {
		super, err := engine.NewEnvironment(context.Background(),
			accessctl.Subject{ID: 9, Superuser: true})
		require.NoError(err)
		t.Cleanup(func() { _ = super.Rollback() })
		_, err = super.Set("product.tag").Create(map[string]any{"name": "loose"})
		require.ErrorIs(err, accessctl.ErrAccess)
	})

	t.Run("should reject writes landing outside the write rules", func(t *testing.T) {
		visible := env.Set("res.partner", inRule.IDs()...)
		err := visible.Write(map[string]any{"color": int64(2)})
		require.ErrorIs(err, accessctl.ErrAccess)
	})

	t.Run("should let sudo bypass rules but not report them", func(t *testing.T) {
		n, err := env.Sudo().Set("res.partner").SearchCount(domains.TRUE)
		require.NoError(err)
		require.Equal(int64(2), n)
	})
}

func TestEngine_Delegation(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	user, err := env.Set("res.users").Create(map[string]any{
		"login": "amber",
		"name":  "Amber",
	})
	require.NoError(err)

	t.Run("should expose the parent's fields on the child", func(t *testing.T) {
		s, err := user.GetString("name")
		require.NoError(err)
		require.Equal("Amber", s)
	})

	t.Run("should write through to the parent row", func(t *testing.T) {
		require.NoError(user.Write(map[string]any{"name": "Amber B."}))
		partners, err := user.MappedSet("partner_id")
		require.NoError(err)
		s, err := partners.GetString("name")
		require.NoError(err)
		require.Equal("Amber B.", s)
	})
}

func TestEngine_Many2ManyCommands(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	tags := env.Set("product.tag")
	red, err := tags.Create(map[string]any{"name": "red"})
	require.NoError(err)
	redID, _ := red.ID()
	blue, err := tags.Create(map[string]any{"name": "blue"})
	require.NoError(err)
	blueID, _ := blue.ID()

	product, err := env.Set("product.product").Create(map[string]any{
		"name":    "Desk",
		"tag_ids": []records.Command{records.Link(redID)},
	})
	require.NoError(err)

	tagIDs := func() []int64 {
		set, err := product.GetSet("tag_ids")
		require.NoError(err)
		return set.IDs()
	}

	require.Equal([]int64{redID}, tagIDs())

	t.Run("should link without duplicating", func(t *testing.T) {
		require.NoError(product.Write(map[string]any{
			"tag_ids": []records.Command{records.Link(redID), records.Link(blueID)},
		}))
		require.Equal([]int64{redID, blueID}, tagIDs())
	})

	t.Run("should replace with set", func(t *testing.T) {
		require.NoError(product.Write(map[string]any{
			"tag_ids": []records.Command{records.Set(blueID)},
		}))
		require.Equal([]int64{blueID}, tagIDs())
	})

	t.Run("should clear all links", func(t *testing.T) {
		require.NoError(product.Write(map[string]any{
			"tag_ids": []records.Command{records.Clear()},
		}))
		require.Empty(tagIDs())
	})

	t.Run("should drop links when the target goes away", func(t *testing.T) {
		require.NoError(product.Write(map[string]any{
			"tag_ids": []records.Command{records.Link(blueID)},
		}))
		require.NoError(blue.Unlink())
		require.Empty(tagIDs())
	})
}

func TestEngine_ActiveFilter(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	alive, err := env.Set("res.partner").Create(map[string]any{"name": "Alive"})
	require.NoError(err)
	archived, err := env.Set("res.partner").Create(map[string]any{"name": "Gone", "active": false})
	require.NoError(err)

	t.Run("should hide archived records by default", func(t *testing.T) {
		found, err := env.Set("res.partner").Search(domains.TRUE, records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(alive))
	})

	t.Run("should show them to an inactive-testing view", func(t *testing.T) {
		found, err := env.WithInactiveTest().Set("res.partner").Search(domains.TRUE, records.SearchOptions{})
		require.NoError(err)
		require.Equal(2, found.Len())
	})

	t.Run("should not stack the filter when the domain decides", func(t *testing.T) {
		found, err := env.Set("res.partner").Search(
			domains.Leaf("active", domains.OpEq, false), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(archived))
	})
}

func TestEngine_Constraints(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	t.Run("should reject a create violating a constraint", func(t *testing.T) {
		_, err := env.Set("product.product").Create(map[string]any{
			"name": "Broken", "list_price": "-5.00",
		})
		require.ErrorIs(err, records.ErrConstraintViolation)
	})

	t.Run("should leave no trace after the rejected create", func(t *testing.T) {
		n, err := env.Set("product.product").SearchCount(domains.TRUE)
		require.NoError(err)
		require.Equal(int64(0), n)
	})

	t.Run("should skip constraints whose fields were untouched", func(t *testing.T) {
		p, err := env.Set("product.product").Create(map[string]any{"name": "Fine"})
		require.NoError(err)
		require.NoError(p.Write(map[string]any{"name": "Renamed"}))
	})
}

func TestEngine_Drafts(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	draft, err := env.Draft("product.product", map[string]any{"name": "Draft Desk"})
	require.NoError(err)
	id, err := draft.ID()
	require.NoError(err)
	require.Negative(id)

	t.Run("should carry defaults and given values", func(t *testing.T) {
		s, err := draft.GetString("list_price")
		require.NoError(err)
		require.Equal("1.00", s)
		name, err := draft.GetString("name")
		require.NoError(err)
		require.Equal("Draft Desk", name)
	})

	t.Run("should never exist in the database", func(t *testing.T) {
		left, err := draft.Exists()
		require.NoError(err)
		require.True(left.IsEmpty())
	})

	t.Run("should accept cache-only writes", func(t *testing.T) {
		require.NoError(draft.Write(map[string]any{"name": "Adjusted"}))
		s, err := draft.GetString("name")
		require.NoError(err)
		require.Equal("Adjusted", s)
	})
}

func TestEngine_NameSearch(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	for _, name := range []string{"Amber Corp", "Ambrosia Ltd", "Zenith"} {
		_, err := env.Set("res.partner").Create(map[string]any{"name": name})
		require.NoError(err)
	}

	pairs, err := env.Set("res.partner").NameSearch("amb", 10)
	require.NoError(err)
	require.Len(pairs, 2)
	require.Equal("Amber Corp", pairs[0].Name)

	t.Run("should honor the limit", func(t *testing.T) {
		pairs, err := env.Set("res.partner").NameSearch("", 2)
		require.NoError(err)
		require.Len(pairs, 2)
	})
}

func TestEngine_StoredRelated(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	partner, err := env.Set("res.partner").Create(map[string]any{"name": "Briar"})
	require.NoError(err)
	pid, _ := partner.ID()
	product, err := env.Set("product.product").Create(map[string]any{"name": "Desk"})
	require.NoError(err)
	prodID, _ := product.ID()

	order, err := env.Set("sale.order").Create(map[string]any{
		"name":       "SO100",
		"partner_id": pid,
		"line_ids": []records.Command{
			records.Create(map[string]any{"subtotal": "1.00", "product_id": prodID}),
		},
	})
	require.NoError(err)
	require.NoError(env.Flush())

	lines, err := order.GetSet("line_ids")
	require.NoError(err)

	t.Run("should materialize the path value into the column", func(t *testing.T) {
		found, err := env.Set("sale.order.line").Search(
			domains.Leaf("order_name", domains.OpEq, "SO100"), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(lines))
		s, err := lines.GetString("order_name")
		require.NoError(err)
		require.Equal("SO100", s)
	})

	t.Run("should follow a rename of the source", func(t *testing.T) {
		require.NoError(order.Write(map[string]any{"name": "SO200"}))
		require.NoError(env.Flush())
		found, err := env.Set("sale.order.line").Search(
			domains.Leaf("order_name", domains.OpEq, "SO200"), records.SearchOptions{})
		require.NoError(err)
		require.True(found.Equal(lines))
	})

	t.Run("should settle several pending fields in one flush", func(t *testing.T) {
		require.NoError(lines.Write(map[string]any{"subtotal": "7.50"}))
		require.NoError(order.Write(map[string]any{"name": "SO300"}))
		require.NoError(env.Flush())
		total, err := order.GetString("amount_total")
		require.NoError(err)
		require.Equal("7.50", total)
		s, err := lines.GetString("order_name")
		require.NoError(err)
		require.Equal("SO300", s)
	})

	t.Run("should refuse direct writes", func(t *testing.T) {
		err := lines.Write(map[string]any{"order_name": "bogus"})
		require.ErrorIs(err, records.ErrReadonlyField)
	})
}

func TestEngine_BinaryField(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	blob := []byte{0x89, 0x50, 0x4e, 0x47, 0x00, 0x01}
	product, err := env.Set("product.product").Create(map[string]any{
		"name":  "Photo",
		"image": blob,
	})
	require.NoError(err)

	t.Run("should round-trip opaque bytes through storage", func(t *testing.T) {
		env.Invalidate(product)
		v, err := product.Get("image")
		require.NoError(err)
		require.Equal(blob, v)
	})

	t.Run("should keep an unset handle nil", func(t *testing.T) {
		bare, err := env.Set("product.product").Create(map[string]any{"name": "Bare"})
		require.NoError(err)
		env.Invalidate(bare, "image")
		v, err := bare.Get("image")
		require.NoError(err)
		require.Nil(v)
	})
}

func TestEngine_MissingRecord(t *testing.T) {
	require := require.New(t)
	engine, _ := testEngine(t)
	env := rootEnv(t, engine)

	ghost := env.Set("res.partner", 9999)
	_, err := ghost.Get("name")
	require.True(errors.Is(err, records.ErrMissingRecord))
}
