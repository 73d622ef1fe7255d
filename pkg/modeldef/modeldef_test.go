/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package modeldef

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entago/entago/pkg/domains"
)

func testRegistry(t *testing.T) IRegistry {
	t.Helper()

	b := New()

	b.AddEntity("res.partner").
		AddField("name", KindChar, Required).
		AddField("email", KindChar, Size(128)).
		AddField("active", KindBoolean, Default(true))

	b.AddEntity("product.category", Order("name, id")).
		AddField("name", KindChar, Required).
		AddMany2one("parent_id", "product.category").
		SetParentField("parent_id")

	b.AddEntity("product.product").
		AddField("name", KindChar, Required, Translate).
		AddField("list_price", KindDecimal, Digits(16, 2)).
		AddMany2one("categ_id", "product.category")

	b.AddEntity("sale.order", Order("create_date desc, id desc")).
		AddField("reference", KindChar, Size(32), Unique).
		AddMany2one("partner_id", "res.partner", Required).
		AddOne2many("lines", "sale.order.line", "order_id").
		AddField("total", KindFloat, Precision(2),
			Compute("compute_total", "lines.subtotal"), Stored, Readonly).
		AddField("state", KindSelection,
			Selection(Option{"draft", "Draft"}, Option{"done", "Done"}),
			Default("draft"))

	b.AddEntity("sale.order.line").
		AddMany2one("order_id", "sale.order", Required, OnDeletePolicy(OnDeleteCascade)).
		AddMany2one("product_id", "product.product").
		AddField("qty", KindFloat, Default(1.0)).
		AddField("subtotal", KindFloat)

	reg, err := b.Build()
	require.NoError(t, err)
	return reg
}

func TestBuild(t *testing.T) {
	require := require.New(t)
	reg := testRegistry(t)

	t.Run("should register entities in declaration order", func(t *testing.T) {
		require.Equal(5, reg.EntityCount())
		var names []string
		reg.Entities(func(e IEntity) { names = append(names, e.Name()) })
		require.Equal([]string{"res.partner", "product.category", "product.product", "sale.order", "sale.order.line"}, names)
	})

	t.Run("should derive table names", func(t *testing.T) {
		require.Equal("sale_order", reg.Entity("sale.order").Table())
	})

	t.Run("should add system fields", func(t *testing.T) {
		order := reg.Entity("sale.order")
		require.NotNil(order.Field(FieldID))
		require.NotNil(order.Field(FieldCreated))
		require.NotNil(order.Field(FieldUpdated))
		require.True(order.Field(FieldID).IsSys())
	})

	t.Run("should mark stored computed fields", func(t *testing.T) {
		total := reg.Entity("sale.order").Field("total")
		require.True(total.Stored())
		require.Equal("compute_total", total.Compute())
		require.Equal([]string{"lines.subtotal"}, total.Depends())
	})

	t.Run("should add parent_path to hierarchical entities", func(t *testing.T) {
		categ := reg.Entity("product.category")
		require.Equal("parent_id", categ.ParentField())
		require.NotNil(categ.Field(FieldParentPath))
		require.Nil(reg.Entity("res.partner").Field(FieldParentPath))
	})

	t.Run("should report unknown entities", func(t *testing.T) {
		require.Nil(reg.Entity("nope"))
		_, err := reg.MustEntity("nope")
		require.ErrorIs(err, ErrUnknownEntity)
	})
}

func TestResolvePath(t *testing.T) {
	require := require.New(t)
	reg := testRegistry(t)
	line := reg.Entity("sale.order.line")

	t.Run("should walk relational chains", func(t *testing.T) {
		chain, err := line.ResolvePath("order_id.partner_id.name")
		require.NoError(err)
		require.Len(chain, 3)
		require.Equal(KindChar, chain[2].Kind())
	})

	t.Run("should fail on scalar mid-path", func(t *testing.T) {
		_, err := line.ResolvePath("qty.name")
		require.ErrorIs(err, ErrFieldResolution)
	})

	t.Run("should fail on unknown segments", func(t *testing.T) {
		_, err := line.ResolvePath("order_id.nope")
		require.ErrorIs(err, ErrFieldResolution)
	})
}

func TestMixins(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("mail.thread", Abstract).
		AddField("message_count", KindInteger).
		AddField("subject", KindChar)
	b.AddEntity("crm.lead").
		Mixin("mail.thread").
		AddField("name", KindChar, Required).
		AddField("subject", KindChar, Size(64)) // overrides the mixin field

	reg, err := b.Build()
	require.NoError(err)

	t.Run("should merge mixin fields", func(t *testing.T) {
		lead := reg.Entity("crm.lead")
		require.NotNil(lead.Field("message_count"))
		require.Equal(64, lead.Field("subject").Size())
	})

	t.Run("should not materialize abstract entities", func(t *testing.T) {
		require.Nil(reg.Entity("mail.thread"))
	})
}

func TestMixinCycle(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("a", Abstract).Mixin("b").AddField("x", KindChar)
	b.AddEntity("b", Abstract).Mixin("a").AddField("y", KindChar)
	b.AddEntity("c").Mixin("a").AddField("name", KindChar)

	_, err := b.Build()
	require.ErrorIs(err, ErrInheritanceCycle)
}

func TestDelegation(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("res.partner").
		AddField("name", KindChar, Required).
		AddField("email", KindChar)
	b.AddEntity("res.users").
		Delegate("res.partner", "partner_id").
		AddField("login", KindChar, Required, Unique)

	reg, err := b.Build()
	require.NoError(err)
	users := reg.Entity("res.users")

	t.Run("should force the reference field", func(t *testing.T) {
		ref := users.Field("partner_id")
		require.NotNil(ref)
		require.True(ref.Required())
		require.Equal(OnDeleteCascade, ref.OnDelete())
	})

	t.Run("should expose parent fields as related", func(t *testing.T) {
		name := users.Field("name")
		require.NotNil(name)
		require.Equal("partner_id.name", name.Related())
		require.False(name.Stored())
		require.Equal(KindChar, name.Kind())
	})

	t.Run("should keep own fields plain", func(t *testing.T) {
		require.Equal("", users.Field("login").Related())
		require.True(users.Field("login").Stored())
	})
}

func TestDelegationCycle(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("a").Delegate("b", "b_id").AddField("x", KindChar)
	b.AddEntity("b").Delegate("a", "a_id").AddField("y", KindChar)

	_, err := b.Build()
	require.ErrorIs(err, ErrInheritanceCycle)
}

func TestValidation(t *testing.T) {
	require := require.New(t)

	t.Run("should reject broken one2many inverses", func(t *testing.T) {
		b := New()
		b.AddEntity("a").AddOne2many("items", "b", "nope")
		b.AddEntity("b").AddField("name", KindChar)
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should reject unknown comodels", func(t *testing.T) {
		b := New()
		b.AddEntity("a").AddMany2one("other", "ghost")
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should require dependencies on stored computed fields", func(t *testing.T) {
		b := New()
		b.AddEntity("a").AddField("x", KindFloat, Compute("calc"), Stored)
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should reject non-stored order keys", func(t *testing.T) {
		b := New()
		b.AddEntity("a", Order("virt")).
			AddField("virt", KindChar, Compute("calc"))
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should reject selection without options", func(t *testing.T) {
		b := New()
		b.AddEntity("a").AddField("state", KindSelection)
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should reject translated relations", func(t *testing.T) {
		b := New()
		b.AddEntity("a").AddField("num", KindInteger, Translate)
		_, err := b.Build()
		require.ErrorIs(err, ErrInvalidDeclaration)
	})

	t.Run("should panic on duplicate entities", func(t *testing.T) {
		b := New()
		b.AddEntity("a")
		require.Panics(func() { b.AddEntity("a") })
	})

	t.Run("should panic on reserved field names", func(t *testing.T) {
		b := New()
		require.Panics(func() { b.AddEntity("a").AddField("id", KindInteger) })
	})
}

func TestExtend(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("res.partner").AddField("name", KindChar, Required)
	b.Extend("res.partner").
		AddField("vat", KindChar, Size(32)).
		AddField("name", KindChar, Required, Size(128)) // override

	reg, err := b.Build()
	require.NoError(err)
	partner := reg.Entity("res.partner")
	require.NotNil(partner.Field("vat"))
	require.Equal(128, partner.Field("name").Size())

	require.Panics(func() { b.Extend("ghost") })
}

func TestManyToMany(t *testing.T) {
	require := require.New(t)

	b := New()
	b.AddEntity("project.task").
		AddField("name", KindChar).
		AddMany2many("tag_ids", "project.tag",
			Domain(domains.Leaf("active", domains.OpEq, true)))
	b.AddEntity("project.tag").
		AddField("name", KindChar).
		AddField("active", KindBoolean, Default(true))

	reg, err := b.Build()
	require.NoError(err)

	tags := reg.Entity("project.task").Field("tag_ids")
	require.Equal("project_tag_project_task_rel", tags.RelTable())
	require.Equal("project_task_id", tags.Column1())
	require.Equal("project_tag_id", tags.Column2())
	require.NotNil(tags.Domain())

	var links []LinkTable
	reg.LinkTables(func(lt LinkTable) { links = append(links, lt) })
	require.Len(links, 1)
	require.Equal("project_tag_project_task_rel", links[0].Table)
}

func TestDDL(t *testing.T) {
	require := require.New(t)
	reg := testRegistry(t)

	stmts := DDL(reg, DDLPostgres)
	require.NotEmpty(stmts)

	joined := ""
	for _, s := range stmts {
		joined += s + ";\n"
	}
	require.Contains(joined, `CREATE TABLE "sale_order"`)
	require.Contains(joined, `"total" DOUBLE PRECISION`)
	require.Contains(joined, `"partner_id" BIGINT NOT NULL REFERENCES "res_partner" (id) ON DELETE SET NULL`)
	require.Contains(joined, `"name" JSONB`) // translated product name
	require.Contains(joined, `"list_price" NUMERIC(16,2)`)
	require.Contains(joined, `CREATE INDEX "product_category_parent_path_idx"`)
}
