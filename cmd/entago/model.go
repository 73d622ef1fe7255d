/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package main

import "github.com/entago/entago/pkg/modeldef"

// demoModel is the reference model the utility operates on. Applications
// embed the engine and declare their own.
func demoModel() (modeldef.IRegistry, error) {
	b := modeldef.New()

	b.AddEntity("res.partner", modeldef.Order("name asc, id asc")).
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddField("email", modeldef.KindChar).
		AddField("active", modeldef.KindBoolean, modeldef.Default(true)).
		AddMany2one("company_id", "res.partner")

	b.AddEntity("product.category").
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddMany2one("parent_id", "product.category").
		SetParentField("parent_id")

	b.AddEntity("product.product").
		AddField("name", modeldef.KindChar, modeldef.Required, modeldef.Translate).
		AddField("list_price", modeldef.KindDecimal, modeldef.Digits(16, 2)).
		AddMany2one("categ_id", "product.category")

	b.AddEntity("sale.order", modeldef.Order("id desc")).
		AddField("name", modeldef.KindChar, modeldef.Required).
		AddField("date_order", modeldef.KindDatetime).
		AddMany2one("partner_id", "res.partner", modeldef.Required).
		AddOne2many("line_ids", "sale.order.line", "order_id")

	b.AddEntity("sale.order.line").
		AddField("subtotal", modeldef.KindDecimal, modeldef.Digits(16, 2)).
		AddMany2one("order_id", "sale.order", modeldef.Required,
			modeldef.OnDeletePolicy(modeldef.OnDeleteCascade)).
		AddMany2one("product_id", "product.product", modeldef.Required)

	return b.Build()
}
