/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package accessctl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entago/entago/pkg/domains"
)

func TestACL(t *testing.T) {
	require := require.New(t)

	acl := NewACLBuilder().
		Grant("sales_user", "sale.order", ModeRead, ModeCreate, ModeWrite).
		Grant("sales_manager", "sale.order").
		Grant("base_user", "res.partner", ModeRead).
		Build()

	t.Run("should grant listed modes", func(t *testing.T) {
		require.True(acl.Check([]string{"sales_user"}, "sale.order", ModeRead))
		require.True(acl.Check([]string{"sales_user"}, "sale.order", ModeWrite))
		require.False(acl.Check([]string{"sales_user"}, "sale.order", ModeUnlink))
	})

	t.Run("should expand empty modes to all", func(t *testing.T) {
		require.True(acl.Check([]string{"sales_manager"}, "sale.order", ModeUnlink))
	})

	t.Run("should union group memberships", func(t *testing.T) {
		groups := []string{"base_user", "sales_user"}
		require.True(acl.Check(groups, "res.partner", ModeRead))
		require.True(acl.Check(groups, "sale.order", ModeCreate))
		require.False(acl.Check(groups, "res.partner", ModeWrite))
	})

	t.Run("should deny unknown entities and groups", func(t *testing.T) {
		require.False(acl.Check([]string{"sales_user"}, "account.move", ModeRead))
		require.False(acl.Check([]string{"ghost"}, "sale.order", ModeRead))
		require.False(acl.Check(nil, "sale.order", ModeRead))
	})
}

func TestRuleSet(t *testing.T) {
	require := require.New(t)

	ownDocs := domains.Leaf("owner_id", domains.OpEq, int64(7))
	activeOnly := domains.Leaf("active", domains.OpEq, true)
	teamDocs := domains.Leaf("team_id", domains.OpIn, []any{int64(1), int64(2)})

	rules := NewRuleSetBuilder().
		AddRule("doc", activeOnly, nil).                               // global, all modes
		AddRule("doc", ownDocs, []string{"doc_user"}, ModeRead).       // group rule
		AddRule("doc", teamDocs, []string{"doc_manager"}, ModeRead).   // group rule
		AddRule("doc", ownDocs, []string{"doc_user"}, ModeWrite).      // write stays own-only
		Build()

	t.Run("should AND global with OR of matching group rules", func(t *testing.T) {
		e := rules.DomainFor("doc", ModeRead, []string{"doc_user", "doc_manager"})
		and, ok := e.(domains.AndExpr)
		require.True(ok)
		require.Len(and.Exprs, 2)
		or, ok := and.Exprs[1].(domains.OrExpr)
		require.True(ok)
		require.Len(or.Exprs, 2)
	})

	t.Run("should keep only matching group rules", func(t *testing.T) {
		e := rules.DomainFor("doc", ModeRead, []string{"doc_user"})
		and, ok := e.(domains.AndExpr)
		require.True(ok)
		require.Equal(ownDocs, and.Exprs[1])
	})

	t.Run("should deny when group rules exist but none match", func(t *testing.T) {
		require.Equal(domains.FALSE, rules.DomainFor("doc", ModeRead, []string{"other"}))
	})

	t.Run("should fall back to globals for modes without group rules", func(t *testing.T) {
		require.Equal(domains.Expr(activeOnly), rules.DomainFor("doc", ModeUnlink, []string{"doc_user"}))
	})

	t.Run("should be TRUE without any rules", func(t *testing.T) {
		require.Equal(domains.TRUE, rules.DomainFor("other.entity", ModeRead, []string{"doc_user"}))
	})
}

func TestErrAccessDenied(t *testing.T) {
	require := require.New(t)

	err := ErrAccessDenied("sale.order", ModeWrite)
	require.ErrorIs(err, ErrAccess)
	require.Contains(err.Error(), "sale.order")
	require.Contains(err.Error(), "write")
}
