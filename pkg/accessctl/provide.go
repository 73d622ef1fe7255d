/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package accessctl

// NewACLBuilder makes an empty grant collector.
func NewACLBuilder() IACLBuilder {
	return &aclBuilder{grants: make(map[string]map[string]uint8)}
}

// NewRuleSetBuilder makes an empty rule collector.
func NewRuleSetBuilder() IRuleSetBuilder {
	return &ruleSetBuilder{
		global: make(map[string][ModeCount][]rule),
		scoped: make(map[string][ModeCount][]rule),
	}
}
