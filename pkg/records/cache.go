/*
 * Copyright (c) 2024-present Entago, Ltd.
 */

package records

// fieldCache is the per-transaction field value cache. It is the authority
// between flushes: reads prefer it over the database, writes land here first
// and reach storage on flush.
//
// Values are stored per entity, id and field. A cached nil means the value
// is known to be unset; absence means unknown.
type fieldCache struct {
	values map[string]map[int64]map[string]any
	// prefetch remembers which ids arrived together, so that fetching one
	// field of one record fetches it for the whole batch.
	prefetch map[string]map[int64]struct{}
}

func newFieldCache() *fieldCache {
	return &fieldCache{
		values:   make(map[string]map[int64]map[string]any),
		prefetch: make(map[string]map[int64]struct{}),
	}
}

func (c *fieldCache) get(entity string, id int64, field string) (any, bool) {
	rec, ok := c.values[entity][id]
	if !ok {
		return nil, false
	}
	v, ok := rec[field]
	return v, ok
}

func (c *fieldCache) set(entity string, id int64, field string, v any) {
	byID, ok := c.values[entity]
	if !ok {
		byID = make(map[int64]map[string]any)
		c.values[entity] = byID
	}
	rec, ok := byID[id]
	if !ok {
		rec = make(map[string]any)
		byID[id] = rec
	}
	rec[field] = v
}

func (c *fieldCache) invalidateField(entity string, id int64, field string) {
	if rec, ok := c.values[entity][id]; ok {
		delete(rec, field)
	}
}

func (c *fieldCache) invalidateRecord(entity string, id int64) {
	delete(c.values[entity], id)
}

func (c *fieldCache) invalidateEntityField(entity, field string) {
	for _, rec := range c.values[entity] {
		delete(rec, field)
	}
}

func (c *fieldCache) invalidateAll() {
	c.values = make(map[string]map[int64]map[string]any)
	c.prefetch = make(map[string]map[int64]struct{})
}

// markPrefetch registers ids as one prefetch batch of the entity.
func (c *fieldCache) markPrefetch(entity string, ids []int64) {
	set, ok := c.prefetch[entity]
	if !ok {
		set = make(map[int64]struct{})
		c.prefetch[entity] = set
	}
	for _, id := range ids {
		if id > 0 {
			set[id] = struct{}{}
		}
	}
}

// prefetchIDs returns the batch ids of the entity still missing field,
// always including the requested ids.
func (c *fieldCache) prefetchIDs(entity string, ids []int64, field string) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	add := func(id int64) {
		if id <= 0 {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		if _, ok := c.get(entity, id, field); !ok {
			out = append(out, id)
		}
	}
	for _, id := range ids {
		add(id)
	}
	for id := range c.prefetch[entity] {
		add(id)
	}
	return out
}
