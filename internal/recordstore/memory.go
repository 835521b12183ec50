package recordstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryClient is a map-backed record store used by tests and local runs.
// It mirrors the PostgreSQL client's behavior: store-assigned IDs, per-call
// consistency, no cross-entity transactions.
type InMemoryClient struct {
	mu      sync.RWMutex
	records map[string][]Record
}

func NewInMemoryClient() *InMemoryClient {
	return &InMemoryClient{records: make(map[string][]Record)}
}

func (c *InMemoryClient) Query(_ context.Context, entity string, q Query) ([]Record, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Record
	for _, rec := range c.records[entity] {
		if matches(rec, q.Filters) {
			out = append(out, cloneRecord(rec))
		}
	}

	if q.Order != nil {
		order := *q.Order
		sort.SliceStable(out, func(i, j int) bool {
			cmp := compare(out[i][order.Field], out[j][order.Field])
			if order.Desc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *InMemoryClient) Insert(_ context.Context, entity string, fields Record) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec := cloneRecord(fields)
	if _, ok := rec["id"]; !ok {
		rec["id"] = uuid.NewString()
	}
	if _, ok := rec["created_at"]; !ok {
		rec["created_at"] = time.Now()
	}
	c.records[entity] = append(c.records[entity], rec)
	return cloneRecord(rec), nil
}

func (c *InMemoryClient) Update(_ context.Context, entity string, id any, fields Record, idField string) (Record, error) {
	if idField == "" {
		idField = "id"
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for i, rec := range c.records[entity] {
		if compare(rec[idField], id) == 0 {
			updated := cloneRecord(rec)
			for k, v := range fields {
				updated[k] = v
			}
			c.records[entity][i] = updated
			return cloneRecord(updated), nil
		}
	}
	return nil, ErrNotFound
}

func matches(rec Record, filters []Filter) bool {
	for _, f := range filters {
		cmp := compare(rec[f.Field], f.Value)
		switch f.Op {
		case OpEq:
			if cmp != 0 {
				return false
			}
		case OpNeq:
			if cmp == 0 {
				return false
			}
		case OpGt:
			if cmp <= 0 {
				return false
			}
		case OpGte:
			if cmp < 0 {
				return false
			}
		case OpLt:
			if cmp >= 0 {
				return false
			}
		case OpLte:
			if cmp > 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// compare orders mixed field values: nils first, then by type-specific order.
func compare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return -1
		}
		return strings.Compare(av, bv)
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return -1
		}
		if av == bv {
			return 0
		}
		if !av {
			return -1
		}
		return 1
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return -1
		}
		return av.Compare(bv)
	default:
		af, aok := toFloat(a)
		bf, bok := toFloat(b)
		if aok && bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
		return -1
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func cloneRecord(rec Record) Record {
	out := make(Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}
