// Package recordstore is the adapter over the shared record store. It exposes
// a generic query/insert/update surface over named entities; each call is
// independently consistent at the single-entity level and there are no
// cross-entity transactions. Typed repositories build on top of it.
package recordstore

import (
	"context"
	"time"
)

// Entity names. These match the legacy store's collections.
const (
	EntityDonations        = "donations"
	EntityStatusHistory    = "donation_status_history"
	EntityDonorForms       = "donor_forms"
	EntityScreeningForms   = "screening_forms"
	EntityPhysicalExams    = "physical_examinations"
	EntityBloodCollections = "blood_collections"
	EntityInventoryUnits   = "blood_bank_units"
	EntityMedicalHistories = "medical_histories"
)

// Op is a filter comparison operator.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpGt  Op = "gt"
	OpGte Op = "gte"
	OpLt  Op = "lt"
	OpLte Op = "lte"
)

// Filter is an equality/negation/comparison predicate on a field.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Op: OpEq, Value: value}
}

// Neq builds a negation filter.
func Neq(field string, value any) Filter {
	return Filter{Field: field, Op: OpNeq, Value: value}
}

// Order specifies a sort field and direction.
type Order struct {
	Field string
	Desc  bool
}

// Query bundles filters, ordering, and a result limit.
type Query struct {
	Filters []Filter
	Order   *Order
	Limit   int
}

// Record is one row of an entity, keyed by field name. Every entity carries
// an "id" field assigned by the store on insert.
type Record map[string]any

// Client is the record store boundary consumed by repositories. All calls may
// fail; callers must treat errors as communication failures and never assume
// a write happened.
type Client interface {
	Query(ctx context.Context, entity string, q Query) ([]Record, error)
	Insert(ctx context.Context, entity string, fields Record) (Record, error)
	Update(ctx context.Context, entity string, id any, fields Record, idField string) (Record, error)
}

// String returns the named field as a string, empty when absent or nil.
func (r Record) String(field string) string {
	v, _ := r[field].(string)
	return v
}

// Float returns the named field as a float64, zero when absent.
func (r Record) Float(field string) float64 {
	switch v := r[field].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the named field as a bool, false when absent.
func (r Record) Bool(field string) bool {
	v, _ := r[field].(bool)
	return v
}

// Time returns the named field as a time.Time, zero when absent.
func (r Record) Time(field string) time.Time {
	v, _ := r[field].(time.Time)
	return v
}

// TimePtr returns the named field as a *time.Time, nil when absent or null.
func (r Record) TimePtr(field string) *time.Time {
	switch v := r[field].(type) {
	case time.Time:
		t := v
		return &t
	case *time.Time:
		return v
	}
	return nil
}
