package rhc

import "github.com/ocx/ddscore/internal/entity"

// Filter is a query condition's user predicate, evaluated against a
// sample's decoded data. A nil Filter means the condition is a plain read
// condition: mask alone decides membership.
type Filter func(data any) bool

// Condition pairs a state mask with an optional data predicate, the way
// dds_create_readcond builds a dds_readcond for either DDS_KIND_COND_READ
// (no filter) or DDS_KIND_COND_QUERY (filter set). Conditions are plain
// values here rather than entities with their own lifecycle, since
// SPEC_FULL.md's entity model does not expose user-facing condition
// handles as first-class deletable entities.
type Condition struct {
	Mask   Mask
	Filter Filter
}

func (c Condition) predicate() func(*Sample) bool {
	if c.Filter == nil {
		return nil
	}
	return func(s *Sample) bool { return c.Filter(s.Data) }
}

// ReadWithCondition behaves like Read but additionally requires each
// sample to satisfy cond's mask and, for a query condition, its filter.
func (c *Cache) ReadWithCondition(maxSamples int, cond Condition, handle entity.InstanceHandle) *Loan {
	return c.collect(maxSamples, cond.Mask, handle, cond.predicate(), false)
}

// TakeWithCondition behaves like Take but additionally requires each
// sample to satisfy cond's mask and, for a query condition, its filter.
func (c *Cache) TakeWithCondition(maxSamples int, cond Condition, handle entity.InstanceHandle) *Loan {
	return c.collect(maxSamples, cond.Mask, handle, cond.predicate(), true)
}
