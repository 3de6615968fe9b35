// Package qos defines the per-endpoint QoS policies the matching engine in
// internal/discovery tests for compatibility, and Merge for overlaying an
// endpoint's chosen policies onto a set of defaults. Endpoint creation in
// internal/domain does not call Merge.
package qos

import "github.com/ocx/ddscore/internal/rtps"

// ReliabilityKind selects best-effort or reliable delivery.
type ReliabilityKind int

const (
	BestEffort ReliabilityKind = iota
	Reliable
)

// DurabilityKind orders durability from weakest to strongest, matching the
// DDS convention that a writer's durability must be >= a reader's.
type DurabilityKind int

const (
	Volatile DurabilityKind = iota
	TransientLocal
	Transient
	Persistent
)

// HistoryKind selects keep-last-N or keep-all retention.
type HistoryKind int

const (
	KeepLast HistoryKind = iota
	KeepAll
)

// OwnershipKind selects shared or exclusive instance ownership.
type OwnershipKind int

const (
	SharedOwnership OwnershipKind = iota
	ExclusiveOwnership
)

// DestinationOrderKind selects reception order or source-timestamp order.
type DestinationOrderKind int

const (
	ByReceptionTimestamp DestinationOrderKind = iota
	BySourceTimestamp
)

// Reliability carries the reliability kind and, for Reliable, the maximum
// time write() may block under resource-limit throttling.
type Reliability struct {
	Kind        ReliabilityKind
	MaxBlocking rtps.Duration
}

// History carries the retention kind and, for KeepLast, the retained depth.
type History struct {
	Kind  HistoryKind
	Depth int
}

// ResourceLimits bounds per-instance and total sample counts.
type ResourceLimits struct {
	MaxSamples         int // 0 = unlimited
	MaxInstances       int
	MaxSamplesPerInst  int
}

// Liveliness bounds how long a writer may go without asserting liveliness
// before its matched readers consider it gone. Distinct from the
// participant-level PMD lease in internal/lease, though both use the same
// lease machinery under the hood.
type Liveliness struct {
	LeaseDuration rtps.Duration
}

// QoS is the full per-endpoint policy bundle. Not every DDS QoS policy is
// modeled; those omitted (TimeBasedFilter, Presentation, UserData, ...) do
// not participate in match compatibility and are out of the core's scope
// per spec.md section 1.
type QoS struct {
	Reliability      Reliability
	Durability       DurabilityKind
	History          History
	ResourceLimits   ResourceLimits
	Ownership        OwnershipKind
	Liveliness       Liveliness
	DeadlinePeriod   rtps.Duration // rtps.NeverDuration = no deadline
	LatencyBudget    rtps.Duration
	DestinationOrder DestinationOrderKind
	Partitions       []string

	// AutodisposeUnregisteredInstances controls whether a writer disposes
	// of its live instances when it unregisters them on delete.
	AutodisposeUnregisteredInstances bool
}

// Default returns the DDS default QoS: best-effort, volatile, keep-last-1,
// shared ownership, no deadline, reception-order, no partitions.
func Default() QoS {
	return QoS{
		Reliability:      Reliability{Kind: BestEffort},
		Durability:       Volatile,
		History:          History{Kind: KeepLast, Depth: 1},
		Ownership:        SharedOwnership,
		Liveliness:       Liveliness{LeaseDuration: rtps.NeverDuration},
		DeadlinePeriod:   rtps.NeverDuration,
		LatencyBudget:    0,
		DestinationOrder: ByReceptionTimestamp,
		AutodisposeUnregisteredInstances: true,
	}
}

// Merge overlays onto defaults every policy of override whose name is set
// in overridden (e.g. "reliability", "history"), the way a writer/reader
// created under a publisher/subscriber inherits the parent's QoS and then
// applies its own overrides. Each named policy, Partitions included, is
// replaced wholesale (DDS QoS policies are not field-mergeable within
// themselves).
func Merge(defaults, override QoS, overridden map[string]bool) QoS {
	result := defaults
	if overridden["reliability"] {
		result.Reliability = override.Reliability
	}
	if overridden["durability"] {
		result.Durability = override.Durability
	}
	if overridden["history"] {
		result.History = override.History
	}
	if overridden["resource_limits"] {
		result.ResourceLimits = override.ResourceLimits
	}
	if overridden["ownership"] {
		result.Ownership = override.Ownership
	}
	if overridden["liveliness"] {
		result.Liveliness = override.Liveliness
	}
	if overridden["deadline"] {
		result.DeadlinePeriod = override.DeadlinePeriod
	}
	if overridden["latency_budget"] {
		result.LatencyBudget = override.LatencyBudget
	}
	if overridden["destination_order"] {
		result.DestinationOrder = override.DestinationOrder
	}
	if overridden["partitions"] {
		result.Partitions = override.Partitions
	}
	if overridden["autodispose"] {
		result.AutodisposeUnregisteredInstances = override.AutodisposeUnregisteredInstances
	}
	return result
}

// Compatible implements spec.md data-model invariant 3(d): pairwise QoS
// compatibility between a writer and a reader, independent of topic/type
// name and partition checks which internal/discovery performs separately
// since they also depend on the topic name string, not just the QoS value.
func Compatible(w, r QoS) (bool, string) {
	if w.Reliability.Kind == BestEffort && r.Reliability.Kind == Reliable {
		return false, "reliability: best-effort writer cannot satisfy reliable reader"
	}
	if w.Durability < r.Durability {
		return false, "durability: writer durability weaker than reader requires"
	}
	if w.Ownership != r.Ownership {
		return false, "ownership: kind mismatch"
	}
	if r.DeadlinePeriod != rtps.NeverDuration {
		if w.DeadlinePeriod == rtps.NeverDuration || w.DeadlinePeriod > r.DeadlinePeriod {
			return false, "deadline: writer period longer than reader requires"
		}
	}
	if w.LatencyBudget > r.LatencyBudget && r.LatencyBudget != 0 {
		return false, "latency_budget: writer budget looser than reader requires"
	}
	if w.DestinationOrder < r.DestinationOrder {
		return false, "destination_order: writer weaker than reader requires"
	}
	if w.Liveliness.LeaseDuration > r.Liveliness.LeaseDuration && r.Liveliness.LeaseDuration != rtps.NeverDuration {
		return false, "liveliness: writer lease duration longer than reader requires"
	}
	return true, ""
}

// PartitionsIntersect implements invariant 3(c): the empty partition set is
// its own partition named "", so two endpoints with no partitions set are
// considered to share the default partition.
func PartitionsIntersect(a, b []string) bool {
	an, bn := a, b
	if len(an) == 0 {
		an = []string{""}
	}
	if len(bn) == 0 {
		bn = []string{""}
	}
	for _, x := range an {
		for _, y := range bn {
			if x == y {
				return true
			}
		}
	}
	return false
}
