package ring

import (
	"sort"

	"golang.org/x/exp/constraints"
)

// QueueUtilization is one queue's occupancy snapshot, as returned by
// PerCPU.Utilization.
type QueueUtilization struct {
	Index int
	Len   int
	Cap   int
}

// Utilization returns a snapshot of every queue's occupancy, sorted by
// descending length, so a caller diagnosing an imbalanced per-CPU egress
// backlog sees the hottest queue first.
func (p *PerCPU[T]) Utilization() []QueueUtilization {
	out := make([]QueueUtilization, len(p.queues))
	for i, q := range p.queues {
		out[i] = QueueUtilization{Index: i, Len: q.Len(), Cap: q.Cap()}
	}
	return sortDescending(out, func(u QueueUtilization) int { return u.Len })
}

// sortDescending sorts a copy of vals by key(vals[i]) descending, breaking
// ties by original index to keep the result deterministic.
func sortDescending[T any, K constraints.Ordered](vals []T, key func(T) K) []T {
	out := make([]T, len(vals))
	copy(out, vals)
	sort.SliceStable(out, func(i, j int) bool { return key(out[i]) > key(out[j]) })
	return out
}
