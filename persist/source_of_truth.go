package persist

// SourceOfTruth selects which persisted artifact is authoritative when
// reconstructing aggregate state, and with it the snapshot behavior of a
// PersistedEventStore.
type SourceOfTruth struct {
	kind         storageKind
	snapshotSize uint64
}

type storageKind int

const (
	kindEventStore storageKind = iota
	kindSnapshot
	kindAggregateStore
)

// EventStoreSource configures a pure event log: events are the sole source
// of truth and no snapshot is ever written.
func EventStoreSource() SourceOfTruth {
	return SourceOfTruth{kind: kindEventStore}
}

// SnapshotSource configures periodic snapshotting: events remain the source
// of truth, and a snapshot is taken as a replay-acceleration cache every
// maxSize events. Panics if maxSize is 0.
func SnapshotSource(maxSize uint64) SourceOfTruth {
	if maxSize == 0 {
		panic("snapshot size must be greater than zero")
	}
	return SourceOfTruth{kind: kindSnapshot, snapshotSize: maxSize}
}

// AggregateStoreSource configures snapshot-only storage: the serialized
// aggregate is the sole source of truth and is rewritten on every commit.
// Events are still persisted, but only for query dispatch and audit.
func AggregateStoreSource() SourceOfTruth {
	return SourceOfTruth{kind: kindAggregateStore}
}

func (s SourceOfTruth) usesSnapshots() bool {
	return s.kind != kindEventStore
}

// commitSnapshotWithAddlEvents computes how many of the newly produced
// events must be folded into an updated snapshot before the commit
// returns. The remaining events are persisted as plain events and folded
// into a snapshot by a later commit once a boundary is crossed.
func (s SourceOfTruth) commitSnapshotWithAddlEvents(currentSequence, numEvents uint64) uint64 {
	switch s.kind {
	case kindEventStore:
		return 0
	case kindAggregateStore:
		return numEvents
	default:
		nextSnapshotAt := s.snapshotSize - (currentSequence % s.snapshotSize)
		if numEvents < nextSnapshotAt {
			return 0
		}
		rest := numEvents - nextSnapshotAt
		return nextSnapshotAt + (rest - (rest % s.snapshotSize))
	}
}
