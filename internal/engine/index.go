package engine

// indexEntry locates a resting order. The level pointer is stable for as long
// as the level is in its side book, which outlives every entry pointing at it.
type indexEntry struct {
	level *PriceLevel
	h     handle
}

type orderIndex map[uint64]indexEntry
