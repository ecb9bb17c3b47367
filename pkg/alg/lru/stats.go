package lru

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Entries    int
	MaxEntries int
}

// HitRate returns hits / lookups, or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}

	return float64(s.Hits) / float64(total)
}

// Stats returns the current counters.
func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
		Evictions:  c.evictions.Load(),
		Entries:    len(c.entries),
		MaxEntries: c.maxEntries,
	}
}
