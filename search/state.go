package search

// IndexState describes the cached similarity index relative to the store.
type IndexState int

const (
	// IndexAbsent means no index has been built yet.
	IndexAbsent IndexState = iota
	// IndexBuilt means the index reflects the store's current contents.
	IndexBuilt
	// IndexStale means the store changed after the index was built.
	IndexStale
)

func (s IndexState) String() string {
	switch s {
	case IndexAbsent:
		return "absent"
	case IndexBuilt:
		return "built"
	case IndexStale:
		return "stale"
	default:
		return "unknown"
	}
}
