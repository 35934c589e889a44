package snapshot

// TakeTransparentObserverSnapshot wraps the current snapshot with extra
// observers without allocating a new id. Reads and writes made while the
// wrapper is current behave exactly as in the wrapped snapshot; the wrapper
// only adds observation. The wrapper must be disposed.
//
// If the current snapshot is itself a transparent wrapper created with the
// same owner token, it is reused instead of stacking another wrapper; the
// second return value reports whether a new wrapper was created.
func TakeTransparentObserverSnapshot(owner any, readObserver, writeObserver func(StateObject)) (*Snapshot, bool) {
	cur := world.current
	if cur.transparent && cur.owner == owner {
		return cur, false
	}
	s := &Snapshot{
		id:            cur.id,
		invalid:       cur.invalid,
		readObserver:  readObserver,
		writeObserver: writeObserver,
		parent:        cur,
		readonly:      cur.readonly,
		transparent:   true,
		owner:         owner,
	}
	return s, true
}
