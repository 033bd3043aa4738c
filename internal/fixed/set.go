package fixed

// Set is a thin wrapper over Map keyed to an empty value, used for the
// allocation-site-free collections HeapPulse accumulates during an
// interval (the fault set, the per-window accessed/read/written sets).
type Set[K Key] struct {
	m *Map[K, struct{}]
}

// NewSet constructs a Set with the given fixed capacity.
func NewSet[K Key](capacity int) *Set[K] {
	return &Set[K]{m: NewMap[K, struct{}](capacity)}
}

// Insert adds key to the set. Returns false if the set is full and key was
// not already a member — same silent-drop contract as Map.Put. The fault
// set is filled this way by faultsig.Drain, outside signal context.
func (s *Set[K]) Insert(key K) bool {
	return s.m.Put(key, struct{}{})
}

// Contains reports membership.
func (s *Set[K]) Contains(key K) bool {
	return s.m.Has(key)
}

// Remove deletes key from the set, if present.
func (s *Set[K]) Remove(key K) {
	s.m.Remove(key)
}

// Len returns the number of members.
func (s *Set[K]) Len() int { return s.m.Len() }

// Full reports whether the set is at capacity.
func (s *Set[K]) Full() bool { return s.m.Full() }

// Each invokes fn for every member.
func (s *Set[K]) Each(fn func(key K)) {
	s.m.Each(func(key K, _ struct{}) { fn(key) })
}

// Clear empties the set without shrinking its backing storage.
func (s *Set[K]) Clear() {
	s.m.Clear()
}

// Items copies members into dst, stopping once dst is full or the set is
// exhausted, and returns the number written, giving a snapshot of the
// members that does not keep a reference to the set.
func (s *Set[K]) Items(dst []K) int {
	n := 0
	s.m.Each(func(key K, _ struct{}) {
		if n < len(dst) {
			dst[n] = key
			n++
		}
	})
	return n
}
