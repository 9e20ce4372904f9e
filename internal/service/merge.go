package service

// Merge de-duplicates items by key. Each key keeps the position of its first occurrence;
// a later duplicate replaces the kept item only when better(later, kept) reports true.
// A nil better keeps the first occurrence.
func Merge[T any, K comparable](items []T, key func(T) K, better func(candidate, current T) bool) []T {
	out := make([]T, 0, len(items))
	idx := make(map[K]int, len(items))
	for _, it := range items {
		k := key(it)
		i, seen := idx[k]
		if !seen {
			idx[k] = len(out)
			out = append(out, it)
			continue
		}
		if better != nil && better(it, out[i]) {
			out[i] = it
		}
	}
	return out
}
