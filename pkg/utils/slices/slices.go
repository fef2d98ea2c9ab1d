package slices

import (
	"sort"
)

// map each element in sli.
//
// args:
//   - sli : slice of `T`s
//   - mapper : mapping function from T to R
//
// return:
//
//	slice of `R`s.
//	each element indexed `N` is given with `mapper(sli[N])` .
func Map[T any, R any](sli []T, mapper func(v T) R) []R {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		ret[nth] = mapper(v)
	}
	return ret
}

// Map over sli with mapper.
//
// If mapper causes error, return (nil, error).
//
// Otherwise, return (mapping result, nil).
func MapUntilError[T any, R any](sli []T, mapper func(v T) (R, error)) ([]R, error) {
	ret := make([]R, len(sli))
	for nth, v := range sli {
		r, err := mapper(v)
		if err != nil {
			return nil, err
		}
		ret[nth] = r
	}
	return ret, nil
}

// convert slice-of-values to slice-of-pointers
func RefOf[T any](sli []T) []*T {
	return Map(sli, func(v T) *T { return &v })
}

// convert slice-of-pointers to slice-of-values
func DerefOf[T any](sli []*T) []T {
	return Map(sli, func(v *T) T { return *v })
}

// find the first element in sli satisfying pred.
//
// return:
//
//	the found element (or zero-value) and whether it is found or not.
func First[T any](sli []T, pred func(v T) bool) (T, bool) {
	for _, v := range sli {
		if pred(v) {
			return v, true
		}
	}
	return *new(T), false
}

// collect keys of a map. ordering is unstable.
func KeysOf[K comparable, V any](m map[K]V) []K {
	ret := make([]K, 0, len(m))
	for k := range m {
		ret = append(ret, k)
	}
	return ret
}

// collect values of a map. ordering is unstable.
func ValuesOf[K comparable, V any](m map[K]V) []V {
	ret := make([]V, 0, len(m))
	for _, v := range m {
		ret = append(ret, v)
	}
	return ret
}

// convert slice to map, keyed with keyOf.
//
// When keyOf collides, the last element wins.
func ToMap[T any, K comparable](sli []T, keyOf func(T) K) map[K]T {
	ret := make(map[K]T, len(sli))
	for _, v := range sli {
		ret[keyOf(v)] = v
	}
	return ret
}

// concatenate slices into a new one.
func Concat[T any](slis ...[]T) []T {
	total := 0
	for _, s := range slis {
		total += len(s)
	}
	ret := make([]T, 0, total)
	for _, s := range slis {
		ret = append(ret, s...)
	}
	return ret
}

// return a sorted copy of sli. sli itself is kept unchanged.
func Sorted[T interface {
	~int | ~int64 | ~float64 | ~string
}](sli []T) []T {
	ret := make([]T, len(sli))
	copy(ret, sli)
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// return a copy of sli, stable-sorted with less. sli itself is kept unchanged.
func SortFunc[T any](sli []T, less func(a, b T) bool) []T {
	ret := make([]T, len(sli))
	copy(ret, sli)
	sort.SliceStable(ret, func(i, j int) bool { return less(ret[i], ret[j]) })
	return ret
}

// return a copy of sli without duplicated elements.
//
// The first occurence wins, and ordering is kept.
func Deduped[T comparable](sli []T) []T {
	seen := map[T]struct{}{}
	ret := make([]T, 0, len(sli))
	for _, v := range sli {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		ret = append(ret, v)
	}
	return ret
}
