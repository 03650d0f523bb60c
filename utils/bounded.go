package utils

// AppendBounded appends v and drops the oldest entries so that at most max remain.
// A max of zero or less leaves the list unbounded.
func AppendBounded[T any](list []T, v T, max int) []T {
	list = append(list, v)
	if max > 0 && len(list) > max {
		list = append(list[:0:0], list[len(list)-max:]...)
	}
	return list
}

// PopFront removes the first element, returning it and the remaining list.
func PopFront[T any](list []T) (T, []T, bool) {
	var zero T
	if len(list) == 0 {
		return zero, list, false
	}
	head := list[0]
	return head, append(list[:0:0], list[1:]...), true
}

// Contains reports whether v is present in list.
func Contains[T comparable](list []T, v T) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
