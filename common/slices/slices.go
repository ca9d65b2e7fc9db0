package slices

// Filter 通用过滤函数，接受任何类型的切片和谓词函数
func Filter[T any](slice []T, predicate func(T) bool) []T {
	var result []T
	for _, v := range slice {
		if predicate(v) {
			result = append(result, v)
		}
	}
	return result
}

// Dedup keeps the first occurrence of every element, preserving order.
func Dedup[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	return Filter(slice, func(v T) bool {
		if _, ok := seen[v]; ok {
			return false
		}
		seen[v] = struct{}{}
		return true
	})
}
