package content

// Move 将 ids[from] 移动到下标 to，并返回整个列表连续编号后的排序结果。
// 越界下标会被截断到合法范围。
func Move(ids []string, from, to int) []OrderUpdate {
	n := len(ids)
	if n == 0 {
		return []OrderUpdate{}
	}
	from = clamp(from, 0, n-1)
	to = clamp(to, 0, n-1)

	moved := make([]string, 0, n)
	moved = append(moved, ids[:from]...)
	moved = append(moved, ids[from+1:]...)

	result := make([]string, 0, n)
	result = append(result, moved[:to]...)
	result = append(result, ids[from])
	result = append(result, moved[to:]...)

	updates := make([]OrderUpdate, n)
	for i, id := range result {
		updates[i] = OrderUpdate{ID: id, Order: i}
	}
	return updates
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
