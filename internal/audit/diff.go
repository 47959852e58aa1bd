package audit

// Diff compares named fields between two snapshots and returns the before and
// after value of every field that changed. Fields missing from the after
// snapshot are treated as unchanged.
func Diff(before, after map[string]any, fields ...string) map[string]Change {
	diff := make(map[string]Change)

	for _, field := range fields {
		b := before[field]
		a, ok := after[field]
		if !ok {
			continue
		}
		if b != a {
			diff[field] = Change{Before: b, After: a}
		}
	}

	if len(diff) == 0 {
		return nil
	}
	return diff
}
