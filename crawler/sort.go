package crawler

import "sort"

func topN(counts map[string]int, limit int) []DimensionStat {
	out := make([]DimensionStat, 0, len(counts))
	for name, n := range counts {
		out = append(out, DimensionStat{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sortDaily(d []DailyCount) {
	sort.Slice(d, func(i, j int) bool { return d[i].Date < d[j].Date })
}
