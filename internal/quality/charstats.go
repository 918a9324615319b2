package quality

// CharStats summarizes per-character recognition confidences.
type CharStats struct {
	NumChars   int     `json:"num_chars"`
	Min        float64 `json:"min"`
	Mean       float64 `json:"mean"`
	RatioAbove float64 `json:"ratio_above"`
}

// ComputeCharStats returns count, minimum, mean and the fraction of values at
// or above minConf. An empty slice yields zero stats.
func ComputeCharStats(confs []float64, minConf float64) CharStats {
	if len(confs) == 0 {
		return CharStats{}
	}
	stats := CharStats{NumChars: len(confs), Min: confs[0]}
	var sum float64
	above := 0
	for _, c := range confs {
		sum += c
		if c < stats.Min {
			stats.Min = c
		}
		if c >= minConf {
			above++
		}
	}
	stats.Mean = sum / float64(len(confs))
	stats.RatioAbove = float64(above) / float64(len(confs))
	return stats
}
