package enrich

// EngagementRate returns (likes+coins+favorites)/max(1,views). The inputs must
// already be normalized; a zero-view video yields the raw interaction sum.
func EngagementRate(likes, coins, favorites, views int64) float64 {
	return float64(likes+coins+favorites) / float64(max(1, views))
}
