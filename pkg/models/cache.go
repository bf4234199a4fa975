package models

// CacheStats reports cache performance metrics.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

// Stats is the client-facing snapshot returned by getStats.
type Stats struct {
	CurrentModel         string `json:"current_model"`
	CacheSize            int    `json:"cache_size"`
	RequestsInLastMinute int    `json:"requests_in_last_minute"`
	RateLimitActive      bool   `json:"rate_limit_active"`
}
