package models

type Stats struct {
	TotalSearches int64 `json:"total_searches" db:"total_searches"`
	TotalResults  int64 `json:"total_results" db:"total_results"`
}

type StatsSummary struct {
	Stats
	TotalUsers   int64 `json:"total_users"`
	FreeUsers    int64 `json:"free_users"`
	PremiumUsers int64 `json:"premium_users"`
}
