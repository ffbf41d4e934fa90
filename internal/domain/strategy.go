package domain

import (
	"encoding/json"
	"time"
)

// Strategy is a community-published behaviour configuration
type Strategy struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Author    string          `json:"author"`
	Config    json.RawMessage `json:"config"`
	Downloads int             `json:"downloads"`
	Ratings   []int           `json:"ratings"`
	CreatedAt time.Time       `json:"created_at"`
}

// AverageRating is the mean of all ratings, or 0 when unrated
func (s *Strategy) AverageRating() float64 {
	if len(s.Ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range s.Ratings {
		sum += r
	}
	return float64(sum) / float64(len(s.Ratings))
}

// StrategySummary is the listing view of a strategy
type StrategySummary struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Author    string  `json:"author"`
	Downloads int     `json:"downloads"`
	Rating    float64 `json:"rating"`
}

// Summary returns the listing view
func (s *Strategy) Summary() StrategySummary {
	return StrategySummary{
		ID:        s.ID,
		Name:      s.Name,
		Author:    s.Author,
		Downloads: s.Downloads,
		Rating:    s.AverageRating(),
	}
}
