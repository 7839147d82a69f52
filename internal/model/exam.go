package model

// Exam carries the exam metadata the session engine reads.
type Exam struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Subject         string `json:"subject"`
	DurationMinutes int    `json:"duration_minutes"`
}
