package models

// Standing is one row of a tournament's tabulation. Derived on demand from
// team aggregates, never persisted.
type Standing struct {
	Rank   int    `json:"rank"`
	TeamID int    `json:"id"`
	Name   string `json:"name"`
	Wins   int    `json:"wins"`
	Losses int    `json:"losses"`
	Points int    `json:"points"`
}
