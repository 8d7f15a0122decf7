package history

import "townsim/internal/app/ports"

type Request struct {
	TownID       string
	Limit        int
	OccurredFrom int64
	OccurredTo   int64
}

// Summary is the town state carried by the newest events that report it.
type Summary struct {
	TownID        string `json:"town_id"`
	Population    int    `json:"population"`
	TouristCount  int    `json:"tourist_count"`
	TotalVisitors int64  `json:"total_visitors"`
}

type Response struct {
	Events []ports.Event `json:"events"`
	Latest Summary       `json:"latest"`
}
