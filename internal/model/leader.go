package model

import "time"

// Leader is one persisted row of a category's leader set. Rank 1 is the
// flight that was announced; ranks 2..N are kept as runners-up.
type Leader struct {
	Category  Category  `json:"category"`
	Rank      int       `json:"rank"`
	Flight    Flight    `json:"flight"`
	CreatedAt time.Time `json:"createdAt"`
}
