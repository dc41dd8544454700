package model

// Level is a named price level (a moving average, a band, ...).
type Level struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// LevelDistance is the distance from the current price to a level.
type LevelDistance struct {
	Percentage float64 `json:"percentage"`
	IsAbove    bool    `json:"isAbove"`
}

// ClosestLevel is the nearest level to a price. All fields are nil when
// there was nothing to compare against.
type ClosestLevel struct {
	Level    *float64       `json:"level"`
	Name     *string        `json:"name"`
	Distance *LevelDistance `json:"distance"`
}

// Found reports whether a level was selected.
func (c ClosestLevel) Found() bool {
	return c.Level != nil
}
