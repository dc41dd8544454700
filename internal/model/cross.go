package model

// CrossType distinguishes golden (short rises above long) from death crosses.
type CrossType string

const (
	CrossGolden CrossType = "golden"
	CrossDeath  CrossType = "death"
)

// Opposite returns the other cross type.
func (t CrossType) Opposite() CrossType {
	if t == CrossGolden {
		return CrossDeath
	}
	return CrossGolden
}

// Title is the capitalised name used in messages ("Golden", "Death").
func (t CrossType) Title() string {
	if t == CrossGolden {
		return "Golden"
	}
	return "Death"
}

// CrossEvent is a detected crossover between a short and a long moving average.
type CrossEvent struct {
	Time       int64     `json:"time"`
	Type       CrossType `json:"type"`
	ShortValue float64   `json:"shortValue"`
	LongValue  float64   `json:"longValue"`
}

// CrossEstimate is a linear extrapolation of the next crossover.
type CrossEstimate struct {
	EstimatedTime int64     `json:"estimatedTime"`
	Type          CrossType `json:"type"`
	DaysUntil     float64   `json:"daysUntil"`
}

// CrossResult summarises the crossover history of two series.
type CrossResult struct {
	LastGoldenCross   *CrossEvent    `json:"lastGoldenCross"`
	LastDeathCross    *CrossEvent    `json:"lastDeathCross"`
	NextCrossEstimate *CrossEstimate `json:"nextCrossEstimate"`
	AllCrosses        []CrossEvent   `json:"allCrosses"`
}
