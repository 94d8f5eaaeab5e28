package scenes

// Petal is one falling petal decoration. Positions come from a linear
// formula over the index so every render of the page agrees.
type Petal struct {
	Left     float64 `json:"left"`     // percent of viewport width
	Delay    float64 `json:"delay"`    // seconds
	Duration float64 `json:"duration"` // seconds
	Scale    float64 `json:"scale"`
}

func Petals(n int) []Petal {
	out := make([]Petal, n)
	for i := range out {
		out[i] = Petal{
			Left:     float64((i*37)%100) + 0.5,
			Delay:    float64((i*7)%50) / 10,
			Duration: 6 + float64((i*13)%40)/10,
			Scale:    0.6 + float64((i*11)%5)/10,
		}
	}
	return out
}
