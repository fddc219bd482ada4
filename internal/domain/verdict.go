package domain

// Verdict is the per-turn scam-likelihood judgment.
type Verdict struct {
	IsScam     bool     `json:"is_scam"`
	Score      float64  `json:"score"` // [0,1]
	Categories []string `json:"categories,omitempty"`
}

// HasCategory reports whether the verdict includes the given category.
func (v Verdict) HasCategory(name string) bool {
	for _, c := range v.Categories {
		if c == name {
			return true
		}
	}
	return false
}
