package eval

// #region breakdown
// Breakdown is the multi-dimensional score for one candidate solution.
// Code solutions populate Correctness/Quality/Completeness; prose answers
// populate Grounding/Clarity/Completeness. Every dimension and Total lie
// in [0, 1]; Total is a fixed linear combination of the dimensions plus a
// small iteration bonus.
type Breakdown struct {
	IsCode       bool
	Correctness  float64
	Quality      float64
	Grounding    float64
	Clarity      float64
	Completeness float64
	Total        float64
}

// #endregion breakdown
