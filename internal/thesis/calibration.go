package thesis

import "github.com/shopspring/decimal"

// Bucket is one probability band's calibration statistics.
type Bucket struct {
	Low, High    decimal.Decimal
	Count        int
	Correct      int
	MeanPredicted decimal.Decimal
}

// Accuracy returns Correct/Count, or zero if Count is zero.
func (b Bucket) Accuracy() decimal.Decimal {
	if b.Count == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(b.Correct)).Div(decimal.NewFromInt(int64(b.Count)))
}

var bucketBounds = [][2]float64{
	{0, 20}, {20, 40}, {40, 60}, {60, 80}, {80, 100},
}

// Calibration buckets REALIZED theses into five probability bands and
// reports a Brier score across all of them.
type Calibration struct {
	Buckets    []Bucket
	BrierScore decimal.Decimal
	SampleSize int
}

// Calibrate computes bucket accuracy/mean-predicted-probability and the
// overall Brier score over a set of REALIZED theses.
func Calibrate(theses []Thesis) Calibration {
	buckets := make([]Bucket, len(bucketBounds))
	for i, b := range bucketBounds {
		buckets[i] = Bucket{Low: decimal.NewFromFloat(b[0] / 100), High: decimal.NewFromFloat(b[1] / 100)}
	}

	sumSq := decimal.Zero
	n := 0
	sumPredicted := make([]decimal.Decimal, len(buckets))

	for _, th := range theses {
		if th.State != StateRealized || th.OutcomeCorrect == nil {
			continue
		}
		p := th.ModelProbability
		outcome := decimal.Zero
		if *th.OutcomeCorrect {
			outcome = decimal.NewFromInt(1)
		}
		diff := p.Sub(outcome)
		sumSq = sumSq.Add(diff.Mul(diff))
		n++

		idx := bucketIndex(p)
		buckets[idx].Count++
		sumPredicted[idx] = sumPredicted[idx].Add(p)
		if *th.OutcomeCorrect {
			buckets[idx].Correct++
		}
	}

	for i := range buckets {
		if buckets[i].Count > 0 {
			buckets[i].MeanPredicted = sumPredicted[i].Div(decimal.NewFromInt(int64(buckets[i].Count)))
		}
	}

	brier := decimal.Zero
	if n > 0 {
		brier = sumSq.Div(decimal.NewFromInt(int64(n)))
	}

	return Calibration{Buckets: buckets, BrierScore: brier, SampleSize: n}
}

func bucketIndex(p decimal.Decimal) int {
	pct := p.Mul(decimal.NewFromInt(100))
	for i, b := range bucketBounds {
		if pct.GreaterThanOrEqual(decimal.NewFromFloat(b[0])) && pct.LessThan(decimal.NewFromFloat(b[1])) {
			return i
		}
	}
	return len(bucketBounds) - 1 // p = 1.0 matches no [low, high) band and lands in the top 80-100 band
}
