package thesis

import "testing"

func truep(b bool) *bool { return &b }

func TestCalibrateBrierScore(t *testing.T) {
	yes := true
	no := false
	theses := []Thesis{
		{State: StateRealized, ModelProbability: amt("0.9"), OutcomeCorrect: &yes},
		{State: StateRealized, ModelProbability: amt("0.9"), OutcomeCorrect: &no},
		{State: StateDraft, ModelProbability: amt("0.5")}, // ignored: not realized
	}
	cal := Calibrate(theses)
	if cal.SampleSize != 2 {
		t.Fatalf("expected sample size 2, got %d", cal.SampleSize)
	}
	// brier = mean((0.9-1)^2, (0.9-0)^2) = mean(0.01, 0.81) = 0.41
	if !cal.BrierScore.Equal(amt("0.41")) {
		t.Fatalf("expected brier score 0.41, got %s", cal.BrierScore)
	}
}

func TestCalibrateBucketsByProbabilityBand(t *testing.T) {
	yes := true
	theses := []Thesis{
		{State: StateRealized, ModelProbability: amt("0.85"), OutcomeCorrect: &yes},
		{State: StateRealized, ModelProbability: amt("0.25"), OutcomeCorrect: truep(false)},
	}
	cal := Calibrate(theses)
	if cal.Buckets[4].Count != 1 {
		t.Fatalf("expected 1 sample in the 80-100 bucket, got %d", cal.Buckets[4].Count)
	}
	if cal.Buckets[1].Count != 1 {
		t.Fatalf("expected 1 sample in the 20-40 bucket, got %d", cal.Buckets[1].Count)
	}
}
