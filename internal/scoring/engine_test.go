package scoring

import (
	"math"
	"testing"

	"influencehub/internal/model"
)

func TestComposite_WeightedSum(t *testing.T) {
	w := Weights{CPM: 0.2, RPM: 0.1, ViewsSubs: 0.2, Values: 0.2, Cultural: 0.3}
	s := model.SubScores{CPM: 80, RPM: 60, ViewsSubs: 90, Values: 50, Cultural: 70}

	got := Composite(s, w)
	if got != 71.0 {
		t.Fatalf("expected composite 71.0, got %v", got)
	}
}

func TestComposite_Bounds(t *testing.T) {
	w := DefaultWeights()

	if got := Composite(model.SubScores{}, w); got != 0 {
		t.Errorf("all-zero scores should give 0, got %v", got)
	}

	full := model.SubScores{CPM: 100, RPM: 100, ViewsSubs: 100, Values: 100, Cultural: 100}
	if got := Composite(full, w); got != 100 {
		t.Errorf("all-100 scores should give 100, got %v", got)
	}
}

func TestComposite_Deterministic(t *testing.T) {
	w := DefaultWeights()
	s := model.SubScores{CPM: 33.3, RPM: 21.7, ViewsSubs: 85.5, Values: 64.2, Cultural: 48.9}

	first := Composite(s, w)
	for i := 0; i < 100; i++ {
		if got := Composite(s, w); got != first {
			t.Fatalf("composite not deterministic: %v vs %v", got, first)
		}
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights should validate: %v", err)
	}

	bad := Weights{CPM: 0.5, RPM: 0.5, ViewsSubs: 0.5, Values: 0, Cultural: 0}
	if err := bad.Validate(); err == nil {
		t.Fatal("weights summing to 1.5 should fail validation")
	}

	negative := Weights{CPM: -0.2, RPM: 0.4, ViewsSubs: 0.2, Values: 0.3, Cultural: 0.3}
	if err := negative.Validate(); err == nil {
		t.Fatal("negative weight should fail validation")
	}

	// 浮点误差在容差内应通过
	almost := Weights{CPM: 0.1, RPM: 0.2, ViewsSubs: 0.3, Values: 0.2, Cultural: 0.2}
	if err := almost.Validate(); err != nil {
		t.Fatalf("weights summing to 1.0 should validate: %v", err)
	}
}

func TestScoreCPM_LowerIsBetter(t *testing.T) {
	if got := ScoreCPM(2.0); got != 100 {
		t.Errorf("cpm $2 should score 100, got %v", got)
	}
	if got := ScoreCPM(40.0); got != 0 {
		t.Errorf("cpm $40 should score 0, got %v", got)
	}
	if ScoreCPM(5.0) <= ScoreCPM(15.0) {
		t.Error("cheaper CPM should score higher")
	}
	if got := ScoreCPM(100.0); got != 0 {
		t.Errorf("score should clamp at 0, got %v", got)
	}
}

func TestScoreViewsSubs(t *testing.T) {
	if got := ScoreViewsSubs(50000, 100000); got != 100 {
		t.Errorf("ratio 0.5 should hit the ceiling, got %v", got)
	}
	if got := ScoreViewsSubs(10000, 100000); got != 20 {
		t.Errorf("ratio 0.1 should give 20, got %v", got)
	}
	if got := ScoreViewsSubs(0, 100000); got != 0 {
		t.Errorf("no views should give 0, got %v", got)
	}
	if got := ScoreViewsSubs(10000, 0); got != 0 {
		t.Errorf("no subscribers should give 0, got %v", got)
	}
}

func TestEstimateCPM_KnownScenario(t *testing.T) {
	sig := Signals{
		Niche:          "fitness",
		Country:        "US",
		Language:       "en",
		AvgRecentViews: 25000,
		EngagementRate: 0.045,
		Subscribers:    120000,
		Month:          11,
	}

	cpm := EstimateCPM(sig)
	if cpm.Min <= 0 || cpm.Max <= cpm.Min {
		t.Fatalf("expected positive range, got %+v", cpm)
	}

	rpm := EstimateRPM(sig)
	if rpm.Min >= cpm.Min || rpm.Max >= cpm.Max {
		t.Fatalf("rpm should be below cpm: cpm=%+v rpm=%+v", cpm, rpm)
	}

	// 同等条件下印度受众的 CPM 应明显低于美国
	sig.Country = "IN"
	inCPM := EstimateCPM(sig)
	if inCPM.Mid() >= cpm.Mid() {
		t.Errorf("IN cpm %v should be below US cpm %v", inCPM.Mid(), cpm.Mid())
	}
}

func TestEstimateCPM_UnknownRegionConservative(t *testing.T) {
	base := Signals{Niche: "tech", Country: "US"}
	unknown := Signals{Niche: "tech"}

	if EstimateCPM(unknown).Mid() >= EstimateCPM(base).Mid() {
		t.Error("unknown region should be discounted against US")
	}
}

func TestInferNiche(t *testing.T) {
	if got := InferNiche("Daily GAMING highlights and esports news", "tech"); got != "gaming" {
		t.Errorf("expected gaming, got %q", got)
	}
	if got := InferNiche("random vlogs", "beauty"); got != "beauty" {
		t.Errorf("expected fallback beauty, got %q", got)
	}
	if got := InferNiche("random vlogs", ""); got != "default" {
		t.Errorf("expected default, got %q", got)
	}
}

func TestInferNiche_MultiMatchIsStable(t *testing.T) {
	// "esports" 同时命中 gaming 和 sports，结果必须固定
	text := "Daily GAMING highlights and esports news"
	first := InferNiche(text, "")
	if first != "gaming" {
		t.Fatalf("expected gaming, got %q", first)
	}
	for i := 0; i < 200; i++ {
		if got := InferNiche(text, ""); got != first {
			t.Fatalf("iteration %d: expected %q, got %q", i, first, got)
		}
	}
	base := pickBaseline("gaming esports channel")
	for i := 0; i < 200; i++ {
		if got := pickBaseline("gaming esports channel"); got != base {
			t.Fatalf("iteration %d: baseline changed from %v to %v", i, base, got)
		}
	}
}

func TestSuggestPricing(t *testing.T) {
	cpm := Range{Min: 6, Max: 15}
	rpm := Range{Min: 3.3, Max: 9.75}

	p := SuggestPricing(cpm, rpm, 25000, 120000, 0.045)
	if p.Min < minPartnershipUSD {
		t.Fatalf("pricing floor violated: %+v", p)
	}
	if p.Max <= p.Min {
		t.Fatalf("expected max > min, got %+v", p)
	}

	// 更大的频道应有更高的报价
	bigger := SuggestPricing(cpm, rpm, 25000, 2000000, 0.045)
	if bigger.Mid() <= p.Mid() {
		t.Errorf("bigger channel should price higher: %v vs %v", bigger.Mid(), p.Mid())
	}

	if got := SuggestPricing(cpm, rpm, 0, 120000, 0.045); got.Min != 0 || got.Max != 0 {
		t.Errorf("no views should give zero pricing, got %+v", got)
	}
}

func TestSuggestPricing_FloorAppliesToTinyChannels(t *testing.T) {
	p := SuggestPricing(Range{Min: 2, Max: 4}, Range{Min: 1, Max: 2}, 500, 800, 0.01)
	if p.Min != minPartnershipUSD {
		t.Fatalf("expected $%v floor, got %+v", minPartnershipUSD, p)
	}
	if math.Abs(p.Max-p.Min*1.2) > 0.01 {
		t.Fatalf("expected max = 1.2x floor, got %+v", p)
	}
}

func TestExpectedProfit(t *testing.T) {
	cpm := Range{Min: 6, Max: 15}
	rpm := Range{Min: 3.3, Max: 9.75}
	pricing := Range{Min: 200, Max: 400}

	p := ExpectedProfit(20, cpm, rpm, 25000, 120000, 0.045, pricing)
	if p.Min < 0 {
		t.Fatalf("profit must not be negative, got %+v", p)
	}
	if p.Max < p.Min {
		t.Fatalf("expected max >= min, got %+v", p)
	}

	if got := ExpectedProfit(0, cpm, rpm, 25000, 120000, 0.045, pricing); got.Max != 0 {
		t.Errorf("zero unit profit should give zero, got %+v", got)
	}
	if got := ExpectedProfit(20, cpm, rpm, 0, 120000, 0.045, pricing); got.Max != 0 {
		t.Errorf("zero views should give zero, got %+v", got)
	}
}
