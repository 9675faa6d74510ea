package rng

import "testing"

func TestDeriveDeterministic(t *testing.T) {
	a := Derive(42, StreamDemography, 7)
	b := Derive(42, StreamDemography, 7)
	for i := 0; i < 100; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("identical (seed, stream, tick) diverged at draw %d", i)
		}
	}
}

func TestDeriveDistinctStreams(t *testing.T) {
	a := Derive(42, StreamDemography, 7)
	b := Derive(42, StreamMigration, 7)
	c := Derive(42, StreamDemography, 8)
	same := 0
	for i := 0; i < 100; i++ {
		av := a.Float64()
		if av == b.Float64() {
			same++
		}
		if av == c.Float64() {
			same++
		}
	}
	if same > 2 {
		t.Fatalf("streams look correlated: %d collisions", same)
	}
}

func TestBinomialBounds(t *testing.T) {
	cases := []struct {
		n int
		p float64
	}{
		{0, 0.5}, {10, 0}, {10, 1}, {50, 0.3}, {1000, 0.001}, {5000, 0.4},
	}
	r := Derive(1, StreamInit, 0)
	for _, tc := range cases {
		for i := 0; i < 200; i++ {
			k := Binomial(r, tc.n, tc.p)
			if k < 0 || k > tc.n {
				t.Fatalf("Binomial(%d, %v) = %d out of range", tc.n, tc.p, k)
			}
		}
	}
}

func TestBinomialMean(t *testing.T) {
	r := Derive(99, StreamInit, 0)
	const n, p, trials = 2000, 0.01, 3000
	sum := 0
	for i := 0; i < trials; i++ {
		sum += Binomial(r, n, p)
	}
	mean := float64(sum) / trials
	want := float64(n) * p
	if mean < want*0.9 || mean > want*1.1 {
		t.Fatalf("binomial mean %.2f far from expected %.2f", mean, want)
	}
}

func TestSampleWithoutReplacement(t *testing.T) {
	r := Derive(3, StreamInit, 0)
	dst := make([]int, 10)
	got := SampleWithoutReplacement(r, 20, 10, dst)
	if got != 10 {
		t.Fatalf("expected 10 draws, got %d", got)
	}
	seen := map[int]bool{}
	for _, v := range dst {
		if v < 0 || v >= 20 {
			t.Fatalf("index %d out of range", v)
		}
		if seen[v] {
			t.Fatalf("duplicate index %d", v)
		}
		seen[v] = true
	}

	// k > n clamps.
	if got := SampleWithoutReplacement(r, 3, 10, dst); got != 3 {
		t.Fatalf("expected clamp to 3, got %d", got)
	}
}
