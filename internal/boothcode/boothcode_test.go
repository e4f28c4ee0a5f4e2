package boothcode

import "testing"

func TestGenerateMatchesPattern(t *testing.T) {
	for i := 0; i < 10000; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if !Valid(code) {
			t.Fatalf("invalid code %q", code)
		}
	}
}

func chiSquare(counts map[byte]int, alphabet string, total int) float64 {
	expected := float64(total) / float64(len(alphabet))
	chi := 0.0
	for i := 0; i < len(alphabet); i++ {
		diff := float64(counts[alphabet[i]]) - expected
		chi += diff * diff / expected
	}
	return chi
}

func TestGenerateDistribution(t *testing.T) {
	const samples = 20000
	letterCounts := make(map[byte]int)
	digitCounts := make(map[byte]int)
	for i := 0; i < samples; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		for pos := 0; pos < 4; pos++ {
			letterCounts[code[pos]]++
			digitCounts[code[pos+5]]++
		}
	}

	// Bounds are the chi-square critical values at p = 1e-6.
	if chi := chiSquare(letterCounts, letters, samples*4); chi > 73.9 {
		t.Fatalf("letter distribution looks skewed, chi-square %.2f (df=25)", chi)
	}
	if chi := chiSquare(digitCounts, digits, samples*4); chi > 44.8 {
		t.Fatalf("digit distribution looks skewed, chi-square %.2f (df=9)", chi)
	}
}

func TestNormalizeAndValid(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		valid bool
	}{
		{in: " aztx-7821 ", want: "AZTX-7821", valid: true},
		{in: "AZTX7821", want: "AZTX7821", valid: false},
		{in: "AZT-78210", want: "AZT-78210", valid: false},
		{in: "", want: "", valid: false},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got := Normalize(tc.in)
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
			if Valid(got) != tc.valid {
				t.Fatalf("expected valid=%v for %q", tc.valid, got)
			}
		})
	}
}
