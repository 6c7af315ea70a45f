package textutil

import (
	"math"
	"reflect"
	"testing"
)

func TestTokens(t *testing.T) {
	got := Tokens("Solar-powered grids, 2024 edition!")
	want := []string{"solar", "powered", "grids", "2024", "edition"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tokens = %v, want %v", got, want)
	}
}

func TestJaccard(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "solar panel", "solar panel", 1.0},
		{"disjoint", "solar panel", "wind turbine", 0.0},
		{"half overlap", "solar panel", "solar turbine panel wind", 0.5},
		{"empty side", "", "solar", 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Jaccard(tt.a, tt.b); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("jaccard(%q, %q) = %f, want %f", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestCoverage(t *testing.T) {
	// 3 of 4 sentence tokens appear in the evidence.
	got := Coverage("solar output doubled overnight", "reports say solar output doubled in May")
	if math.Abs(got-0.75) > 1e-12 {
		t.Errorf("coverage = %f, want 0.75", got)
	}

	if Coverage("", "anything") != 0 {
		t.Error("coverage of empty text must be 0")
	}
}
