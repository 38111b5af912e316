package crypto

import (
	"testing"

	"github.com/davidahmann/partnergate/pkg/types"
)

func benchValidationResult() types.ValidationResult {
	found := make([]types.Contradiction, 0, 8)
	for i := 0; i < 8; i++ {
		found = append(found, types.Contradiction{
			IndicatorCode:  "fx_rate",
			Period:         "2024-01-01",
			ExistingValue:  530.25 + float64(i),
			SubmittedValue: 612.5 - float64(i)/3,
			ExistingSource: "cby",
			RecordIndex:    i,
			Resolution:     types.ResolutionPending,
		})
	}
	return types.ValidationResult{
		Contradiction: types.ContradictionResult{Contradictions: found},
	}
}

func BenchmarkCanonicalizeValidationResult(b *testing.B) {
	input := benchValidationResult()

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := CanonicalizeJSON(input); err != nil {
			b.Fatalf("canonicalize: %v", err)
		}
	}
}

func BenchmarkCanonicalizeFloatRecords(b *testing.B) {
	records := make([]any, 0, 64)
	for i := 0; i < 64; i++ {
		records = append(records, map[string]any{
			"date":           "2024-02-01",
			"indicator_code": "price_wheat",
			"value":          1234.5678 + float64(i)*0.125,
		})
	}
	input := map[string]any{"records": records}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Canonicalize(input); err != nil {
			b.Fatalf("canonicalize: %v", err)
		}
	}
}
