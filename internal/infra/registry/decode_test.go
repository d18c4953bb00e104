package registry

import "testing"

func TestDecodeOutputsSingleValueSynthesizesBounds(t *testing.T) {
	d, warning := DecodeOutputs([]float64{5.0}, "")
	if warning != "" {
		t.Fatalf("expected no warning for K=1, got %q", warning)
	}
	if d.Settlement == nil || *d.Settlement != 5.0 {
		t.Fatalf("expected settlement 5.0, got %v", d.Settlement)
	}
	if d.SettlementLower == nil || d.SettlementUpper == nil {
		t.Fatalf("expected synthesized bounds")
	}
	if *d.SettlementLower >= 5.0 || *d.SettlementUpper <= 5.0 {
		t.Fatalf("bounds not straddling point prediction: [%v, %v]", *d.SettlementLower, *d.SettlementUpper)
	}
}

func TestDecodeOutputsV1LowerBoundMirrorsUpper(t *testing.T) {
	d, warning := DecodeOutputs([]float64{5.0, 4.0}, "v1_lower_bound")
	if warning != "" {
		t.Fatalf("expected no warning when output_format_version is explicit, got %q", warning)
	}
	if *d.SettlementLower != 4.0 {
		t.Fatalf("expected lower bound 4.0, got %v", *d.SettlementLower)
	}
	if *d.SettlementUpper != 6.0 {
		t.Fatalf("expected mirrored upper bound 6.0, got %v", *d.SettlementUpper)
	}
}

func TestDecodeOutputsV2ConfidenceUsesSecondValueAsConfidence(t *testing.T) {
	d, warning := DecodeOutputs([]float64{5.0, 0.93}, "v2_confidence")
	if warning != "" {
		t.Fatalf("expected no warning when output_format_version is explicit, got %q", warning)
	}
	if d.Confidence != 0.93 {
		t.Fatalf("expected confidence 0.93, got %v", d.Confidence)
	}
	if d.SettlementLower == nil {
		t.Fatalf("expected synthesized bounds for v2_confidence")
	}
}

func TestDecodeOutputsUnsetVersionDefaultsToLegacyWithWarning(t *testing.T) {
	d, warning := DecodeOutputs([]float64{5.0, 4.0}, "")
	if warning == "" {
		t.Fatalf("expected a warning when output_format_version is unset")
	}
	if d.SettlementLower == nil || *d.SettlementLower != 4.0 {
		t.Fatalf("expected the NULL case to fall back to v1_lower_bound, got lower=%v", d.SettlementLower)
	}
	if d.SettlementUpper == nil || *d.SettlementUpper != 6.0 {
		t.Fatalf("expected mirrored upper bound 6.0, got %v", d.SettlementUpper)
	}
}

func TestDecodeOutputsThreeValuesAreSettlementLowerUpper(t *testing.T) {
	d, _ := DecodeOutputs([]float64{5.0, 4.0, 6.0}, "")
	if *d.Settlement != 5.0 || *d.SettlementLower != 4.0 || *d.SettlementUpper != 6.0 {
		t.Fatalf("unexpected K=3 decode: %+v", d)
	}
}

func TestDecodeOutputsFourValuesConfidenceBeforeBounds(t *testing.T) {
	d, _ := DecodeOutputs([]float64{5.0, 0.9, 4.0, 6.0}, "")
	if d.Settlement == nil || *d.Settlement != 5.0 {
		t.Fatalf("expected settlement 5.0, got %v", d.Settlement)
	}
	if d.Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9 from index 1, got %v", d.Confidence)
	}
	if d.SettlementLower == nil || *d.SettlementLower != 4.0 {
		t.Fatalf("expected lower bound 4.0 from index 2, got %v", d.SettlementLower)
	}
	if d.SettlementUpper == nil || *d.SettlementUpper != 6.0 {
		t.Fatalf("expected upper bound 6.0 from index 3, got %v", d.SettlementUpper)
	}
}

func TestDecodeOutputsUnsupportedShapeDegradesGracefully(t *testing.T) {
	d, _ := DecodeOutputs([]float64{1, 2, 3, 4, 5}, "")
	if !d.DegradedFallback {
		t.Fatalf("expected degraded fallback flag for unsupported output shape")
	}
	if d.Settlement == nil {
		t.Fatalf("expected settlement-only fallback to still populate a prediction")
	}
}

func TestDecodeOutputsEmptyVectorIsFullyDegraded(t *testing.T) {
	d, _ := DecodeOutputs(nil, "")
	if !d.DegradedFallback || d.Settlement != nil {
		t.Fatalf("expected bare degraded result for empty output vector")
	}
}

func TestDecodeOutputsNineValuesCoversAllThreeTargets(t *testing.T) {
	d, _ := DecodeOutputs([]float64{5, 4, 6, 2, 1, 3, 0.1, 0.05, 0.15}, "")
	if d.Settlement == nil || d.Displacement == nil || d.Groundwater == nil {
		t.Fatalf("expected all three target families populated for K=9")
	}
}

func TestDecodeOutputsEightValuesNoGroundwater(t *testing.T) {
	// [settlement, confidence, lower, upper, displacement,
	// displacement_confidence, displacement_lower, displacement_upper]
	raw := []float64{5.0, 0.9, 4.0, 6.0, 2.0, 0.8, 1.0, 3.0}
	d, _ := DecodeOutputs(raw, "")
	if d.Groundwater != nil {
		t.Fatalf("K=8 has no groundwater field, got %v", d.Groundwater)
	}
	if d.Settlement == nil || *d.Settlement != 5.0 {
		t.Fatalf("expected settlement 5.0, got %v", d.Settlement)
	}
	if d.SettlementLower == nil || *d.SettlementLower != 4.0 || d.SettlementUpper == nil || *d.SettlementUpper != 6.0 {
		t.Fatalf("expected settlement bounds [4,6], got [%v,%v]", d.SettlementLower, d.SettlementUpper)
	}
	if d.Displacement == nil || *d.Displacement != 2.0 {
		t.Fatalf("expected displacement 2.0, got %v", d.Displacement)
	}
	if d.DisplacementLower == nil || *d.DisplacementLower != 1.0 || d.DisplacementUpper == nil || *d.DisplacementUpper != 3.0 {
		t.Fatalf("expected displacement bounds [1,3], got [%v,%v]", d.DisplacementLower, d.DisplacementUpper)
	}
	wantConf := (raw[1] + raw[5]) / 2
	if d.Confidence != wantConf {
		t.Fatalf("expected confidence averaged to %v, got %v", wantConf, d.Confidence)
	}
}

func TestDecodeOutputsTwelveValuesInterleavesConfidence(t *testing.T) {
	// indices: settlement 0, conf 1, lower 2, upper 3,
	// displacement 4, conf 5, lower 6, upper 7,
	// groundwater 8, conf 9, lower 10, upper 11.
	raw := []float64{5.0, 0.9, 4.0, 6.0, 2.0, 0.8, 1.0, 3.0, 0.1, 0.7, 0.05, 0.15}
	d, _ := DecodeOutputs(raw, "")
	if d.Settlement == nil || *d.Settlement != 5.0 {
		t.Fatalf("expected settlement 5.0, got %v", d.Settlement)
	}
	if d.Displacement == nil || *d.Displacement != 2.0 {
		t.Fatalf("expected displacement 2.0, got %v", d.Displacement)
	}
	if d.Groundwater == nil || *d.Groundwater != 0.1 {
		t.Fatalf("expected groundwater 0.1, got %v", d.Groundwater)
	}
	if d.GroundwaterLower == nil || *d.GroundwaterLower != 0.05 || d.GroundwaterUpper == nil || *d.GroundwaterUpper != 0.15 {
		t.Fatalf("expected groundwater bounds [0.05,0.15], got [%v,%v]", d.GroundwaterLower, d.GroundwaterUpper)
	}
	wantConf := (raw[1] + raw[5] + raw[9]) / 3
	if d.Confidence != wantConf {
		t.Fatalf("expected averaged confidence %v, got %v", wantConf, d.Confidence)
	}
}
