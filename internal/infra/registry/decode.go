package registry

import "math"

// DecodedOutputs is the typed view of a session's raw output vector,
// independent of how many values the underlying model actually produced.
type DecodedOutputs struct {
	Settlement        *float64
	SettlementLower   *float64
	SettlementUpper   *float64
	Displacement      *float64
	DisplacementLower *float64
	DisplacementUpper *float64
	Groundwater       *float64
	GroundwaterLower  *float64
	GroundwaterUpper  *float64
	Confidence        float64
	DegradedFallback  bool // true when the output shape was unsupported
}

const defaultConfidence = 0.85

// boundMargin is the fraction used to synthesize a missing confidence bound
// around a point prediction: predicted ± 0.20*|predicted|.
const boundMargin = 0.20

func synthesizeBounds(predicted float64) (lower, upper float64) {
	margin := boundMargin * math.Abs(predicted)
	return predicted - margin, predicted + margin
}

// DecodeOutputs maps a raw K-output vector to typed prediction fields. The
// shape disambiguation for K=2 follows outputFormatVersion exactly as the
// model's own deployment record declares it; an unset outputFormatVersion
// defaults to the legacy v1_lower_bound interpretation, with warning set so
// the caller can log it, since a model deployed before output versioning
// existed must still decode the way it always did. Unsupported shapes fall
// back to settlement-only with a degraded-quality flag, per the inference
// error handling policy (unsupported output shapes never abort a
// prediction).
func DecodeOutputs(raw []float64, outputFormatVersion string) (DecodedOutputs, string) {
	var d DecodedOutputs
	var warning string
	d.Confidence = defaultConfidence

	switch len(raw) {
	case 1:
		s := raw[0]
		d.Settlement = &s
		lo, hi := synthesizeBounds(s)
		d.SettlementLower, d.SettlementUpper = &lo, &hi

	case 2:
		s := raw[0]
		d.Settlement = &s
		format := outputFormatVersion
		if format == "" {
			format = "v1_lower_bound"
			warning = "model has no output_format_version; defaulting to legacy v1_lower_bound interpretation"
		}
		if format == "v1_lower_bound" {
			lower := raw[1]
			upper := s + (s - lower)
			d.SettlementLower, d.SettlementUpper = &lower, &upper
		} else { // v2_confidence
			conf := raw[1]
			d.Confidence = conf
			lo, hi := synthesizeBounds(s)
			d.SettlementLower, d.SettlementUpper = &lo, &hi
		}

	case 3:
		s, lo, hi := raw[0], raw[1], raw[2]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &lo, &hi

	case 4:
		// [settlement, confidence, lower, upper]
		s, conf, lo, hi := raw[0], raw[1], raw[2], raw[3]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &lo, &hi
		d.Confidence = conf

	case 6:
		s, sLo, sHi := raw[0], raw[1], raw[2]
		disp, dLo, dHi := raw[3], raw[4], raw[5]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &sLo, &sHi
		d.Displacement, d.DisplacementLower, d.DisplacementUpper = &disp, &dLo, &dHi

	case 8:
		// [settlement, confidence, lower, upper, displacement,
		// displacement_confidence, displacement_lower, displacement_upper]
		// — no groundwater field at this width.
		s, sConf, sLo, sHi := raw[0], raw[1], raw[2], raw[3]
		disp, dConf, dLo, dHi := raw[4], raw[5], raw[6], raw[7]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &sLo, &sHi
		d.Displacement, d.DisplacementLower, d.DisplacementUpper = &disp, &dLo, &dHi
		// a single scalar Confidence field can't carry two independent
		// per-target confidences; settlement's and displacement's are
		// averaged with equal weight rather than one being silently dropped.
		d.Confidence = (sConf + dConf) / 2

	case 9:
		s, sLo, sHi := raw[0], raw[1], raw[2]
		disp, dLo, dHi := raw[3], raw[4], raw[5]
		gw, gwLo, gwHi := raw[6], raw[7], raw[8]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &sLo, &sHi
		d.Displacement, d.DisplacementLower, d.DisplacementUpper = &disp, &dLo, &dHi
		d.Groundwater, d.GroundwaterLower, d.GroundwaterUpper = &gw, &gwLo, &gwHi

	case 12:
		// confidence interleaved after each target: indices 1, 5, 9.
		s, sConf, sLo, sHi := raw[0], raw[1], raw[2], raw[3]
		disp, dConf, dLo, dHi := raw[4], raw[5], raw[6], raw[7]
		gw, gwConf, gwLo, gwHi := raw[8], raw[9], raw[10], raw[11]
		d.Settlement, d.SettlementLower, d.SettlementUpper = &s, &sLo, &sHi
		d.Displacement, d.DisplacementLower, d.DisplacementUpper = &disp, &dLo, &dHi
		d.Groundwater, d.GroundwaterLower, d.GroundwaterUpper = &gw, &gwLo, &gwHi
		d.Confidence = (sConf + dConf + gwConf) / 3

	default:
		if len(raw) == 0 {
			d.DegradedFallback = true
			return d, warning
		}
		s := raw[0]
		d.Settlement = &s
		lo, hi := synthesizeBounds(s)
		d.SettlementLower, d.SettlementUpper = &lo, &hi
		d.DegradedFallback = true
	}

	return d, warning
}
