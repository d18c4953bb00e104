package registry

import (
	"log/slog"
	"math"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/features"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// historyWindow bounds how many prior rings the Feature Engineer sees for
// its windowed statistics.
const historyWindow = 10

// ZoneClassifier supplies the geological zone for a ring, when known. The
// Aligner does not classify soil; this is a narrow seam the daemon wires to
// whatever zone source is configured (manual override, a ring-to-zone
// lookup table, or absent entirely).
type ZoneClassifier interface {
	ZoneForRing(ringNumber int64) (features.SoilType, bool)
}

// InferenceService runs the predict-for-ring pipeline: load context, build
// features, pick a model, run it, decode, persist.
type InferenceService struct {
	db       *sqlite.DB
	manager  *Manager
	loader   *Loader
	engineer *features.Engineer
	zones    ZoneClassifier
	logger   *slog.Logger
}

// NewInferenceService wires the pieces the predict path depends on. zones
// may be nil, in which case every ring falls back to the engineer's
// configured fallback soil type.
func NewInferenceService(db *sqlite.DB, manager *Manager, loader *Loader, engineer *features.Engineer, zones ZoneClassifier, logger *slog.Logger) *InferenceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceService{db: db, manager: manager, loader: loader, engineer: engineer, zones: zones, logger: logger}
}

// PredictForRing runs the full seven-step pipeline: load ring and history,
// engineer features, select a model (modelOverride wins when non-empty,
// otherwise the zone's active model), assemble the tensor, run inference,
// decode, and persist. The caller is responsible for loading the selected
// model into the Loader beforehand (the daemon does this at startup and on
// every Activate).
func (s *InferenceService) PredictForRing(ringNumber int64, modelOverride string) (*domain.PredictionRecord, error) {
	ring, err := s.db.GetRing(ringNumber)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load ring", err)
	}
	if ring == nil {
		return nil, domain.ErrRingNotFound.WithDetail("ring_number", ringNumber)
	}

	history, err := s.db.RecentRings(ringNumber, historyWindow)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load ring history", err)
	}

	soil, ok := features.SoilType(""), false
	if s.zones != nil {
		soil, ok = s.zones.ZoneForRing(ringNumber)
	}
	fv := s.engineer.Engineer(*ring, history, soil, ok)

	meta, err := s.selectModel(modelOverride, string(soil))
	if err != nil {
		return nil, err
	}

	tensor := make([]float64, len(fv.Values))
	for i, v := range fv.Values {
		if math.IsNaN(v) {
			tensor[i] = 0.0
			continue
		}
		tensor[i] = v
	}

	raw, elapsed, err := s.loader.Predict(meta.ModelName, meta.ModelVersion, tensor)
	if err != nil {
		return nil, err
	}

	decoded, warning := DecodeOutputs(raw, meta.OutputFormatVersion)
	if warning != "" {
		s.logger.Warn(warning, "model", meta.ModelName, "version", meta.ModelVersion, "ring_number", ringNumber)
	}
	// The quality flag is the Feature Engineer's own judgment (geological
	// fallback, cold start), not reinvented here from an output-shape
	// observation; an unsupported output shape alone doesn't change what
	// the inputs were.
	quality := fv.QualityFlag

	pred := domain.PredictionRecord{
		RingNumber:                 ringNumber,
		Timestamp:                  time.Now().UTC(),
		ModelName:                  meta.ModelName,
		ModelVersion:               meta.ModelVersion,
		ModelType:                  meta.ModelType,
		GeologicalZone:             meta.GeologicalZone,
		PredictedSettlement:        decoded.Settlement,
		SettlementLowerBound:       decoded.SettlementLower,
		SettlementUpperBound:       decoded.SettlementUpper,
		PredictedDisplacement:      decoded.Displacement,
		DisplacementLowerBound:     decoded.DisplacementLower,
		DisplacementUpperBound:     decoded.DisplacementUpper,
		PredictedGroundwaterChange: decoded.Groundwater,
		GroundwaterLowerBound:      decoded.GroundwaterLower,
		GroundwaterUpperBound:      decoded.GroundwaterUpper,
		PredictionConfidence:       decoded.Confidence,
		InferenceTimeMs:            float64(elapsed.Microseconds()) / 1000.0,
		FeatureCompleteness:        fv.Completeness,
		QualityFlag:                quality,
		CreatedAt:                  time.Now().UTC(),
	}

	id, err := s.db.InsertPrediction(pred)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageWriteFailed, "persist prediction", err)
	}
	pred.ID = id
	return &pred, nil
}

// selectModel resolves an explicit override in "name:version" form first,
// falling back to the zone's active model.
func (s *InferenceService) selectModel(modelOverride, zone string) (*domain.ModelMetadata, error) {
	if modelOverride != "" {
		name, version := splitOverride(modelOverride)
		meta, err := s.db.GetModelMetadata(name, version)
		if err != nil {
			return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load override model", err)
		}
		if meta == nil {
			return nil, domain.ErrModelNotFound.WithDetail("model", modelOverride)
		}
		return meta, nil
	}
	if zone == "" {
		zone = "all"
	}
	return s.manager.ActiveForZone(zone)
}

func splitOverride(s string) (name, version string) {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// UpdateActual locates the most recent prediction made for ringNumber and
// back-fills it with an observed settlement (and optionally displacement/
// groundwater). Calling this twice with the same actual is a no-op beyond
// recomputing the same error figures.
func (s *InferenceService) UpdateActual(ringNumber int64, actualSettlement float64, actualDisplacement, actualGroundwater *float64) error {
	pred, err := s.db.MostRecentPredictionForRing(ringNumber)
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load prediction for ring", err)
	}
	if pred == nil {
		return domain.ErrRingNotFound.WithDetail("ring_number", ringNumber)
	}
	pred.UpdateWithActual(actualSettlement, actualDisplacement, actualGroundwater)
	return s.db.UpdatePredictionActual(*pred)
}
