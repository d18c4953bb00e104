package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/shieldterminal/edgecore/internal/domain"
	"github.com/shieldterminal/edgecore/internal/infra/sqlite"
)

// Manager owns model_metadata lifecycle transitions and the content-
// addressed artifact store under modelsDir/blobs. Content-addressing and
// the streaming-hash-then-atomic-rename sequence are carried over from the
// registry's original artifact-pull idiom; what changed is the trigger —
// artifacts now arrive from a local deploy call, not a remote catalog pull.
type Manager struct {
	db        *sqlite.DB
	modelsDir string
}

// NewManager constructs a Manager rooted at modelsDir.
func NewManager(db *sqlite.DB, modelsDir string) *Manager {
	return &Manager{db: db, modelsDir: modelsDir}
}

// ValidationMetrics are optional quality figures recorded at deploy time.
type ValidationMetrics struct {
	R2   *float64
	RMSE *float64
	MAE  *float64
}

// DeployModel copies srcPath into content-addressed storage, computing its
// SHA-256 checksum while streaming, then stages a model_metadata row.
// Activates immediately when activate is true.
func (m *Manager) DeployModel(srcPath, name, version, modelType, zone string, metrics ValidationMetrics, featureList []string, activate bool, outputFormatVersion string) (*domain.ModelMetadata, error) {
	digest, size, err := m.storeBlob(srcPath)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageWriteFailed, "store model artifact", err)
	}

	// outputFormatVersion is left unset when the caller doesn't supply one —
	// DecodeOutputs treats that as the legacy v1_lower_bound interpretation
	// and logs a warning, rather than this call silently picking a version
	// the model was never actually validated against.
	if zone == "" {
		zone = "all"
	}

	now := time.Now().UTC()
	meta := domain.ModelMetadata{
		ModelName:           name,
		ModelVersion:        version,
		ModelType:           modelType,
		ONNXPath:            m.blobPath(digest),
		ONNXChecksum:        digest,
		ModelSizeBytes:      size,
		GeologicalZone:      zone,
		ValidationR2:        metrics.R2,
		ValidationRMSE:      metrics.RMSE,
		ValidationMAE:       metrics.MAE,
		FeatureList:         featureList,
		OutputFormatVersion: outputFormatVersion,
		Hyperparameters:     map[string]any{},
		DeploymentStatus:    domain.DeploymentStaged,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := m.db.UpsertModelMetadata(meta); err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageWriteFailed, "persist model metadata", err)
	}

	if activate {
		if err := m.Activate(name, version); err != nil {
			return nil, err
		}
	}

	return m.db.GetModelMetadata(name, version)
}

// Activate retires whatever model is currently active for the model's zone,
// then marks name/version active. The prior-active check compares name AND
// version, since a multi-version deploy sequence (or a rollback) activates
// a different version of the very same model name and must still retire
// the version it's replacing.
func (m *Manager) Activate(name, version string) error {
	meta, err := m.db.GetModelMetadata(name, version)
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load model metadata", err)
	}
	if meta == nil {
		return domain.ErrModelNotFound.WithDetail("model", name).WithDetail("version", version)
	}

	if current, err := m.db.ActiveModelForZone(meta.GeologicalZone); err == nil && current != nil &&
		!(current.ModelName == name && current.ModelVersion == version) {
		_ = m.Retire(current.ModelName, current.ModelVersion)
	}

	now := time.Now().UTC()
	meta.DeploymentStatus = domain.DeploymentActive
	meta.DeployedAt = &now
	return m.db.UpsertModelMetadata(*meta)
}

// MarkFailed marks name/version failed, used when a load attempt discovers a
// checksum mismatch or another unrecoverable load error for a model that was
// staged or active.
func (m *Manager) MarkFailed(name, version string) error {
	meta, err := m.db.GetModelMetadata(name, version)
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load model metadata", err)
	}
	if meta == nil {
		return domain.ErrModelNotFound.WithDetail("model", name).WithDetail("version", version)
	}
	meta.DeploymentStatus = domain.DeploymentFailed
	return m.db.UpsertModelMetadata(*meta)
}

// Retire marks name/version retired.
func (m *Manager) Retire(name, version string) error {
	meta, err := m.db.GetModelMetadata(name, version)
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load model metadata", err)
	}
	if meta == nil {
		return domain.ErrModelNotFound
	}
	now := time.Now().UTC()
	meta.DeploymentStatus = domain.DeploymentRetired
	meta.RetiredAt = &now
	return m.db.UpsertModelMetadata(*meta)
}

// Rollback reactivates name/previousVersion — a version already registered
// under the same model name by an earlier DeployModel call, not a separate
// synthetic model. Activate itself retires whatever version of name is
// currently active in that zone.
func (m *Manager) Rollback(name, previousVersion string) error {
	meta, err := m.db.GetModelMetadata(name, previousVersion)
	if err != nil {
		return domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load rollback target metadata", err)
	}
	if meta == nil {
		return domain.ErrModelNotFound.WithDetail("model", name).WithDetail("version", previousVersion)
	}
	return m.Activate(name, previousVersion)
}

// GetModel returns the metadata for an exact name/version pair, or nil if
// not found.
func (m *Manager) GetModel(name, version string) (*domain.ModelMetadata, error) {
	meta, err := m.db.GetModelMetadata(name, version)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "load model metadata", err)
	}
	return meta, nil
}

// ActiveForZone returns the active model for a geological zone.
func (m *Manager) ActiveForZone(zone string) (*domain.ModelMetadata, error) {
	meta, err := m.db.ActiveModelForZone(zone)
	if err != nil {
		return nil, domain.NewError(domain.CategoryStorage, domain.CodeStorageQueryFailed, "query active model", err)
	}
	if meta == nil {
		return nil, domain.ErrModelUnavailable.WithDetail("zone", zone)
	}
	return meta, nil
}

// ActiveModels returns every currently active model, used at startup to
// load everything the Prediction Manager needs resident.
func (m *Manager) ActiveModels() ([]domain.ModelMetadata, error) {
	return m.db.ActiveModels()
}

func (m *Manager) blobPath(digest string) string {
	return filepath.Join(m.modelsDir, "blobs", digest[:2], digest)
}

// storeBlob streams srcPath through SHA-256 while copying it into a
// content-addressed temp file, then atomically renames it into place so a
// crash mid-copy never leaves a digest-named file with the wrong contents.
func (m *Manager) storeBlob(srcPath string) (digest string, size int64, err error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	tmpDir := filepath.Join(m.modelsDir, "blobs", "tmp")
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(tmp, io.TeeReader(src, h))
	if err != nil {
		tmp.Close()
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}

	sum := hex.EncodeToString(h.Sum(nil))
	dest := m.blobPath(sum)
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", 0, err
	}
	return sum, n, nil
}
