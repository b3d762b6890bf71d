// Package store persists a fitted pipeline as a directory of artifacts:
//
//	trained_model.gob   classifier (gob)
//	scaler.gob          standard scaler (gob)
//	metadata.json       model type, feature order, label mapping
//	metrics.json        evaluation of the last training run
//
// Save writes a complete sibling directory and swaps it in with renames, so a
// reader never sees a half-written model.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/exoplanet-classifier/core/model"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/pipeline"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
	"github.com/YuminosukeSato/exoplanet-classifier/preprocessing"
)

// Artifact file names.
const (
	ModelFile    = "trained_model.gob"
	ScalerFile   = "scaler.gob"
	MetadataFile = "metadata.json"
	MetricsFile  = "metrics.json"
)

// Store reads and writes the artifacts under one directory. Within a process
// a Load never observes the directory mid-swap.
type Store struct {
	dir    string
	logger log.Logger
	swap   sync.RWMutex
}

// New returns a Store rooted at dir. The directory is created on first Save.
func New(dir string) *Store {
	return &Store{dir: filepath.Clean(dir), logger: log.GetLoggerWithName("store")}
}

// Dir returns the artifact directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) string { return filepath.Join(s.dir, name) }

// Exists reports whether a classifier has been saved.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path(ModelFile))
	return err == nil
}

// Save writes p and m into a fresh directory and swaps it into place.
func (s *Store) Save(p *pipeline.Pipeline, m *pipeline.Metrics) error {
	if p == nil || p.Classifier == nil || p.Scaler == nil {
		return errors.NewValueError("store.Save", "pipeline is not fitted")
	}
	parent := filepath.Dir(s.dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", parent)
	}

	id := uuid.NewString()
	tmp := s.dir + ".tmp-" + id
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", tmp)
	}
	if err := writeArtifacts(tmp, p, m); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	s.swap.Lock()
	defer s.swap.Unlock()
	old := ""
	if _, err := os.Stat(s.dir); err == nil {
		old = s.dir + ".old-" + id
		if err := os.Rename(s.dir, old); err != nil {
			os.RemoveAll(tmp)
			return errors.Wrapf(err, "failed to move aside %s", s.dir)
		}
	}
	if err := os.Rename(tmp, s.dir); err != nil {
		if old != "" {
			// put the previous model back
			_ = os.Rename(old, s.dir)
		}
		os.RemoveAll(tmp)
		return errors.Wrapf(err, "failed to publish %s", s.dir)
	}
	if old != "" {
		if err := os.RemoveAll(old); err != nil {
			s.logger.Warn("Failed to remove previous artifacts", log.ArtifactDirKey, old, log.ErrorKey, err)
		}
	}

	s.logger.Info("Artifacts saved",
		log.OperationKey, log.OperationSave,
		log.ArtifactDirKey, s.dir,
		log.ModelNameKey, string(p.Meta.ModelType),
		log.RunIDKey, p.Meta.RunID,
	)
	return nil
}

func writeArtifacts(dir string, p *pipeline.Pipeline, m *pipeline.Metrics) error {
	if err := model.SaveModel(p.Classifier, filepath.Join(dir, ModelFile)); err != nil {
		return err
	}
	if err := model.SaveModel(p.Scaler, filepath.Join(dir, ScalerFile)); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, MetadataFile), p.Meta); err != nil {
		return err
	}
	if m != nil {
		return writeJSON(filepath.Join(dir, MetricsFile), m)
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode %s", filepath.Base(path))
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errors.Wrapf(err, "failed to decode %s", filepath.Base(path))
	}
	return nil
}

// Load restores the saved pipeline. The classifier and scaler must both be
// present. When metadata.json is missing the fields of shell are used
// instead; with a nil shell that is a NotFoundError too.
func (s *Store) Load(shell *pipeline.Metadata) (*pipeline.Pipeline, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	var meta pipeline.Metadata
	err := readJSON(s.path(MetadataFile), &meta)
	switch {
	case err == nil:
	case os.IsNotExist(err) && shell != nil:
		meta = *shell
	case os.IsNotExist(err):
		return nil, errors.NewNotFoundError("model metadata", s.path(MetadataFile))
	default:
		return nil, err
	}
	if meta.LabelMapping == nil {
		meta.LabelMapping = pipeline.DefaultLabelMapping()
	}

	clf, err := pipeline.NewClassifierShell(meta.ModelType)
	if err != nil {
		return nil, err
	}
	if err := s.loadGob("model", ModelFile, clf); err != nil {
		return nil, err
	}
	scaler := preprocessing.NewStandardScalerDefault()
	if err := s.loadGob("scaler", ScalerFile, scaler); err != nil {
		return nil, err
	}
	if !clf.IsFitted() || !scaler.IsFitted() {
		return nil, errors.NewModelError("store.Load", "restored artifacts are not fitted", nil)
	}

	s.logger.Info("Artifacts loaded",
		log.OperationKey, log.OperationLoad,
		log.ArtifactDirKey, s.dir,
		log.ModelNameKey, string(meta.ModelType),
	)
	return &pipeline.Pipeline{Meta: meta, Scaler: scaler, Classifier: clf}, nil
}

func (s *Store) loadGob(resource, name string, v interface{}) error {
	path := s.path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return errors.NewNotFoundError(resource, path)
	}
	return model.LoadModel(v, path)
}

// LoadMetrics returns the metrics of the saved run.
func (s *Store) LoadMetrics() (*pipeline.Metrics, error) {
	s.swap.RLock()
	defer s.swap.RUnlock()
	var m pipeline.Metrics
	if err := readJSON(s.path(MetricsFile), &m); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("metrics", s.path(MetricsFile))
		}
		return nil, err
	}
	return &m, nil
}
