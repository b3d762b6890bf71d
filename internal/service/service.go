// Package service owns the resident pipeline and the staged dataset. It is
// the single entry point the HTTP layer talks to.
package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/features"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/history"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/pipeline"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/report"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/store"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/log"
)

// Sample sizes of the dataset summaries.
const (
	UploadSampleRows = 5
	InfoSampleRows   = 10
)

// Options configures a Service.
type Options struct {
	DatasetPath   string
	InfoCacheSize int
	History       *history.Log // optional
}

// Service is safe for concurrent use. Readers take a snapshot of the
// current pipeline; Train publishes a replacement only after it is saved.
type Service struct {
	datasetPath string
	store       *store.Store
	history     *history.Log
	trainer     *pipeline.Trainer
	logger      log.Logger

	current atomic.Pointer[pipeline.Pipeline]
	metrics atomic.Pointer[pipeline.Metrics]
	trainMu sync.Mutex // serialises Train
	loadMu  sync.Mutex // serialises the lazy load; never held across a fit

	info *lru.Cache[infoKey, *DatasetInfo]
}

type infoKey struct {
	path  string
	size  int64
	mtime time.Time
}

// New creates a Service around st.
func New(st *store.Store, opts Options) (*Service, error) {
	size := opts.InfoCacheSize
	if size <= 0 {
		size = 16
	}
	cache, err := lru.New[infoKey, *DatasetInfo](size)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create dataset-info cache")
	}
	return &Service{
		datasetPath: opts.DatasetPath,
		store:       st,
		history:     opts.History,
		trainer:     pipeline.NewTrainer(),
		logger:      log.GetLoggerWithName("service"),
		info:        cache,
	}, nil
}

// Current returns the resident pipeline, loading the saved one on first use.
// It is a NotFoundError while no model has been trained.
func (s *Service) Current() (*pipeline.Pipeline, error) {
	if p := s.current.Load(); p != nil {
		return p, nil
	}
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if p := s.current.Load(); p != nil {
		return p, nil
	}
	if !s.store.Exists() {
		return nil, errors.NewNotFoundError("trained model", s.store.Dir())
	}
	p, err := s.store.Load(nil)
	if err != nil {
		return nil, err
	}
	// a concurrent Train may have published while the artifacts were read
	if !s.current.CompareAndSwap(nil, p) {
		return s.current.Load(), nil
	}
	return p, nil
}

// IsTrained reports whether a pipeline is resident or saved. It does not
// load anything and does not wait for a running Train.
func (s *Service) IsTrained() bool {
	return s.current.Load() != nil || s.store.Exists()
}

// Train fits a new pipeline on the staged dataset, saves it and makes it
// current. On failure the previous pipeline stays resident.
func (s *Service) Train(ctx context.Context, opts pipeline.TrainOptions) (*pipeline.Metrics, error) {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	frame, err := dataset.Load(s.datasetPath)
	if err != nil {
		return nil, err
	}
	p, m, err := s.trainer.Train(ctx, frame, opts)
	if err != nil {
		s.logger.Error("Training failed", log.ErrorKey, err, log.DatasetPathKey, s.datasetPath)
		return nil, err
	}
	if err := s.store.Save(p, m); err != nil {
		return nil, err
	}
	s.current.Store(p)
	s.metrics.Store(m)

	if s.history != nil {
		if _, err := s.history.Append(ctx, history.FromMetrics(m)); err != nil {
			s.logger.Warn("Failed to record training run", log.ErrorKey, err, log.RunIDKey, m.RunID)
		}
	}
	return m, nil
}

// Predict classifies one record with the current pipeline.
func (s *Service) Predict(record map[string]float64) (pipeline.Prediction, error) {
	p, err := s.Current()
	if err != nil {
		return pipeline.Prediction{}, err
	}
	return p.Predict(record)
}

// PredictBatch classifies every row of the CSV read from r.
func (s *Service) PredictBatch(r io.Reader) ([]pipeline.BatchPrediction, error) {
	p, err := s.Current()
	if err != nil {
		return nil, err
	}
	frame, err := dataset.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return p.PredictBatch(frame)
}

// Metrics returns the evaluation of the current model.
func (s *Service) Metrics() (*pipeline.Metrics, error) {
	if _, err := s.Current(); err != nil {
		return nil, err
	}
	if m := s.metrics.Load(); m != nil {
		return m, nil
	}
	m, err := s.store.LoadMetrics()
	if err != nil {
		return nil, err
	}
	s.metrics.CompareAndSwap(nil, m)
	return m, nil
}

// ModelInfo describes the current model.
type ModelInfo struct {
	ModelType    pipeline.ModelKind `json:"model_type"`
	FeatureNames []string           `json:"feature_names"`
	LabelMapping map[string]string  `json:"label_mapping"`
	NFeatures    int                `json:"n_features"`
	IsTrained    bool               `json:"is_trained"`
	TrainedAt    time.Time          `json:"trained_at,omitempty"`
	RunID        string             `json:"run_id,omitempty"`
}

// ModelInfo returns the metadata of the current model.
func (s *Service) ModelInfo() (*ModelInfo, error) {
	p, err := s.Current()
	if err != nil {
		return nil, err
	}
	return &ModelInfo{
		ModelType:    p.Meta.ModelType,
		FeatureNames: p.Meta.FeatureNames,
		LabelMapping: p.Meta.LabelMapping,
		NFeatures:    len(p.Meta.FeatureNames),
		IsTrained:    true,
		TrainedAt:    p.Meta.TrainedAt,
		RunID:        p.Meta.RunID,
	}, nil
}

// FeatureImportance returns the importances of the current model.
func (s *Service) FeatureImportance() (pipeline.ModelKind, map[string]float64, error) {
	p, err := s.Current()
	if err != nil {
		return "", nil, err
	}
	imp, err := p.FeatureImportance()
	return p.Meta.ModelType, imp, err
}

// FeatureImportanceChart renders the importances as a PNG bar chart.
func (s *Service) FeatureImportanceChart() ([]byte, error) {
	kind, imp, err := s.FeatureImportance()
	if err != nil {
		return nil, err
	}
	return report.FeatureImportancePNG(string(kind)+" feature importance", imp)
}

// History returns the most recent training runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Entry, error) {
	if s.history == nil {
		return []history.Entry{}, nil
	}
	return s.history.Recent(ctx, limit)
}

// UploadStats summarises a staged dataset.
type UploadStats struct {
	Filename      string                   `json:"filename"`
	TotalRows     int                      `json:"total_rows"`
	TotalColumns  int                      `json:"total_columns"`
	Columns       []string                 `json:"columns"`
	SampleData    []map[string]interface{} `json:"sample_data"`
	MissingValues map[string]int           `json:"missing_values"`
}

// StageDataset validates an uploaded CSV and makes it the training dataset.
func (s *Service) StageDataset(filename string, r io.Reader) (*UploadStats, error) {
	if !strings.HasSuffix(strings.ToLower(filename), ".csv") {
		return nil, errors.NewValidationError("file", "Only CSV files are supported", filename)
	}
	frame, err := dataset.ReadCSV(r)
	if err != nil {
		return nil, err
	}
	if missing := frame.MissingColumns(features.RequiredFeatures); len(missing) > 0 {
		return nil, errors.NewSchemaError("upload-dataset", "Missing required columns", missing...)
	}
	if err := frame.WriteFile(s.datasetPath); err != nil {
		return nil, err
	}
	s.info.Purge()

	s.logger.Info("Dataset staged",
		log.DatasetPathKey, s.datasetPath,
		log.SamplesKey, frame.NRows(),
		log.FeaturesKey, frame.NCols(),
	)
	return &UploadStats{
		Filename:      filepath.Base(filename),
		TotalRows:     frame.NRows(),
		TotalColumns:  frame.NCols(),
		Columns:       frame.Headers,
		SampleData:    frame.Head(UploadSampleRows),
		MissingValues: frame.MissingValues(),
	}, nil
}

// DatasetInfo summarises the staged dataset.
type DatasetInfo struct {
	TotalRows         int                      `json:"total_rows"`
	TotalColumns      int                      `json:"total_columns"`
	Columns           []string                 `json:"columns"`
	MissingValues     map[string]int           `json:"missing_values"`
	DataTypes         map[string]string        `json:"data_types"`
	SampleData        []map[string]interface{} `json:"sample_data"`
	ClassDistribution map[string]int           `json:"class_distribution,omitempty"`
}

// DatasetInfo returns the summary of the staged dataset. Results are cached
// until the file changes.
func (s *Service) DatasetInfo() (*DatasetInfo, error) {
	st, err := os.Stat(s.datasetPath)
	if os.IsNotExist(err) {
		return nil, errors.NewNotFoundError("dataset", s.datasetPath)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat %s", s.datasetPath)
	}
	key := infoKey{path: s.datasetPath, size: st.Size(), mtime: st.ModTime()}
	if info, ok := s.info.Get(key); ok {
		return info, nil
	}

	frame, err := dataset.Load(s.datasetPath)
	if err != nil {
		return nil, err
	}
	info := &DatasetInfo{
		TotalRows:     frame.NRows(),
		TotalColumns:  frame.NCols(),
		Columns:       frame.Headers,
		MissingValues: frame.MissingValues(),
		DataTypes:     frame.DataTypes(),
		SampleData:    frame.Head(InfoSampleRows),
	}
	if col, err := features.ResolveLabelColumn(frame); err == nil {
		info.ClassDistribution = frame.ValueCounts(col)
	}
	s.info.Add(key, info)
	return info, nil
}
