package service

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YuminosukeSato/exoplanet-classifier/internal/config"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/dataset"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/history"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/pipeline"
	"github.com/YuminosukeSato/exoplanet-classifier/internal/store"
	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

type fixture struct {
	dir     string
	svc     *Service
	history *history.Log
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	h, err := history.Open(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return &fixture{dir: dir, history: h, svc: newService(t, dir, h)}
}

func newService(t *testing.T, dir string, h *history.Log) *Service {
	t.Helper()
	svc, err := New(store.New(filepath.Join(dir, "models")), Options{
		DatasetPath:   filepath.Join(dir, "data", "nasa_exoplanets.csv"),
		InfoCacheSize: 4,
		History:       h,
	})
	require.NoError(t, err)
	return svc
}

func csvBytes(t *testing.T, f *dataset.Frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	return buf.Bytes()
}

func quick(kind pipeline.ModelKind) pipeline.TrainOptions {
	n, depth := 8, 4
	return pipeline.TrainOptions{ModelType: string(kind), NEstimators: &n, MaxDepth: &depth}
}

func TestUntrained(t *testing.T) {
	fx := newFixture(t)
	var nf *errors.NotFoundError

	_, err := fx.svc.Current()
	assert.True(t, errors.As(err, &nf))
	assert.False(t, fx.svc.IsTrained())

	_, err = fx.svc.ModelInfo()
	assert.True(t, errors.As(err, &nf))
	_, err = fx.svc.Metrics()
	assert.True(t, errors.As(err, &nf))
	_, _, err = fx.svc.FeatureImportance()
	assert.True(t, errors.As(err, &nf))
	_, err = fx.svc.Predict(map[string]float64{"koi_period": 1})
	assert.True(t, errors.As(err, &nf))

	_, err = fx.svc.Train(context.Background(), pipeline.TrainOptions{})
	assert.True(t, errors.As(err, &nf), "no dataset staged")
	_, err = fx.svc.DatasetInfo()
	assert.True(t, errors.As(err, &nf))
}

func TestStageTrainPredict(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	stats, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(150, 2))))
	require.NoError(t, err)
	assert.Equal(t, "kepler.csv", stats.Filename)
	assert.Equal(t, 150, stats.TotalRows)
	assert.Equal(t, 13, stats.TotalColumns)
	assert.Len(t, stats.SampleData, UploadSampleRows)
	assert.Equal(t, 0, stats.MissingValues["koi_period"])

	m, err := fx.svc.Train(ctx, quick(pipeline.RandomForest))
	require.NoError(t, err)
	assert.Equal(t, 30, m.NTest)
	assert.True(t, fx.svc.IsTrained())

	pred, err := fx.svc.Predict(map[string]float64{"koi_period": 12, "koi_duration": 3, "koi_depth": 800, "koi_prad": 1.9})
	require.NoError(t, err)
	assert.Contains(t, pred.Probabilities, pred.PredictionLabel)

	info, err := fx.svc.ModelInfo()
	require.NoError(t, err)
	assert.Equal(t, pipeline.RandomForest, info.ModelType)
	assert.Equal(t, 12, info.NFeatures)
	assert.True(t, info.IsTrained)
	assert.Equal(t, "False Positive", info.LabelMapping["0"])

	got, err := fx.svc.Metrics()
	require.NoError(t, err)
	assert.Equal(t, m.RunID, got.RunID)

	kind, imp, err := fx.svc.FeatureImportance()
	require.NoError(t, err)
	assert.Equal(t, pipeline.RandomForest, kind)
	assert.Len(t, imp, 12)
	png, err := fx.svc.FeatureImportanceChart()
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	batch, err := fx.svc.PredictBatch(bytes.NewReader(csvBytes(t, dataset.Generate(7, 8))))
	require.NoError(t, err)
	require.Len(t, batch, 7)
	assert.Equal(t, 6, batch[6].Index)

	runs, err := fx.svc.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.RunID, runs[0].RunID)
}

func TestLazyLoadFromStore(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(90, 4))))
	require.NoError(t, err)
	m, err := fx.svc.Train(context.Background(), quick(pipeline.XGBoost))
	require.NoError(t, err)

	record := map[string]float64{"koi_period": 100, "koi_duration": 5, "koi_depth": 4000, "koi_prad": 6}
	want, err := fx.svc.Predict(record)
	require.NoError(t, err)

	// a restarted process sees the saved model
	restarted := newService(t, fx.dir, nil)
	got, err := restarted.Predict(record)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	metrics, err := restarted.Metrics()
	require.NoError(t, err)
	assert.Equal(t, m.Accuracy, metrics.Accuracy)

	runs, err := restarted.History(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestFailedTrainKeepsPrevious(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(90, 4))))
	require.NoError(t, err)
	_, err = fx.svc.Train(context.Background(), quick(pipeline.GradientBoost))
	require.NoError(t, err)
	before, err := fx.svc.Current()
	require.NoError(t, err)

	_, err = fx.svc.Train(context.Background(), pipeline.TrainOptions{ModelType: "svm", TestSize: new(float64)})
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))

	after, err := fx.svc.Current()
	require.NoError(t, err)
	assert.Same(t, before, after)
}

func TestSVMFeatureImportance(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(60, 4))))
	require.NoError(t, err)
	_, err = fx.svc.Train(context.Background(), pipeline.TrainOptions{ModelType: "svm"})
	require.NoError(t, err)

	_, _, err = fx.svc.FeatureImportance()
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "feature importance not supported for svm")
	_, err = fx.svc.FeatureImportanceChart()
	assert.True(t, errors.As(err, &ve))
}

func TestStageDatasetErrors(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.StageDataset("kepler.txt", strings.NewReader("koi_period\n1\n"))
	var ve *errors.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, err.Error(), "Only CSV files are supported")

	_, err = fx.svc.StageDataset("kepler.csv", strings.NewReader("koi_period,koi_prad\n1,2\n"))
	var se *errors.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"koi_duration", "koi_depth"}, se.Columns)

	_, err = fx.svc.StageDataset("kepler.csv", strings.NewReader(""))
	assert.True(t, errors.As(err, &ve))

	_, err = fx.svc.DatasetInfo()
	var nf *errors.NotFoundError
	assert.True(t, errors.As(err, &nf), "rejected uploads are not staged")
}

func TestDatasetInfoCache(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(30, 1))))
	require.NoError(t, err)

	first, err := fx.svc.DatasetInfo()
	require.NoError(t, err)
	assert.Equal(t, 30, first.TotalRows)
	assert.Len(t, first.SampleData, InfoSampleRows)
	assert.Equal(t, map[string]int{"CONFIRMED": 10, "FALSE POSITIVE": 10, "CANDIDATE": 10}, first.ClassDistribution)
	assert.Equal(t, "float64", first.DataTypes["koi_period"])
	assert.Equal(t, "object", first.DataTypes["koi_disposition"])

	again, err := fx.svc.DatasetInfo()
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = fx.svc.StageDataset("other.csv", bytes.NewReader(csvBytes(t, dataset.Generate(12, 1))))
	require.NoError(t, err)
	fresh, err := fx.svc.DatasetInfo()
	require.NoError(t, err)
	assert.Equal(t, 12, fresh.TotalRows)
}

func TestHistorySurvivesRetrainWithDefaultLayout(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	base := t.TempDir()
	at := func(p string) string { return filepath.Join(base, p) }

	dbPath := at(cfg.HistoryDB)
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))
	h, err := history.Open(dbPath)
	require.NoError(t, err)

	svc, err := New(store.New(at(cfg.ModelDir)), Options{DatasetPath: at(cfg.DatasetPath()), History: h})
	require.NoError(t, err)
	_, err = svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(90, 6))))
	require.NoError(t, err)
	for _, kind := range []pipeline.ModelKind{pipeline.RandomForest, pipeline.GradientBoost} {
		_, err := svc.Train(context.Background(), quick(kind))
		require.NoError(t, err)
	}
	require.NoError(t, h.Close())

	reopened, err := history.Open(dbPath)
	require.NoError(t, err)
	defer reopened.Close()
	runs, err := reopened.Recent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

// finishesWithin returns false when fn has not returned in time.
func finishesWithin(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func TestReadersDoNotWaitForTraining(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(90, 4))))
	require.NoError(t, err)

	// hold the lock a running Train holds
	fx.svc.trainMu.Lock()
	var nf *errors.NotFoundError
	assert.True(t, finishesWithin(2*time.Second, func() {
		assert.False(t, fx.svc.IsTrained())
		_, err := fx.svc.Current()
		assert.True(t, errors.As(err, &nf))
		_, err = fx.svc.ModelInfo()
		assert.True(t, errors.As(err, &nf))
		_, err = fx.svc.Metrics()
		assert.True(t, errors.As(err, &nf))
	}), "readers blocked before the first model")
	fx.svc.trainMu.Unlock()

	_, err = fx.svc.Train(context.Background(), quick(pipeline.RandomForest))
	require.NoError(t, err)

	restarted := newService(t, fx.dir, nil)
	restarted.trainMu.Lock()
	defer restarted.trainMu.Unlock()
	assert.True(t, finishesWithin(5*time.Second, func() {
		assert.True(t, restarted.IsTrained())
		_, err := restarted.Predict(map[string]float64{"koi_period": 3, "koi_duration": 2, "koi_depth": 150, "koi_prad": 1})
		assert.NoError(t, err)
	}), "lazy load blocked behind training")
}

func TestPredictWhileTraining(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	_, err := fx.svc.StageDataset("kepler.csv", bytes.NewReader(csvBytes(t, dataset.Generate(120, 9))))
	require.NoError(t, err)
	_, err = fx.svc.Train(ctx, quick(pipeline.RandomForest))
	require.NoError(t, err)

	record := map[string]float64{"koi_period": 40, "koi_duration": 4, "koi_depth": 1200, "koi_prad": 2.5}
	stop := make(chan struct{})
	failures := make(chan error, 64)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := fx.svc.Predict(record); err != nil {
					failures <- err
					return
				}
				if _, err := fx.svc.Metrics(); err != nil {
					failures <- err
					return
				}
				if _, err := fx.svc.ModelInfo(); err != nil {
					failures <- err
					return
				}
			}
		}()
	}

	for _, kind := range []pipeline.ModelKind{pipeline.XGBoost, pipeline.GradientBoost, pipeline.RandomForest, pipeline.XGBoost} {
		_, err := fx.svc.Train(ctx, quick(kind))
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	close(failures)
	for err := range failures {
		t.Errorf("reader failed during training: %v", err)
	}

	p, err := fx.svc.Current()
	require.NoError(t, err)
	assert.Equal(t, pipeline.XGBoost, p.Meta.ModelType)

	runs, err := fx.svc.History(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 5)
}
