package training

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/modelserver/internal/artifacts"
	"github.com/Aidin1998/modelserver/internal/capability"
	"github.com/Aidin1998/modelserver/internal/etl"
	apperrors "github.com/Aidin1998/modelserver/pkg/errors"
	"github.com/Aidin1998/modelserver/pkg/models"
)

type recordingSwapper struct {
	mu      sync.Mutex
	swapped []string
	err     error
}

func (s *recordingSwapper) Reload(_ context.Context, kind capability.Kind, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.swapped = append(s.swapped, string(kind)+"@"+version)
	return s.err
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []ModelPublished
}

func (p *recordingPublisher) Publish(_ context.Context, e ModelPublished) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type failingModel struct {
	*capability.ComplianceGapModel
}

func (failingModel) Train([][]float64, []int) (map[string]float64, error) {
	return nil, errors.New("learner exploded")
}

func newTestOrchestrator(t *testing.T, opts ...Option) (*Orchestrator, *artifacts.Store, *BadgerJournal) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store, err := artifacts.NewStore(t.TempDir(), logger)
	require.NoError(t, err)
	journal, err := NewBadgerJournal("")
	require.NoError(t, err)
	t.Cleanup(func() { journal.Close() })

	opts = append([]Option{WithPipelines(DefaultPipelines(etl.NopExtractor{})...), WithJournal(journal)}, opts...)
	return NewOrchestrator(store, logger, opts...), store, journal
}

func TestSyntheticGenerators(t *testing.T) {
	compliance := SyntheticComplianceData(SyntheticRows)
	require.Len(t, compliance, SyntheticRows)
	assert.Equal(t, compliance, SyntheticComplianceData(SyntheticRows))
	for _, r := range compliance {
		rate := r.Float("compliance_rate", -1)
		assert.GreaterOrEqual(t, rate, 0.1)
		assert.Less(t, rate, 1.0)
		assert.Equal(t, rate < 0.5, r.Bool("has_gap"))
		assert.Equal(t, 10, r.Int("total_count", 0))
		days := r.Int("days_since_check", 0)
		assert.True(t, days >= 1 && days < 400)
	}

	regulatory := SyntheticRegulatoryData(50)
	assert.Equal(t, "reg-7", regulatory[7].String("regulation_id", ""))
	for _, r := range regulatory {
		freq := r.Int("change_frequency", -1)
		assert.True(t, freq >= 0 && freq < 10)
		assert.Equal(t, freq > 4, r.Bool("changed"))
		sev := r.Int("severity", 0)
		assert.True(t, sev >= 1 && sev < 6)
	}

	for _, r := range SyntheticDriftData(50) {
		assert.True(t, r.Float("error_rate", -1) >= 0 && r.Float("error_rate", 1) < 0.05)
		assert.True(t, r.Float("latency_p99", 0) >= 300)
	}
}

func TestTrainBootstrapsAndVersions(t *testing.T) {
	swapper := &recordingSwapper{}
	publisher := &recordingPublisher{}
	o, store, journal := newTestOrchestrator(t, WithSwapper(swapper), WithPublisher(publisher))
	ctx := context.Background()

	first, err := o.Train(ctx, capability.ComplianceGap)
	require.NoError(t, err)
	assert.Equal(t, "compliance-gap", first.ModelName)
	assert.Equal(t, "1.0.0", first.Version)
	assert.NotEmpty(t, first.RunID)
	assert.Equal(t, filepath.Join(store.Root(), "compliance-gap", "1.0.0"), first.ArtifactPath)
	assert.Greater(t, first.Metrics["accuracy"], 0.7)
	assert.Equal(t, 160.0, first.Metrics["training_samples"])

	second, err := o.Train(ctx, capability.ComplianceGap)
	require.NoError(t, err)
	assert.Equal(t, "1.0.1", second.Version)
	assert.Equal(t, first.Metrics, second.Metrics, "synthetic bootstrap is reproducible")

	assert.Equal(t, []string{"compliance-gap@1.0.0", "compliance-gap@1.0.1"}, swapper.swapped)
	require.Len(t, publisher.events, 2)
	assert.Equal(t, second.RunID, publisher.events[1].RunID)
	assert.Equal(t, "1.0.1", publisher.events[1].Version)

	runs, err := journal.List(ctx, "compliance-gap", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.RunID, runs[0].ID)
	assert.Equal(t, StatusSuccess, runs[0].Status)
	assert.Equal(t, SourceSynthetic, runs[0].DataSource)
	assert.Equal(t, SyntheticRows, runs[0].Rows)
}

func TestTrainEveryDefaultKind(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	for _, kind := range capability.TrainableKinds {
		res, err := o.Train(context.Background(), kind)
		require.NoError(t, err, kind)
		assert.Equal(t, "1.0.0", res.Version)

		c, ok := store.LoadModel(context.Background(), string(kind), artifacts.Latest)
		require.True(t, ok, kind)
		assert.True(t, c.IsLoaded())
		assert.Equal(t, res.Metrics, c.Metrics())
	}
}

func TestTrainUsesExtractedRecords(t *testing.T) {
	o, _, journal := newTestOrchestrator(t)
	o.Register(Pipeline{
		Kind: capability.ComplianceGap,
		Extract: func(context.Context) []models.Record {
			return SyntheticComplianceData(30)
		},
		Synthesize: func(int) []models.Record { panic("must not bootstrap when data exists") },
		Transform:  etl.TransformForGapAnalysis,
		New:        func() capability.Trainable { return capability.NewComplianceGap() },
	})

	res, err := o.Train(context.Background(), capability.ComplianceGap)
	require.NoError(t, err)
	assert.Equal(t, 24.0, res.Metrics["training_samples"])

	runs, err := journal.List(context.Background(), "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, SourceDatabase, runs[0].DataSource)
	assert.Equal(t, 30, runs[0].Rows)
}

func TestTrainFailureLeavesNoArtifact(t *testing.T) {
	publisher := &recordingPublisher{}
	o, store, journal := newTestOrchestrator(t, WithPublisher(publisher))
	o.Register(Pipeline{
		Kind:       capability.ComplianceGap,
		Synthesize: SyntheticComplianceData,
		Transform:  etl.TransformForGapAnalysis,
		New:        func() capability.Trainable { return failingModel{capability.NewComplianceGap()} },
	})

	res, err := o.Train(context.Background(), capability.ComplianceGap)
	assert.Nil(t, res)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTrainingFailed))
	assert.Contains(t, err.Error(), "learner exploded")

	_, ok := store.GetLatestVersion("compliance-gap")
	assert.False(t, ok)
	assert.Empty(t, publisher.events)

	runs, err := journal.List(context.Background(), "compliance-gap", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "learner exploded")
}

func TestTrainRecoversFromPanics(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.Register(Pipeline{
		Kind:       capability.DriftDetector,
		Synthesize: SyntheticDriftData,
		Transform:  func([]models.Record) ([][]float64, []int) { panic("bad transform") },
		New:        func() capability.Trainable { return capability.NewDriftDetector() },
	})

	_, err := o.Train(context.Background(), capability.DriftDetector)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad transform")
}

func TestTrainSwapFailureIsReported(t *testing.T) {
	o, store, _ := newTestOrchestrator(t, WithSwapper(&recordingSwapper{err: errors.New("reload failed")}))

	_, err := o.Train(context.Background(), capability.DriftDetector)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrTrainingFailed))

	// the artifact itself was committed
	latest, ok := store.GetLatestVersion("drift-detector")
	assert.True(t, ok)
	assert.Equal(t, "1.0.0", latest)
}

func TestTrainRejectsUntrainableKinds(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	_, err := o.Train(context.Background(), capability.TaxonomyClassifier)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotTrainable))
}

func TestTrainSurvivesCallerCancellation(t *testing.T) {
	o, store, _ := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := o.Train(ctx, capability.RegulatoryPredictor)
	require.NoError(t, err)
	_, ok := store.LoadModel(context.Background(), "regulatory-predictor", res.Version)
	assert.True(t, ok)
}

func TestConcurrentTrainingOfOneKindShareARun(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	entered := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32
	o.Register(Pipeline{
		Kind:       capability.DriftDetector,
		Synthesize: SyntheticDriftData,
		Transform: func(records []models.Record) ([][]float64, []int) {
			if runs.Add(1) == 1 {
				close(entered)
			}
			<-release
			return etl.TransformForDrift(records)
		},
		New: func() capability.Trainable { return capability.NewDriftDetector() },
	})

	results := make([]*Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := o.Train(context.Background(), capability.DriftDetector)
			assert.NoError(t, err)
			results[i] = res
		}(i)
		if i == 0 {
			<-entered
		}
	}
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0].RunID, results[1].RunID)
}

func TestBadgerJournalOnDisk(t *testing.T) {
	dir := t.TempDir()
	j, err := NewBadgerJournal(dir)
	require.NoError(t, err)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := context.Background()
	for i, model := range []string{"drift-detector", "compliance-gap", "drift-detector"} {
		require.NoError(t, j.Record(ctx, TrainingRun{
			ID: model + string(rune('a'+i)), Model: model, Status: StatusSuccess, StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, j.Close())

	j, err = NewBadgerJournal(dir)
	require.NoError(t, err)
	defer j.Close()

	all, err := j.List(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "drift-detectorc", all[0].ID)
	assert.Equal(t, "compliance-gapb", all[1].ID)

	limited, err := j.List(ctx, "drift-detector", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "drift-detectorc", limited[0].ID)

	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisherMessage(t *testing.T) {
	w := &fakeWriter{}
	p := &KafkaPublisher{writer: w}
	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), ModelPublished{
		Model: "compliance-gap", Version: "1.0.3", RunID: "run-1", PublishedAt: at,
		Metrics: map[string]float64{"accuracy": 0.9},
	}))
	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, []byte("compliance-gap"), msg.Key)
	assert.Equal(t, at, msg.Time)
	assert.JSONEq(t, `{"model":"compliance-gap","version":"1.0.3","metrics":{"accuracy":0.9},"artifact_path":"","published_at":"2025-05-01T12:00:00Z","run_id":"run-1"}`, string(msg.Value))
	assert.Equal(t, "event_type", msg.Headers[0].Key)

	assert.Equal(t, DefaultTopic, NewKafkaPublisher([]string{"localhost:9092"}, "").writer.(*kafka.Writer).Topic)
}
