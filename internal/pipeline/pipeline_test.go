package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/internal/storage/interfaces"
	"github.com/inferloop/tabsynth/internal/synth"
	"github.com/inferloop/tabsynth/pkg/errors"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string][]byte)}
}

func (m *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.failGet {
		return nil, false, fmt.Errorf("connection refused")
	}
	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.entries[key] = value
	return nil
}

func (m *memoryCache) Close() error {
	return nil
}

func newTestRuntime(t *testing.T, cache *memoryCache) *Runtime {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	rt := Runtime{Logger: logger, Seed: 11, CacheTTL: time.Minute}
	if cache != nil {
		rt.Cache = cache
	}
	out, err := NewRuntime(rt)
	require.NoError(t, err)
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func customersCSV(rows int) string {
	var b strings.Builder
	b.WriteString("age,income,segment,email\n")
	segments := []string{"retail", "smb", "enterprise"}
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&b, "%d,%d,%s,user%d@example.com\n", 20+i%40, 30000+i*250, segments[i%3], i)
	}
	return b.String()
}

func readDataset(t *testing.T, path string) *dataset.Dataset {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	ds, err := dataset.ReadCSV(data, dataset.DefaultCSVOptions())
	require.NoError(t, err)
	return ds
}

func trainModel(t *testing.T, rt *Runtime, data, output string) *TrainResult {
	t.Helper()
	params := synth.DefaultHyperparameters()
	params.Epochs = 5
	result, err := NewTrainer(rt).Run(context.Background(), TrainOptions{
		Data:            data,
		Output:          output,
		Algorithm:       synth.KindGaussianCopula,
		Hyperparameters: params,
	})
	require.NoError(t, err)
	return result
}

func TestTrainerRun(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(60))
	model := filepath.Join(dir, "models", "copula.pkl")

	result := trainModel(t, rt, data, model)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, synth.KindGaussianCopula, result.Algorithm)
	assert.Equal(t, synth.EngineCopula, result.Engine)
	assert.Equal(t, 60, result.Rows)
	assert.Equal(t, 4, result.Columns)
	require.Len(t, result.PII, 1)
	assert.Equal(t, "email", result.PII[0].Column)
	assert.Equal(t, privacy.TagEmail, result.PII[0].Tag)

	assert.FileExists(t, model)
	assert.FileExists(t, synth.SidecarLocation(model))
}

func TestTrainerLogsEpochsOnlyForIterativeAlgorithms(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "customers.csv", customersCSV(40))

	tests := []struct {
		algorithm  synth.Kind
		wantEpochs bool
	}{
		{algorithm: synth.KindGaussianCopula, wantEpochs: false},
		{algorithm: synth.KindCTGAN, wantEpochs: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.algorithm), func(t *testing.T) {
			var logs bytes.Buffer
			logger := logrus.New()
			logger.SetOutput(&logs)
			logger.SetFormatter(&logrus.JSONFormatter{})
			rt, err := NewRuntime(Runtime{Logger: logger, Seed: 11})
			require.NoError(t, err)

			params := synth.DefaultHyperparameters()
			params.Epochs = 5
			_, err = NewTrainer(rt).Run(context.Background(), TrainOptions{
				Data:            data,
				Output:          filepath.Join(dir, string(tt.algorithm)+".pkl"),
				Algorithm:       tt.algorithm,
				Hyperparameters: params,
			})
			require.NoError(t, err)

			var entry map[string]interface{}
			for _, line := range strings.Split(strings.TrimSpace(logs.String()), "\n") {
				var e map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(line), &e))
				if e["msg"] == "Training model" {
					entry = e
				}
			}
			require.NotNil(t, entry)
			_, hasEpochs := entry["epochs"]
			assert.Equal(t, tt.wantEpochs, hasEpochs)
		})
	}
}

func TestTrainerRunErrors(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(10))

	tests := []struct {
		name    string
		opts    TrainOptions
		errType errors.ErrorType
	}{
		{
			name:    "missing data",
			opts:    TrainOptions{Data: filepath.Join(dir, "nope.csv"), Output: filepath.Join(dir, "m.pkl"), Algorithm: synth.KindCTGAN, Hyperparameters: synth.DefaultHyperparameters()},
			errType: errors.ErrorTypeInput,
		},
		{
			name:    "unknown algorithm",
			opts:    TrainOptions{Data: data, Output: filepath.Join(dir, "m.pkl"), Algorithm: synth.Kind("GAN"), Hyperparameters: synth.DefaultHyperparameters()},
			errType: errors.ErrorTypeModel,
		},
		{
			name:    "invalid hyperparameters",
			opts:    TrainOptions{Data: data, Output: filepath.Join(dir, "m.pkl"), Algorithm: synth.KindCTGAN, Hyperparameters: synth.Hyperparameters{Epochs: -1, BatchSize: 10, LearningRate: 0.1, DiscriminatorSteps: 1}},
			errType: errors.ErrorTypeModel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTrainer(rt).Run(context.Background(), tt.opts)
			require.Error(t, err)
			assert.Equal(t, tt.errType, errors.TypeOf(err))
		})
	}
}

func TestGeneratorRun(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(60))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	output := filepath.Join(dir, "out", "synthetic.csv")
	result, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:  model,
		Output: output,
		Count:  25,
	})
	require.NoError(t, err)
	assert.Equal(t, 25, result.Requested)
	assert.Equal(t, 25, result.Written)
	assert.Nil(t, result.Leakage)

	out := readDataset(t, output)
	assert.Equal(t, 25, out.Len())
	assert.Equal(t, []string{"age", "income", "segment", "email"}, out.ColumnNames())

	original := readDataset(t, data)
	emails := make(map[string]bool)
	for _, v := range original.ColumnValues(original.ColumnIndex("email")) {
		emails[v.Str] = true
	}
	for _, v := range out.ColumnValues(out.ColumnIndex("email")) {
		assert.False(t, emails[v.Str], "synthetic email %q copies an original value", v.Str)
	}
}

func TestGeneratorRemovesLeakedRows(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	// every sample of a two-category column necessarily repeats an original row
	data := writeFile(t, dir, "flags.csv", "flag\na\nb\na\nb\na\nb\n")
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	output := filepath.Join(dir, "synthetic.csv")
	result, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:    model,
		Output:   output,
		Count:    8,
		Original: data,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Leakage)
	assert.Equal(t, 8, result.Leakage.Checked)
	assert.Equal(t, 8, result.Leakage.Removed)
	assert.Equal(t, 0, result.Written)

	out := readDataset(t, output)
	assert.Equal(t, 0, out.Len())
	assert.Equal(t, []string{"flag"}, out.ColumnNames())
}

func TestGeneratorSkipsMissingOriginal(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(30))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	result, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:    model,
		Output:   filepath.Join(dir, "synthetic.csv"),
		Count:    5,
		Original: filepath.Join(dir, "absent.csv"),
	})
	require.NoError(t, err)
	assert.Nil(t, result.Leakage)
	assert.Equal(t, 5, result.Written)
}

func TestGeneratorRejectsUnreadableOriginal(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(30))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)
	broken := writeFile(t, dir, "broken.csv", "")

	_, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:    model,
		Output:   filepath.Join(dir, "synthetic.csv"),
		Count:    5,
		Original: broken,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInput, errors.TypeOf(err))
}

type unreachableStore struct{}

func (unreachableStore) Get(context.Context, string) ([]byte, error) {
	return nil, fmt.Errorf("connection refused")
}

func (unreachableStore) Put(context.Context, string, []byte) error {
	return fmt.Errorf("connection refused")
}

func (unreachableStore) Exists(context.Context, string) (bool, error) {
	return false, fmt.Errorf("connection refused")
}

func (unreachableStore) Close() error { return nil }

func TestGeneratorFailsWhenOriginalCannotBeChecked(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(30))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	require.NoError(t, rt.Storage.RegisterStorage("s3", func(interfaces.BlobInfo) (interfaces.BlobStore, error) {
		return unreachableStore{}, nil
	}))

	output := filepath.Join(dir, "synthetic.csv")
	_, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:    model,
		Output:   output,
		Count:    5,
		Original: "s3://customers/original.csv",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeStorage, errors.TypeOf(err))
	assert.Contains(t, err.Error(), "connection refused")
	assert.NoFileExists(t, output)
}

func TestGeneratorInjectsAnomalies(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(40))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	output := filepath.Join(dir, "synthetic.csv")
	result, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:     model,
		Output:    output,
		Count:     20,
		Anomalies: `[{"column":"income","type":"fixed","value":-1,"ratio":0.5},{"column":"missing","type":"null","ratio":0.5}]`,
	})
	require.NoError(t, err)
	require.Len(t, result.Anomalies, 2)
	assert.Equal(t, "income", result.Anomalies[0].Column)
	assert.Equal(t, 10, result.Anomalies[0].Applied)
	assert.True(t, result.Anomalies[1].Skipped)

	out := readDataset(t, output)
	assert.Equal(t, 20, out.Len())
	negatives := 0
	for _, v := range out.ColumnValues(out.ColumnIndex("income")) {
		if v.IsNumber() && v.Num == -1 {
			negatives++
		}
	}
	assert.GreaterOrEqual(t, negatives, 10)
}

func TestGeneratorIgnoresMalformedAnomalies(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(30))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	result, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:     model,
		Output:    filepath.Join(dir, "synthetic.csv"),
		Count:     6,
		Anomalies: `[{"column":`,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Anomalies)
	assert.Equal(t, 6, result.Written)
}

func TestGeneratorMissingModel(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)

	_, err := NewGenerator(rt).Run(context.Background(), GenerateOptions{
		Model:  filepath.Join(dir, "absent.pkl"),
		Output: filepath.Join(dir, "synthetic.csv"),
		Count:  5,
	})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "synthetic.csv"))
}

func TestProfilerRun(t *testing.T) {
	dir := t.TempDir()
	cache := newMemoryCache()
	rt := newTestRuntime(t, cache)
	data := writeFile(t, dir, "customers.csv", customersCSV(20))

	first := NewProfiler(rt).Run(context.Background(), data)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(first, &report))
	assert.Equal(t, float64(20), report["rowCount"])
	assert.Equal(t, float64(4), report["columnCount"])
	assert.Equal(t, 1, cache.sets)

	second := NewProfiler(rt).Run(context.Background(), data)
	assert.JSONEq(t, string(first), string(second))
	assert.Equal(t, 2, cache.gets)
	assert.Equal(t, 1, cache.sets)
}

func TestProfilerErrorPayload(t *testing.T) {
	dir := t.TempDir()
	cache := newMemoryCache()
	rt := newTestRuntime(t, cache)

	out := NewProfiler(rt).Run(context.Background(), filepath.Join(dir, "absent.csv"))
	var payload map[string]string
	require.NoError(t, json.Unmarshal(out, &payload))
	assert.True(t, strings.HasPrefix(payload["error"], "Failed to parse CSV: "))
	assert.Equal(t, 0, cache.sets)
}

func TestProfilerCacheFailureFallsThrough(t *testing.T) {
	dir := t.TempDir()
	cache := newMemoryCache()
	cache.failGet = true
	rt := newTestRuntime(t, cache)
	data := writeFile(t, dir, "customers.csv", customersCSV(10))

	out := NewProfiler(rt).Run(context.Background(), data)
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &report))
	assert.Equal(t, float64(10), report["rowCount"])
}

func TestEvaluatorRun(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(80))
	model := filepath.Join(dir, "model.pkl")
	trainModel(t, rt, data, model)

	result, err := NewEvaluator(rt).Run(context.Background(), EvaluateOptions{
		Model:    model,
		Original: data,
		Samples:  200,
	})
	require.NoError(t, err)
	assert.Equal(t, 200, result.SampleCount)
	assert.Greater(t, result.OverallQualityScore, 0.5)
	assert.LessOrEqual(t, result.OverallQualityScore, 1.0)
	assert.Equal(t, []string{"age", "income"}, result.CustomMetrics.MeanAbsoluteError.Keys)
}

func TestEvaluatorErrors(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(20))

	_, err := NewEvaluator(rt).Run(context.Background(), EvaluateOptions{
		Model:    filepath.Join(dir, "absent.pkl"),
		Original: data,
		Samples:  10,
	})
	require.Error(t, err)

	_, err = NewEvaluator(rt).Run(context.Background(), EvaluateOptions{
		Model:    filepath.Join(dir, "absent.pkl"),
		Original: data,
		Samples:  -1,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInput, errors.TypeOf(err))
}

func TestScannerRun(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	data := writeFile(t, dir, "customers.csv", customersCSV(15))

	report, err := NewScanner(rt).Run(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, 15, report.Rows)
	assert.Equal(t, 1, report.Flagged)
	require.Len(t, report.Columns, 4)
	assert.Equal(t, "age", report.Columns[0].Column)
	assert.Equal(t, privacy.TagNone, report.Columns[0].Tag)
	assert.Equal(t, "email", report.Columns[3].Column)
	assert.Equal(t, privacy.TagEmail, report.Columns[3].Tag)
}

func TestAuditorRun(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	original := writeFile(t, dir, "original.csv", "id,city\n1,Oslo\n2,Lima\n")
	synthetic := writeFile(t, dir, "synthetic.csv", "id,city,extra\n1,Oslo,x\n3,Lima,y\n2,Lima,z\n")
	output := filepath.Join(dir, "clean.csv")

	report, err := NewAuditor(rt).Run(context.Background(), AuditOptions{
		Original:  original,
		Synthetic: synthetic,
		Output:    output,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "city"}, report.CommonColumns)
	assert.Equal(t, 3, report.Checked)
	assert.Equal(t, 2, report.Removed)
	assert.Equal(t, []int{0, 2}, report.RemovedIndices)

	clean := readDataset(t, output)
	require.Equal(t, 1, clean.Len())
	assert.Equal(t, []string{"id", "city", "extra"}, clean.ColumnNames())
}

func TestAuditorMissingInput(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, nil)
	original := writeFile(t, dir, "original.csv", "id\n1\n")

	_, err := NewAuditor(rt).Run(context.Background(), AuditOptions{
		Original:  original,
		Synthetic: filepath.Join(dir, "absent.csv"),
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeInput, errors.TypeOf(err))
}
