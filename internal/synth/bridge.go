package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// BridgeConfig points at an external command that fits and samples deep
// generative models. The command is invoked as
//
//	<command> fit --algorithm K --data train.csv --metadata metadata.json --params params.json --output model.bin
//	<command> sample --algorithm K --model model.bin --count N --output samples.csv
type BridgeConfig struct {
	Command string        `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
	WorkDir string        `mapstructure:"work_dir"`
}

// Enabled reports whether a command is configured
func (c BridgeConfig) Enabled() bool {
	return strings.TrimSpace(c.Command) != ""
}

// BridgeSynthesizer delegates fitting and sampling to an external process.
// The artifact is whatever bytes the command writes as its model.
type BridgeSynthesizer struct {
	kind     Kind
	metadata *Metadata
	params   Hyperparameters
	config   BridgeConfig
	model    []byte
	logger   *logrus.Logger
}

// NewBridgeSynthesizer creates an unfitted bridge model
func NewBridgeSynthesizer(opts Options, config BridgeConfig, logger *logrus.Logger) (*BridgeSynthesizer, error) {
	if !config.Enabled() {
		return nil, errors.WrapError(errors.ErrBridgeNotConfigured, errors.ErrorTypeModel, errors.CodeBridgeFailed,
			fmt.Sprintf("%s requires synth.bridge.command", opts.Kind))
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &BridgeSynthesizer{
		kind:     opts.Kind,
		metadata: opts.Metadata,
		params:   opts.Hyperparameters,
		config:   config,
		logger:   logger,
	}, nil
}

// Kind returns the requested algorithm
func (b *BridgeSynthesizer) Kind() Kind {
	return b.kind
}

// Engine returns EngineBridge
func (b *BridgeSynthesizer) Engine() string {
	return EngineBridge
}

// Metadata returns the schema
func (b *BridgeSynthesizer) Metadata() *Metadata {
	return b.metadata
}

// Fit runs the fit sub-command on data
func (b *BridgeSynthesizer) Fit(ctx context.Context, data *dataset.Dataset) error {
	if data == nil || data.Len() == 0 {
		return errors.WrapError(errors.ErrInsufficientData, errors.ErrorTypeModel, errors.CodeTrainingFailed,
			"training data has no rows")
	}
	if b.metadata == nil {
		md, err := DetectMetadata(data)
		if err != nil {
			return err
		}
		b.metadata = md
	}

	dir, cleanup, err := b.workspace()
	if err != nil {
		return err
	}
	defer cleanup()

	csvData, err := dataset.EncodeCSV(data)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeTrainingFailed, "failed to encode training data")
	}
	mdData, err := json.Marshal(b.metadata)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeTrainingFailed, "failed to encode metadata")
	}
	paramData, err := json.Marshal(b.params.ForKind(b.kind))
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeTrainingFailed, "failed to encode hyperparameters")
	}

	files := map[string][]byte{
		"train.csv":     csvData,
		"metadata.json": mdData,
		"params.json":   paramData,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), content, 0o600); err != nil {
			return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeBridgeFailed, "failed to stage bridge input")
		}
	}

	modelPath := filepath.Join(dir, "model.bin")
	if err := b.run(ctx, "fit",
		"--algorithm", string(b.kind),
		"--data", filepath.Join(dir, "train.csv"),
		"--metadata", filepath.Join(dir, "metadata.json"),
		"--params", filepath.Join(dir, "params.json"),
		"--output", modelPath,
	); err != nil {
		return err
	}

	model, err := os.ReadFile(modelPath)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeBridgeFailed, "bridge did not write a model")
	}
	b.model = model
	return nil
}

// Sample runs the sample sub-command and parses its CSV output
func (b *BridgeSynthesizer) Sample(ctx context.Context, n int) (*dataset.Dataset, error) {
	if len(b.model) == 0 {
		return nil, errors.WrapError(errors.ErrModelNotFitted, errors.ErrorTypeModel, errors.CodeSamplingFailed,
			"cannot sample")
	}

	dir, cleanup, err := b.workspace()
	if err != nil {
		return nil, err
	}
	defer cleanup()

	modelPath := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(modelPath, b.model, 0o600); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeBridgeFailed, "failed to stage model")
	}

	outPath := filepath.Join(dir, "samples.csv")
	if err := b.run(ctx, "sample",
		"--algorithm", string(b.kind),
		"--model", modelPath,
		"--count", strconv.Itoa(n),
		"--output", outPath,
	); err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(outPath)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed, "bridge did not write samples")
	}
	ds, err := dataset.ReadCSV(raw, dataset.DefaultCSVOptions())
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeSamplingFailed, "bridge wrote unreadable samples")
	}
	return ds, nil
}

// Marshal returns the model bytes produced by the bridge
func (b *BridgeSynthesizer) Marshal() ([]byte, error) {
	if len(b.model) == 0 {
		return nil, errors.WrapError(errors.ErrModelNotFitted, errors.ErrorTypeModel, errors.CodeModelSaveFailed,
			"cannot serialize")
	}
	return b.model, nil
}

// Unmarshal stores model bytes for later sampling
func (b *BridgeSynthesizer) Unmarshal(data []byte) error {
	if len(data) == 0 {
		return errors.WrapError(errors.ErrModelLoadFailed, errors.ErrorTypeModel, errors.CodeModelLoadFailed,
			"bridge model is empty")
	}
	b.model = data
	return nil
}

func (b *BridgeSynthesizer) workspace() (string, func(), error) {
	dir, err := os.MkdirTemp(b.config.WorkDir, "tabsynth-bridge-*")
	if err != nil {
		return "", nil, errors.WrapError(err, errors.ErrorTypeModel, errors.CodeBridgeFailed, "failed to create bridge workspace")
	}
	return dir, func() {
		if err := os.RemoveAll(dir); err != nil {
			b.logger.WithFields(logrus.Fields{
				"dir":   dir,
				"error": err.Error(),
			}).Warn("Failed to remove bridge workspace")
		}
	}, nil
}

func (b *BridgeSynthesizer) run(ctx context.Context, args ...string) error {
	if b.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.Timeout)
		defer cancel()
	}

	argv := strings.Fields(b.config.Command)
	cmd := exec.CommandContext(ctx, argv[0], append(argv[1:], args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	b.logger.WithFields(logrus.Fields{
		"command": argv[0],
		"step":    args[0],
		"kind":    b.kind,
	}).Info("Running synthesizer bridge")

	err := cmd.Run()

	fields := logrus.Fields{
		"step":     args[0],
		"duration": time.Since(start),
	}
	if out := strings.TrimSpace(stdout.String()); out != "" {
		fields["stdout"] = out
	}
	b.logger.WithFields(fields).Debug("Bridge finished")

	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errors.WrapError(err, errors.ErrorTypeModel, errors.CodeBridgeFailed,
			fmt.Sprintf("bridge %s failed", args[0])).WithDetails(msg)
	}
	return nil
}
