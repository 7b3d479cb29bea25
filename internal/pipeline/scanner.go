package pipeline

import (
	"context"

	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/internal/synth"
)

const commandScan = "scan"

// ScanColumn is the privacy verdict for one column
type ScanColumn struct {
	Column string         `json:"column"`
	SDType string         `json:"sdtype"`
	Tag    privacy.Tag    `json:"tag,omitempty"`
	Source privacy.Source `json:"source,omitempty"`
}

// ScanReport lists the verdict of every column
type ScanReport struct {
	Rows    int          `json:"rows"`
	Flagged int          `json:"flagged"`
	Columns []ScanColumn `json:"columns"`
}

// Scanner reports which columns would be replaced by synthetic identifiers
type Scanner struct {
	rt         *Runtime
	classifier *privacy.Classifier
}

// NewScanner creates a scan runner
func NewScanner(rt *Runtime) *Scanner {
	return &Scanner{rt: rt, classifier: privacy.NewClassifier(rt.Logger)}
}

// Run classifies the columns of the dataset at location
func (s *Scanner) Run(ctx context.Context, location string) (*ScanReport, error) {
	data, err := s.rt.LoadDataset(ctx, location)
	if err != nil {
		return nil, s.rt.fail(commandScan, err)
	}

	md, err := synth.DetectMetadata(data)
	if err != nil {
		return nil, s.rt.fail(commandScan, err)
	}

	verdicts := s.classifier.Classify(columnInputs(data, md))
	report := &ScanReport{Rows: data.Len(), Columns: make([]ScanColumn, len(verdicts))}
	for i, v := range verdicts {
		report.Columns[i] = ScanColumn{
			Column: v.Column,
			SDType: md.Columns[i].SDType,
			Tag:    v.Tag,
			Source: v.Source,
		}
		if v.Sensitive() {
			report.Flagged++
			s.rt.Metrics.RecordPIIColumn(string(v.Tag))
		}
	}

	s.rt.Logger.WithField("flagged", report.Flagged).Info("Privacy scan complete")
	return report, nil
}
