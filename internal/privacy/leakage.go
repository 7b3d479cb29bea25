package privacy

import (
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/dataset"
)

// LeakageReport describes the outcome of one audit
type LeakageReport struct {
	CommonColumns  []string `json:"common_columns"`
	Checked        int      `json:"checked"`
	Removed        int      `json:"removed"`
	Retained       int      `json:"retained"`
	RemovedIndices []int    `json:"removed_indices"`
}

// LeakageAuditor removes synthetic rows that copy an original row
type LeakageAuditor struct {
	logger *logrus.Logger
}

// NewLeakageAuditor creates an auditor
func NewLeakageAuditor(logger *logrus.Logger) *LeakageAuditor {
	if logger == nil {
		logger = logrus.New()
	}
	return &LeakageAuditor{logger: logger}
}

// Audit drops every synthetic row whose values on the shared columns equal
// some original row. Nulls match nulls and numbers compare by value. Removed
// rows are not replaced, so the result may be shorter than the input.
func (a *LeakageAuditor) Audit(synthetic, original *dataset.Dataset) (*dataset.Dataset, *LeakageReport) {
	common := dataset.CommonColumns(synthetic, original)
	report := &LeakageReport{
		CommonColumns:  common,
		Checked:        synthetic.Len(),
		RemovedIndices: []int{},
	}

	if len(common) == 0 || original.Len() == 0 {
		report.Retained = synthetic.Len()
		a.logger.WithField("common_columns", len(common)).Debug("Nothing to audit")
		return synthetic.Clone(), report
	}

	synthCols := make([]int, len(common))
	origCols := make([]int, len(common))
	for k, name := range common {
		synthCols[k] = synthetic.ColumnIndex(name)
		origCols[k] = original.ColumnIndex(name)
	}

	seen := make(map[string]struct{}, original.Len())
	for r := 0; r < original.Len(); r++ {
		seen[original.RowKey(r, origCols)] = struct{}{}
	}

	for r := 0; r < synthetic.Len(); r++ {
		if _, leaked := seen[synthetic.RowKey(r, synthCols)]; leaked {
			report.RemovedIndices = append(report.RemovedIndices, r)
		}
	}
	report.Removed = len(report.RemovedIndices)

	out := synthetic.DropRows(report.RemovedIndices)
	report.Retained = out.Len()

	if report.Removed > 0 {
		a.logger.WithFields(logrus.Fields{
			"removed":  report.Removed,
			"retained": report.Retained,
		}).Warn("Removed synthetic rows that duplicate original records")
	} else {
		a.logger.WithField("checked", report.Checked).Info("No leaked records found")
	}

	return out, report
}
