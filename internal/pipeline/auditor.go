package pipeline

import (
	"context"

	"github.com/inferloop/tabsynth/internal/privacy"
)

const commandAudit = "audit"

// AuditOptions are the inputs of the audit command
type AuditOptions struct {
	Original  string
	Synthetic string
	// Output receives the synthetic rows that survive the audit; empty skips writing
	Output string
}

// Auditor checks an existing synthetic file for copied original rows
type Auditor struct {
	rt *Runtime
}

// NewAuditor creates an audit runner
func NewAuditor(rt *Runtime) *Auditor {
	return &Auditor{rt: rt}
}

// Run audits the synthetic data against the original
func (a *Auditor) Run(ctx context.Context, opts AuditOptions) (*privacy.LeakageReport, error) {
	original, err := a.rt.LoadDataset(ctx, opts.Original)
	if err != nil {
		return nil, a.rt.fail(commandAudit, err)
	}
	synthetic, err := a.rt.LoadDataset(ctx, opts.Synthetic)
	if err != nil {
		return nil, a.rt.fail(commandAudit, err)
	}

	retained, report := privacy.NewLeakageAuditor(a.rt.Logger).Audit(synthetic, original)
	a.rt.Metrics.RecordLeakedRows(report.Removed)

	if opts.Output != "" {
		if err := a.rt.WriteDataset(ctx, opts.Output, retained); err != nil {
			return nil, a.rt.fail(commandAudit, err)
		}
	}
	return report, nil
}
