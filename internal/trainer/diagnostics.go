package trainer

import (
	"context"
	"fmt"

	"github.com/cartridge/trajectory/internal/types"
)

// DiagnosticStep is a learner-free TrainStep that reports batch statistics:
// mean reward across agents and the fraction of real (non-padded) timesteps.
// It drives the loop for throughput checks and pipeline smoke runs when no
// learner is attached.
type DiagnosticStep struct{}

// NewDiagnosticStep creates a diagnostics-only train step.
func NewDiagnosticStep() *DiagnosticStep {
	return &DiagnosticStep{}
}

// Step satisfies TrainStep.
func (d *DiagnosticStep) Step(ctx context.Context, batch types.Batch) (map[string]float64, error) {
	if batch.Mask.Len() == 0 {
		return nil, fmt.Errorf("trainer: empty batch")
	}

	var rewardSum float64
	var rewardCount int
	for _, r := range batch.Rewards {
		for _, v := range r.Data {
			rewardSum += float64(v)
		}
		rewardCount += r.Len()
	}

	var maskSum float64
	for _, v := range batch.Mask.Data {
		maskSum += float64(v)
	}

	metrics := map[string]float64{
		"mask_fill": maskSum / float64(batch.Mask.Len()),
	}
	if rewardCount > 0 {
		metrics["reward_mean"] = rewardSum / float64(rewardCount)
	}
	return metrics, nil
}
