// Package stage models the planned test sequence: an ordered set of
// time-boxed stages, each with the operating point the anomaly checks
// compare against, and the resolver that maps elapsed test time onto the
// active stage.
package stage

import (
	"errors"
	"fmt"
	"time"
)

// Stage is one phase of the test plan. A zero expectation means the
// corresponding check is skipped for this stage.
type Stage struct {
	Name                 string        `json:"name"`
	Duration             time.Duration `json:"duration"`
	ExpectedRPM          float64       `json:"expected_rpm"`
	ExpectedESCCurrent   float64       `json:"expected_esc_current"`
	ExpectedTotalCurrent float64       `json:"expected_total_current"`
}

// Plan is the immutable, ordered stage sequence. Stages partition the
// timeline contiguously from zero; the plan's total duration is the sum of
// stage durations.
type Plan struct {
	stages []Stage
	total  time.Duration
}

// NewPlan validates the stages and builds a Plan.
func NewPlan(stages []Stage) (Plan, error) {
	if len(stages) == 0 {
		return Plan{}, errors.New("plan needs at least one stage")
	}

	var total time.Duration
	for i, s := range stages {
		if s.Duration <= 0 {
			return Plan{}, fmt.Errorf("stage %d (%s): duration must be > 0", i+1, s.Name)
		}
		if s.ExpectedRPM < 0 || s.ExpectedESCCurrent < 0 || s.ExpectedTotalCurrent < 0 {
			return Plan{}, fmt.Errorf("stage %d (%s): expectations must be >= 0", i+1, s.Name)
		}
		total += s.Duration
	}

	cp := make([]Stage, len(stages))
	copy(cp, stages)
	return Plan{stages: cp, total: total}, nil
}

// Len returns the number of stages.
func (p Plan) Len() int { return len(p.stages) }

// Stage returns the stage at index i.
func (p Plan) Stage(i int) Stage { return p.stages[i] }

// Stages returns a copy of the stage sequence.
func (p Plan) Stages() []Stage {
	cp := make([]Stage, len(p.stages))
	copy(cp, p.stages)
	return cp
}

// Total returns the planned duration of the whole test.
func (p Plan) Total() time.Duration { return p.total }

// ResolveAt maps elapsed test time to (active stage index, elapsed within
// that stage). Beyond the planned total it saturates: the last stage stays
// active with its in-stage time clamped to the stage duration, so the test
// can be monitored past its nominal end without erroring.
func (p Plan) ResolveAt(elapsed time.Duration) (int, time.Duration) {
	var accum time.Duration
	for i, s := range p.stages {
		if elapsed < accum+s.Duration {
			return i, elapsed - accum
		}
		accum += s.Duration
	}
	last := len(p.stages) - 1
	return last, p.stages[last].Duration
}
