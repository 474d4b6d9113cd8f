package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStages() []Stage {
	return []Stage{
		{Name: "warmup", Duration: 10 * time.Minute},
		{Name: "cruise", Duration: 10 * time.Minute, ExpectedRPM: 3500, ExpectedESCCurrent: 10, ExpectedTotalCurrent: 80},
		{Name: "full", Duration: 10 * time.Minute, ExpectedRPM: 7000, ExpectedESCCurrent: 20, ExpectedTotalCurrent: 160},
	}
}

func TestNewPlan(t *testing.T) {
	p, err := NewPlan(testStages())
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, 30*time.Minute, p.Total())
	assert.Equal(t, "cruise", p.Stage(1).Name)
}

func TestNewPlanRejectsEmpty(t *testing.T) {
	_, err := NewPlan(nil)
	assert.Error(t, err)
}

func TestNewPlanRejectsZeroDuration(t *testing.T) {
	_, err := NewPlan([]Stage{{Name: "bad", Duration: 0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duration")
}

func TestNewPlanRejectsNegativeExpectation(t *testing.T) {
	_, err := NewPlan([]Stage{{Name: "bad", Duration: time.Minute, ExpectedRPM: -1}})
	assert.Error(t, err)
}

func TestNewPlanCopiesInput(t *testing.T) {
	stages := testStages()
	p, err := NewPlan(stages)
	require.NoError(t, err)

	stages[0].Name = "mutated"
	assert.Equal(t, "warmup", p.Stage(0).Name)
}

func TestResolveAt(t *testing.T) {
	p, err := NewPlan(testStages())
	require.NoError(t, err)

	tests := []struct {
		name      string
		elapsed   time.Duration
		wantIdx   int
		wantInSta time.Duration
	}{
		{"start", 0, 0, 0},
		{"mid first stage", 5 * time.Minute, 0, 5 * time.Minute},
		{"boundary starts next stage", 10 * time.Minute, 1, 0},
		{"mid second stage", 15 * time.Minute, 1, 5 * time.Minute},
		{"second boundary", 20 * time.Minute, 2, 0},
		{"last second of plan", 30*time.Minute - time.Second, 2, 10*time.Minute - time.Second},
		{"exactly at plan end saturates", 30 * time.Minute, 2, 10 * time.Minute},
		{"overrun saturates", 45 * time.Minute, 2, 10 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, inStage := p.ResolveAt(tt.elapsed)
			assert.Equal(t, tt.wantIdx, idx)
			assert.Equal(t, tt.wantInSta, inStage)
		})
	}
}

func TestResolveAtSingleStage(t *testing.T) {
	p, err := NewPlan([]Stage{{Name: "only", Duration: time.Minute}})
	require.NoError(t, err)

	idx, inStage := p.ResolveAt(30 * time.Second)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 30*time.Second, inStage)

	idx, inStage = p.ResolveAt(2 * time.Minute)
	assert.Equal(t, 0, idx)
	assert.Equal(t, time.Minute, inStage)
}
