package sim

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propdyn/benchguard/internal/stage"
	"github.com/propdyn/benchguard/internal/store"
	"github.com/propdyn/benchguard/internal/telemetry"
	"github.com/propdyn/benchguard/internal/ws"
)

func newTestRunner(t *testing.T, fault string) (*Runner, *store.Memory) {
	t.Helper()
	plan, err := stage.NewPlan([]stage.Stage{
		{Name: "cruise", Duration: time.Hour, ExpectedRPM: 3500, ExpectedESCCurrent: 10, ExpectedTotalCurrent: 80},
	})
	require.NoError(t, err)

	log := logrus.New()
	log.SetOutput(io.Discard)

	st := store.NewMemory()
	return &Runner{
		Store:       st,
		Plan:        plan,
		Hub:         ws.NewHub(),
		Log:         log,
		Interval:    time.Second,
		EnableParam: "SCR_USER4",
		Fault:       fault,
	}, st
}

func TestStepIdleWhenFlagClear(t *testing.T) {
	r, st := newTestRunner(t, "")
	st.SetFlag("SCR_USER4", 0)

	r.step()

	for i := 0; i < telemetry.NumESC; i++ {
		v, err := st.ReadChannel(context.Background(), telemetry.ESCChannel(i, "rpm"))
		require.NoError(t, err)
		assert.Zero(t, v)
	}
	volts, err := st.ReadChannel(context.Background(), telemetry.TotalVoltageChannel())
	require.NoError(t, err)
	assert.InDelta(t, 50.2, volts, 0.001)
}

func TestStepTracksStageExpectations(t *testing.T) {
	r, st := newTestRunner(t, "")
	st.SetFlag("SCR_USER4", 1)

	r.step()

	for i := 0; i < telemetry.NumESC; i++ {
		rpm, err := st.ReadChannel(context.Background(), telemetry.ESCChannel(i, "rpm"))
		require.NoError(t, err)
		assert.InDelta(t, 3500, rpm, 3500*0.03)

		temp, err := st.ReadChannel(context.Background(), telemetry.ESCChannel(i, "temp"))
		require.NoError(t, err)
		assert.Less(t, temp, 60.0)
	}
	total, err := st.ReadChannel(context.Background(), telemetry.TotalCurrentChannel())
	require.NoError(t, err)
	assert.InDelta(t, 80, total, 80*0.04)
}

func TestStepInjectsFault(t *testing.T) {
	r, st := newTestRunner(t, "overtemp")
	st.SetFlag("SCR_USER4", 1)

	r.step()

	temp, err := st.ReadChannel(context.Background(), telemetry.ESCChannel(4, "temp"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, temp, 84.0)
}

func TestStepStallFault(t *testing.T) {
	r, st := newTestRunner(t, "stall")
	st.SetFlag("SCR_USER4", 1)

	r.step()

	rpm, err := st.ReadChannel(context.Background(), telemetry.ESCChannel(2, "rpm"))
	require.NoError(t, err)
	assert.Less(t, rpm, 400.0)
}
