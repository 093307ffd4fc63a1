package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samples at fixed geometry positions under DefaultConfig.
var (
	sampleIdle    = MagSample{X: 0, Y: 0, Z: 0}       // inside keepout
	sampleSector1 = MagSample{X: 2000, Y: 0, Z: 300}  // az 0
	sampleSector2 = MagSample{X: 0, Y: 2000, Z: 300}  // az 90
	sampleSector4 = MagSample{X: -2000, Y: 0, Z: 300} // az 180
)

func drain(d *Detector) []Event {
	var out []Event
	for {
		e, ok := d.PopEvent()
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

// warmUp feeds the smoothing ring with idle samples at 10 ms cadence and
// returns the next free timestamp.
func warmUp(d *Detector) uint32 {
	for i := 0; i < smoothLen; i++ {
		d.ProcessSample(sampleIdle, uint32(i*10))
	}
	return smoothLen * 10
}

func TestWarmUpEmitsNothing(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < smoothLen; i++ {
		d.ProcessSample(sampleSector1, uint32(i*10))
		assert.Equal(t, 0, d.PendingEvents(), "sample %d", i)
	}
	sector, _ := d.SectorState()
	assert.Equal(t, uint8(1), sector)
}

func TestActivationStartsSession(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	events := drain(d)

	require.Equal(t, []EventType{EventSectorActivated, EventSessionStarted}, types(events))
	assert.Equal(t, uint8(1), events[0].P0)
	assert.Equal(t, uint16(now), events[0].P3)

	// Session markers carry no parameters.
	assert.Equal(t, uint8(0), events[1].P0)
	assert.Equal(t, uint8(0), events[1].P1)
	assert.Equal(t, uint8(0), events[1].P2)
}

func TestSecondActivationDoesNotRestartSession(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	// Leave and re-enter while the session is still live.
	d.ProcessSample(sampleIdle, now+10)
	drain(d)
	d.ProcessSample(sampleSector1, now+20)

	got := types(drain(d))
	require.Contains(t, got, EventSectorActivated)
	assert.NotContains(t, got, EventSessionStarted)
}

func TestSectorChangedCarriesBothSectors(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	// Non-adjacent jump, well past the passing window.
	d.ProcessSample(sampleSector4, now+100)
	events := drain(d)

	require.NotEmpty(t, events)
	assert.Equal(t, EventSectorChanged, events[0].Type)
	assert.Equal(t, uint8(1), events[0].P0)
	assert.Equal(t, uint8(4), events[0].P1)
	// Speed is reserved for activation and intensity events.
	assert.Equal(t, uint8(0), events[0].P2)
}

func TestAdjacentFastChangeIsPassing(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	d.ProcessSample(sampleSector2, now+10)
	events := drain(d)

	require.NotEmpty(t, events)
	assert.Equal(t, EventPassingSectorChange, events[0].Type)
	assert.Equal(t, uint8(2), events[0].P0)
}

func TestAdjacentSlowChangeIsSectorChanged(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	d.ProcessSample(sampleSector2, now+passingWindowMS)
	events := drain(d)

	require.NotEmpty(t, events)
	assert.Equal(t, EventSectorChanged, events[0].Type)
}

func TestIntensityChangeNeedsThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChangeThreshold = 3.0
	d := New(cfg)

	// Saturate the ring at a stable sector-1 elevation.
	now := uint32(0)
	for i := 0; i < smoothLen+smoothLen; i++ {
		d.ProcessSample(sampleSector1, now)
		now += 10
	}
	drain(d)

	// Identical sample: smoothed elevation is unchanged.
	d.ProcessSample(sampleSector1, now)
	assert.Empty(t, drain(d))
	now += 10

	// A large z jump moves the smoothed average past the threshold.
	for i := 0; i < smoothLen; i++ {
		d.ProcessSample(MagSample{X: 2000, Y: 0, Z: 400}, now)
		now += 10
	}
	got := types(drain(d))
	assert.Contains(t, got, EventIntensityChange)
}

func TestElevationStateKeepsFraction(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	// Default geometry maps z in [150,405] to elevation z-150, so the
	// ring averages to 150.8. The intensity delta compares against the
	// exact average, not a truncated byte.
	for _, z := range []int16{300, 300, 300, 301, 303} {
		now += 10
		d.ProcessSample(MagSample{X: 2000, Y: 0, Z: z}, now)
	}
	drain(d)

	assert.InDelta(t, 150.8, float64(d.lastElevation), 0.001)
	_, stateElev := d.SectorState()
	assert.Equal(t, uint8(150), stateElev)
}

func TestDeactivationEndsSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeactivationTimeoutMS = 100
	d := New(cfg)
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	// Let the ring settle, then dwell without intensity changes past the
	// deactivation timeout.
	for i := 0; i < 30; i++ {
		now += 10
		d.ProcessSample(sampleSector1, now)
	}
	events := drain(d)
	got := types(events)
	require.Contains(t, got, EventSectionDeactivated)
	require.Contains(t, got, EventSessionEnded)
	for _, ev := range events {
		if ev.Type == EventSessionEnded {
			assert.Equal(t, uint8(0), ev.P0)
		}
	}

	// Deactivation of the same dwell fires once.
	now += 10
	d.ProcessSample(sampleSector1, now)
	assert.NotContains(t, types(drain(d)), EventSectionDeactivated)
}

func TestDeactivatedSectorSuppressesIntensity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeactivationTimeoutMS = 100
	d := New(cfg)
	now := warmUp(d)

	for i := 0; i < 40; i++ {
		d.ProcessSample(sampleSector1, now)
		now += 10
	}
	drain(d)

	// The sector is deactivated; elevation wobble alone stays silent.
	for i := 0; i < smoothLen; i++ {
		d.ProcessSample(MagSample{X: 2000, Y: 0, Z: 400}, now)
		now += 10
	}
	assert.NotContains(t, types(drain(d)), EventIntensityChange)
}

func TestReentryClearsDeactivation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DeactivationTimeoutMS = 100
	d := New(cfg)
	now := warmUp(d)

	for i := 0; i < 40; i++ {
		d.ProcessSample(sampleSector1, now)
		now += 10
	}
	drain(d)

	// Leaving and re-entering the sector resets its dwell clock.
	d.ProcessSample(sampleSector4, now)
	now += 10
	d.ProcessSample(sampleSector1, now)
	drain(d)

	for i := 0; i < smoothLen+2; i++ {
		now += 10
		d.ProcessSample(MagSample{X: 2000, Y: 0, Z: 400}, now)
	}
	assert.Contains(t, types(drain(d)), EventIntensityChange)
}

func TestMechanicalFailureRepeats(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	// A sampling gap longer than the session timeout while a sector is
	// held means the target stopped moving or the loop stalled.
	now += DefaultConfig().SessionTimeoutMS + 1
	d.ProcessSample(sampleSector1, now)
	assert.Contains(t, types(drain(d)), EventPossibleMechanicalFailure)

	now += DefaultConfig().SessionTimeoutMS + 1
	d.ProcessSample(sampleSector1, now)
	assert.Contains(t, types(drain(d)), EventPossibleMechanicalFailure)
}

func TestSessionEndsAfterIdleTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTimeoutMS = 200
	d := New(cfg)
	now := warmUp(d)

	d.ProcessSample(sampleSector1, now)
	drain(d)

	for i := 0; i < 30; i++ {
		now += 10
		d.ProcessSample(sampleIdle, now)
	}
	got := types(drain(d))
	assert.Contains(t, got, EventSessionEnded)
}

func TestNoDataDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTimeoutMS = 1000
	d := New(cfg)

	// The first timeout window after reset stays quiet.
	d.PostNoData(100)
	assert.Empty(t, drain(d))

	d.PostNoData(1000)
	require.Equal(t, []EventType{EventErrorNoData}, types(drain(d)))

	d.PostNoData(1500)
	assert.Empty(t, drain(d))

	d.PostNoData(2100)
	assert.Equal(t, []EventType{EventErrorNoData}, types(drain(d)))
}

func TestQueueOverflowDropsNewest(t *testing.T) {
	d := New(DefaultConfig())
	for i := 0; i < queueCap+5; i++ {
		d.queue.push(Event{Type: EventSectorActivated, P0: uint8(i)})
	}
	assert.Equal(t, queueCap, d.PendingEvents())
	assert.Equal(t, uint32(5), d.DroppedEvents())

	first, ok := d.PopEvent()
	require.True(t, ok)
	assert.Equal(t, uint8(0), first.P0)
}

func TestApplyConfigResetsStateKeepsQueue(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)
	d.ProcessSample(sampleSector1, now)
	require.NotZero(t, d.PendingEvents())

	pending := d.PendingEvents()
	d.ApplyConfig(DefaultConfig())

	sector, elev := d.SectorState()
	assert.Equal(t, uint8(0), sector)
	assert.Equal(t, uint8(0), elev)
	assert.Equal(t, pending, d.PendingEvents())
}

func TestSweepThroughAllSectors(t *testing.T) {
	d := New(DefaultConfig())
	now := warmUp(d)

	positions := []MagSample{
		sampleSector1,
		sampleSector2,
		{X: -2000, Y: 2000, Z: 300}, // az 135, sector 3
		sampleSector4,
		{X: 0, Y: -2000, Z: 300},    // az 270, sector 5
		{X: 2000, Y: -2000, Z: 300}, // az 315, sector 6
	}

	var visited []uint8
	for _, s := range positions {
		d.ProcessSample(s, now)
		now += 100
		sector, _ := d.SectorState()
		visited = append(visited, sector)
	}
	assert.Equal(t, []uint8{1, 2, 3, 4, 5, 6}, visited)

	got := types(drain(d))
	assert.Equal(t, EventSectorActivated, got[0])
	assert.Equal(t, EventSessionStarted, got[1])
	for _, tt := range got[2:] {
		assert.Equal(t, EventSectorChanged, tt)
	}
}
