package actor

import (
	"sync"
	"testing"
	"time"

	adactor "sunspecbridge/internal/adapter/actor"
	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/util"
	"sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/device"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type pollerFixture struct {
	as          *actor.ActorSystem
	context     *actor.RootContext
	drv         *device.TestDriver
	store       *sunspec.Store
	eventStream *eventstream.EventStream
	modbusPID   *actor.PID
	pollerPID   *actor.PID

	mu     sync.Mutex
	events []any
}

func (f *pollerFixture) publishedEvents() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.events))
	copy(out, f.events)
	return out
}

func (f *pollerFixture) shutdown() {
	f.context.Stop(f.pollerPID)
	f.context.Stop(f.modbusPID)
	f.as.Shutdown()
}

func newPollerFixture(t *testing.T) *pollerFixture {
	t.Helper()

	cfg := util.LoadTestConfig()
	cfg.Device.PollIntervalMillis = 200

	logger := zap.Must(zap.NewDevelopment())

	f := &pollerFixture{
		drv:         device.NewTestDriver(),
		store:       sunspec.NewStore(sunspec.DeviceInfo{}, uint16(cfg.SunSpec.ModbusAddress)),
		eventStream: &eventstream.EventStream{},
	}
	f.eventStream.Subscribe(func(value any) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.events = append(f.events, value)
	})

	f.as = actorutil.NewActorSystemWithZapLogger(logger)
	f.context = f.as.Root

	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(f.drv, 2*time.Second, logger)
	})
	modbusPID, err := f.context.SpawnNamed(modbusProps, "modbus")
	if err != nil {
		t.Fatal(err)
	}
	f.modbusPID = modbusPID

	pollerProps := actor.PropsFromProducer(func() actor.Actor {
		return NewPollerActor(&cfg, modbusPID, f.store, f.eventStream, logger)
	})
	pollerPID, err := f.context.SpawnNamed(pollerProps, "poller")
	if err != nil {
		t.Fatal(err)
	}
	f.pollerPID = pollerPID

	return f
}

func TestPollerFeedsStore(t *testing.T) {

	assert := assert.New(t)

	f := newPollerFixture(t)
	defer f.shutdown()

	time.Sleep(1 * time.Second)

	// identity acquired once on boot
	info := f.store.Info()
	assert.Equal("Demo", info.Manufacturer)
	assert.Equal("DEADBEEF", info.Serial)

	// measurements flow into the store
	m, ok := f.store.Measurements()
	assert.True(ok, "store holds a snapshot")
	assert.True(m.ACVoltage >= 230 && m.ACVoltage <= 232, "demo voltage script")
	assert.False(f.store.LastUpdate().IsZero())
	assert.True(f.drv.PollCount() >= 2, "keeps polling")

	// sensor updates reach the event stream
	var sawVoltage, sawFresh bool
	for _, ev := range f.publishedEvents() {
		switch e := ev.(type) {
		case domain.FloatSensorUpdateEvent:
			if e.Id == "ac_voltage" {
				sawVoltage = true
			}
		case domain.BinarySensorUpdateEvent:
			if e.Id == "data_stale" && !e.Value {
				sawFresh = true
			}
		}
	}
	assert.True(sawVoltage, "ac_voltage event published")
	assert.True(sawFresh, "staleness cleared after good poll")

	// health check
	res, err := f.context.RequestFuture(f.pollerPID, domain.ActorHealthRequest{}, 5*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := res.(domain.ActorHealthResponse)
	assert.True(ok)
	assert.True(resp.Healthy)
	assert.Equal(domain.ACTOR_ID_POLLER, resp.Id)
}

func TestPollerAppliesPendingPowerLimit(t *testing.T) {

	assert := assert.New(t)

	f := newPollerFixture(t)
	defer f.shutdown()

	time.Sleep(500 * time.Millisecond)

	// a client writes WMaxLimPct then WMaxLim_Ena through the register store
	assert.NoError(f.store.WriteRange(40155, []uint16{60}))
	assert.NoError(f.store.WriteRange(40159, []uint16{1}))

	time.Sleep(1 * time.Second)

	applied := f.drv.AppliedLimits()
	if assert.NotEmpty(applied, "limit pushed to the device on the next tick") {
		last := applied[len(applied)-1]
		assert.True(last.Enabled)
		assert.InDelta(60.0, last.Percent, 0.01)
	}

	// the limit is applied once, not on every tick
	assert.Len(applied, 1)

	var sawLimit bool
	for _, ev := range f.publishedEvents() {
		if e, ok := ev.(domain.FloatSensorUpdateEvent); ok && e.Id == "power_limit" {
			sawLimit = true
			assert.InDelta(60.0, e.Value, 0.01)
		}
	}
	assert.True(sawLimit, "power_limit event published")
}

func TestPollerBackoffProgression(t *testing.T) {

	assert := assert.New(t)

	cfg := util.LoadTestConfig()
	cfg.Device.PollIntervalMillis = 1000
	cfg.Device.MaxBackoffMillis = 30000

	p := &PollerActor{config: &cfg}

	p.failures = 0
	assert.Equal(1*time.Second, p.nextPollDelay(), "healthy bus polls at the configured interval")
	p.failures = 1
	assert.Equal(2*time.Second, p.nextPollDelay())
	p.failures = 2
	assert.Equal(4*time.Second, p.nextPollDelay())
	p.failures = 3
	assert.Equal(8*time.Second, p.nextPollDelay())
	p.failures = 4
	assert.Equal(16*time.Second, p.nextPollDelay())
	p.failures = 5
	assert.Equal(30*time.Second, p.nextPollDelay(), "capped at max_backoff_millis")
	p.failures = 50
	assert.Equal(30*time.Second, p.nextPollDelay(), "cap holds for long outages")

	// without a cap the shift guard keeps the delay finite
	cfg.Device.MaxBackoffMillis = 0
	p.failures = 50
	assert.Equal((1<<16)*time.Second, p.nextPollDelay())
}

func TestPollerKeepsLastGoodSnapshot(t *testing.T) {

	assert := assert.New(t)

	f := newPollerFixture(t)
	defer f.shutdown()

	time.Sleep(500 * time.Millisecond)

	before, ok := f.store.Measurements()
	assert.True(ok)
	lastUpdate := f.store.LastUpdate()

	f.drv.FailNext(2)

	time.Sleep(700 * time.Millisecond)

	// failed polls never clear the served snapshot
	after, ok := f.store.Measurements()
	assert.True(ok, "last good snapshot still served")
	assert.NotNil(after)
	assert.NotNil(before)

	// and polling resumes once the bus recovers
	time.Sleep(1 * time.Second)
	assert.True(f.store.LastUpdate().After(lastUpdate), "fresh snapshot after recovery")
}
