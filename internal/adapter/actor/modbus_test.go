package actor

import (
	"testing"
	"time"

	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/device"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestGetDeviceInfoModbusActor(t *testing.T) {

	assert := assert.New(t)

	drv := device.NewTestDriver()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(drv, 2*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(200 * time.Millisecond)

	msg := domain.GetDeviceInfoRequest{}
	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.GetDeviceInfoResponse)

	assert.False(resp.HasResponseError())
	assert.Equal("Demo", resp.Info.Manufacturer, "device manufacturer")
	assert.Equal("Generic", resp.Info.Model, "device model")
	assert.Equal("DEADBEEF", resp.Info.Serial, "device serial")

	context.Stop(pid)

	as.Shutdown()
}

func TestPollMeasurementsModbusActor(t *testing.T) {

	assert := assert.New(t)

	drv := device.NewTestDriver()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(drv, 2*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(200 * time.Millisecond)

	msg := domain.PollMeasurementsRequest{}

	result, err := context.RequestFuture(pid, msg, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.PollMeasurementsResponse)

	assert.False(resp.HasResponseError())
	assert.True(resp.Measurements.ACVoltage > 0, "ACVoltage bounds")
	assert.True(resp.Measurements.ActivePowerWatt > 0, "ActivePowerWatt bounds")
	assert.False(resp.Measurements.AcquiredAt.IsZero(), "acquisition timestamp set")

	context.Stop(pid)

	as.Shutdown()
}

func TestPollFailureModbusActor(t *testing.T) {

	assert := assert.New(t)

	drv := device.NewTestDriver()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(drv, 2*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(200 * time.Millisecond)

	drv.FailNext(1)

	result, err := context.RequestFuture(pid, domain.PollMeasurementsRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.PollMeasurementsResponse)
	assert.True(resp.HasResponseError(), "bus failure surfaces as response error")

	// the actor stays usable afterwards
	result, err = context.RequestFuture(pid, domain.PollMeasurementsRequest{}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp = result.(domain.PollMeasurementsResponse)
	assert.False(resp.HasResponseError(), "recovers after a failed exchange")

	context.Stop(pid)

	as.Shutdown()
}

func TestApplyPowerLimitModbusActor(t *testing.T) {

	assert := assert.New(t)

	drv := device.NewTestDriver()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewModbusActor(drv, 2*time.Second, logger) })
	pid := context.Spawn(props)

	time.Sleep(200 * time.Millisecond)

	limit := sunspec.PowerLimit{Enabled: true, Percent: 60}
	result, err := context.RequestFuture(pid, domain.ApplyPowerLimitRequest{Limit: limit}, 15*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp := result.(domain.ApplyPowerLimitResponse)

	assert.False(resp.HasResponseError())
	assert.Equal(limit, resp.Limit)

	applied := drv.AppliedLimits()
	assert.Len(applied, 1)
	assert.Equal(limit, applied[0])

	context.Stop(pid)

	as.Shutdown()
}
