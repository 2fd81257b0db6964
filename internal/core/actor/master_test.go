package actor

import (
	"testing"
	"time"

	adactor "sunspecbridge/internal/adapter/actor"
	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/util"
	"sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/device"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMasterActor(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Device.PollIntervalMillis = 200
	cfg.MQTT.Enable = true

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)
	logger := zap.Must(logCfg.Build())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := sunspec.NewStore(sunspec.DeviceInfo{}, uint16(cfg.SunSpec.ModbusAddress))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, store, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(device.NewTestDriver(), 2*time.Second, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(2 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.NotNil(t, healthResp)

	assert.True(t, healthResp.Healthy, "healthy is true")
	assert.Equal(t, domain.ACTOR_ID_MASTER, healthResp.Id)

	// the poller has fed the store by now
	_, hasSnapshot := store.Measurements()
	assert.True(t, hasSnapshot, "store holds a snapshot")
	assert.Equal(t, "Demo", store.Info().Manufacturer)

	context.Stop(pid)

	as.Shutdown()
}

func TestMasterActorWithoutMQTT(t *testing.T) {

	cfg := util.LoadTestConfig()
	cfg.Device.PollIntervalMillis = 200
	cfg.MQTT.Enable = false

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)
	context := as.Root

	store := sunspec.NewStore(sunspec.DeviceInfo{}, uint16(cfg.SunSpec.ModbusAddress))

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterOfPuppetsActor(cfg, store, func() *adactor.ModbusActor {
			return adactor.NewModbusActor(device.NewTestDriver(), 2*time.Second, logger)
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := context.SpawnNamed(props, "master")
	if err != nil {
		t.Error(err)
		return
	}

	time.Sleep(1 * time.Second)

	res, err := context.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	healthResp, ok := res.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.True(t, healthResp.Healthy, "healthy without the MQTT child")

	context.Stop(pid)

	as.Shutdown()
}
