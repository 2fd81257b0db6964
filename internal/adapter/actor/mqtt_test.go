package actor

import (
	"testing"
	"time"

	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/util"
	"sunspecbridge/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestMQTTActor(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	as := actorutil.NewActorSystemWithZapLogger(logger)

	context := as.Root

	props := actor.PropsFromProducer(func() actor.Actor { return NewTestMQTTActor(&cfg, logger) })
	pid := context.Spawn(props)

	time.Sleep(200 * time.Millisecond)

	msg := domain.ActorHealthRequest{}
	result, err := context.RequestFuture(pid, msg, 2*time.Second).Result()
	if err != nil {
		t.Error(err)
		return
	}
	resp, ok := result.(domain.ActorHealthResponse)
	assert.True(t, ok)
	assert.NotNil(t, resp)
	assert.True(t, resp.Healthy)

	context.Stop(pid)

	time.Sleep(200 * time.Millisecond)

	as.Shutdown()
}

func TestMQTTActorStopBeforeConnect(t *testing.T) {

	cfg := util.LoadTestConfig()

	logger := zap.Must(zap.NewDevelopment())

	// a restart or stop can arrive before the client was ever created
	act := NewMQTTActor(&cfg, logger)
	assert.NotPanics(t, func() { act.stop() })
}
