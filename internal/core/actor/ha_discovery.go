package actor

import (
	"errors"
	"fmt"
	"time"

	"sunspecbridge/internal/config"
	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/core/events"
	"sunspecbridge/internal/util/actorutil"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"
)

// HADiscoveryActor announces the bridge and the bridged device to Home
// Assistant once on boot. It waits for both the modbus and MQTT actors to be
// healthy, reads the device identity plus one measurement sample to learn
// which optional points exist, then hands the discovery payloads to the MQTT
// actor and goes quiet.
type HADiscoveryActor struct {
	config             *config.Config
	behavior           actor.Behavior
	stash              *actorutil.Stash
	modbusActor        *actor.PID
	mqttActor          *actor.PID
	modbusActorHealthy bool
	mqttActorHealthy   bool
	healthyRecv        int
	deviceInfo         *domain.GetDeviceInfoResponse

	logger *zap.Logger
}

func NewHADiscoveryActor(config *config.Config, modbusActor *actor.PID, mqttActor *actor.PID, logger *zap.Logger) *HADiscoveryActor {
	act := &HADiscoveryActor{
		config:      config,
		modbusActor: modbusActor,
		mqttActor:   mqttActor,
		behavior:    actor.NewBehavior(),
		stash:       &actorutil.Stash{},
		logger:      actorutil.ActorLogger(domain.ACTOR_ID_HA_DISCOVERY, logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *HADiscoveryActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *HADiscoveryActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("hadiscovery@starting started")

		// Check Modbus and MQTT actor healthy
		state.healthyRecv = 0
		state.modbusActorHealthy = false
		state.mqttActorHealthy = false
		// Modbus Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MODBUS,
				Healthy: false,
			}
		})
		// MQTT Actor Request
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.mqttActor, domain.ActorHealthRequest{}, 2*time.Second), func(err error) any {
			return domain.ActorHealthResponse{
				Id:      domain.ACTOR_ID_MQTT,
				Healthy: false,
			}
		})
		state.behavior.Become(state.WaitingHealthyReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("hadiscovery@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingHealthyReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthResponse:
		state.logger.Debug("hadiscovery@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.healthyRecv++
		if msg.Healthy {
			switch msg.Id {
			case domain.ACTOR_ID_MODBUS:
				state.modbusActorHealthy = true
			case domain.ACTOR_ID_MQTT:
				state.mqttActorHealthy = true
			}
		}
		if state.healthyRecv == 2 {

			if state.modbusActorHealthy && state.mqttActorHealthy {
				// Ask Modbus GetDeviceInfoRequest
				actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetDeviceInfoRequest{}, 2*time.Second), func(err error) any {
					return domain.GetDeviceInfoResponse{
						ActorResponseMixIn: domain.ActorResponseMixIn{
							ResponseError: err,
						},
					}
				})
				state.behavior.Become(state.WaitingInfoReceive)
				state.stash.UnstashAll(ctx)
			} else {
				panic(errors.New("MQTT Actor or Modbus Actor are not healthy"))
			}
		}
	default:
		state.logger.Debug("hadiscovery@healthcheck: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *HADiscoveryActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@info: GetDeviceInfoResponse", zap.Any("response", msg))
		state.deviceInfo = &msg

		// one sample poll tells us which optional points the device has
		actorutil.PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.PollMeasurementsRequest{}, 2*time.Second), func(err error) any {
			return domain.PollMeasurementsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.Become(state.WaitingSampleReceive)
	default:
		state.logger.Debug("hadiscovery@info: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) WaitingSampleReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PollMeasurementsResponse:
		if msg.HasResponseError() {
			panic(msg.GetResponseError())
		}
		state.logger.Debug("hadiscovery@sample: PollMeasurementsResponse")

		info := state.deviceInfo.Info
		hasDC := msg.Measurements.DCVoltage != nil || msg.Measurements.DCPowerWatt != nil
		hasTemperature := msg.Measurements.CabinetTemperature != nil

		var sensors []domain.GenericSensor

		bridgeDevice := events.BridgeDevice(state.config.MQTT.BaseTopic)
		sensors = append(sensors, events.BridgeSensors(bridgeDevice)...)

		sourceDevice := events.SourceDevice(info)
		sourceDevice.ViaDevice = bridgeDevice.Id
		sourceSensors := events.SourceDeviceSensors(sourceDevice, info, hasDC, hasTemperature)
		for i := range sourceSensors {
			if i > 0 {
				sourceSensors[i].Device = events.IdDevice(sourceDevice)
			}
			sensors = append(sensors, sourceSensors[i])
		}

		ctx.Send(state.mqttActor, domain.PublishDiscoveryRequest{
			Sensors: sensors,
		})
		state.behavior.Become(state.Done)
	default:
		state.logger.Debug("hadiscovery@sample: default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *HADiscoveryActor) Done(ctx actor.Context) {

}
