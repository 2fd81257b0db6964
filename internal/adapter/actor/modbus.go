package actor

import (
	"fmt"
	"time"

	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/device"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/reugn/go-quartz/logger"
	"go.uber.org/zap"
)

const (
	MODBUS_ACTOR_ID = "modbus"
)

// ModbusActor owns the serial bus. Every RTU exchange goes through its
// mailbox, one background task at a time, so two requests can never overlap
// on the wire.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	driver   device.Driver
	timeout  time.Duration
	logger   *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(driver device.Driver, requestTimeout time.Duration, logger *zap.Logger) *ModbusActor {
	if requestTimeout <= 0 {
		requestTimeout = 2 * time.Second
	}
	act := &ModbusActor{
		driver:   driver,
		timeout:  requestTimeout,
		behavior: actor.NewBehavior(),
		stash:    &actorutil.Stash{},
		logger:   actorutil.ActorLogger("modbus", logger),
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("modbus@starting started")
		if err := state.driver.Open(); err != nil {
			panic(err)
		}
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case *actor.Restarting:
		_ = state.driver.Close()
	default:
		state.logger.Debug("modbus@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      MODBUS_ACTOR_ID,
			Healthy: true,
			State:   "idle",
		})
	case domain.GetDeviceInfoRequest:
		state.logger.Debug("modbus@default: GetDeviceInfoRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.getDeviceInfo),
			mapTaskResult[domain.GetDeviceInfoResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetDeviceInfoResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.PollMeasurementsRequest:
		state.logger.Debug("modbus@default: PollMeasurementsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.pollMeasurements),
			mapTaskResult[domain.PollMeasurementsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.PollMeasurementsResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ApplyPowerLimitRequest:
		state.logger.Debug("modbus@default: ApplyPowerLimitRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)
		limit := msg.Limit

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTaskNoError(ctx, func() *domain.ApplyPowerLimitResponse {
			a := state.applyPowerLimit(limit)
			return &a
		}),
			mapTaskResult[domain.ApplyPowerLimitResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ApplyPowerLimitResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Limit: limit,
				},
				replyTo: sender,
			}
		}).WithTimeout(state.timeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		_ = state.driver.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		_ = state.driver.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) getDeviceInfo() (*domain.GetDeviceInfoResponse, error) {
	info, err := a.driver.Info()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	return &domain.GetDeviceInfoResponse{
		Info: info,
	}, nil
}

func (a *ModbusActor) pollMeasurements() (*domain.PollMeasurementsResponse, error) {
	m, err := a.driver.Poll()
	if err != nil {
		logger.Error(err)
		return nil, err
	}
	if m.AcquiredAt.IsZero() {
		m.AcquiredAt = time.Now()
	}
	return &domain.PollMeasurementsResponse{
		Measurements: m,
	}, nil
}

func (a *ModbusActor) applyPowerLimit(limit sunspec.PowerLimit) domain.ApplyPowerLimitResponse {
	err := a.driver.ApplyPowerLimit(limit)
	if err != nil {
		logger.Error(err)
		return domain.ApplyPowerLimitResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
			Limit: limit,
		}
	}
	return domain.ApplyPowerLimitResponse{
		Limit: limit,
	}
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
