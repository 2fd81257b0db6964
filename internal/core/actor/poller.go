package actor

import (
	"fmt"
	"time"

	"sunspecbridge/internal/config"
	"sunspecbridge/internal/core/domain"
	"sunspecbridge/internal/core/events"
	. "sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/sunspec"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"
)

// PollerActor drives the poll loop: it asks the modbus actor for the device
// identity once, then polls measurements at the configured interval, pushes
// every good snapshot into the register store and publishes sensor update
// events. Pending power-limit writes taken from the store are applied on the
// next tick, before the poll, so a client write reaches the device within one
// poll interval.
type PollerActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	modbusActor *actor.PID
	store       *sunspec.Store
	config      *config.Config
	eventStream *eventstream.EventStream
	failures    uint
	wasStale    bool

	logger *zap.Logger
}

type pollTick struct {
}

type deviceInfoRetry struct {
}

func NewPollerActor(config *config.Config, modbusActor *actor.PID, store *sunspec.Store, eventStream *eventstream.EventStream, logger *zap.Logger) *PollerActor {
	act := &PollerActor{
		config:      config,
		modbusActor: modbusActor,
		store:       store,
		behavior:    actor.NewBehavior(),
		stash:       &Stash{},
		logger:      ActorLogger(domain.ACTOR_ID_POLLER, logger),
		eventStream: eventStream,
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *PollerActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *PollerActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("poller@starting started")

		state.scheduler = scheduler.NewTimerScheduler(ctx)
		state.requestDeviceInfo(ctx)
		state.behavior.Become(state.WaitingInfoReceive)
	case *actor.Restarting:
	default:
		state.logger.Debug("poller@starting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingInfoReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetDeviceInfoResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waitingInfo GetDeviceInfoResponse", zap.Error(msg.GetResponseError()))
			state.failures++
			state.scheduler.RequestOnce(state.nextPollDelay(), ctx.Self(), deviceInfoRetry{})
			return
		}
		state.logger.Debug("poller@waitingInfo GetDeviceInfoResponse",
			zap.String("manufacturer", msg.Info.Manufacturer), zap.String("serial", msg.Info.Serial))
		state.failures = 0
		if err := state.store.SetDeviceInfo(*msg.Info); err != nil {
			state.logger.Warn("poller@waitingInfo identity encode", zap.Error(err))
		}
		state.scheduler.RequestOnce(state.pollInterval(), ctx.Self(), pollTick{})
		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	case deviceInfoRetry:
		state.requestDeviceInfo(ctx)
	default:
		state.logger.Debug("poller@waitingInfo: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("poller@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      domain.ACTOR_ID_POLLER,
			Healthy: true,
			State:   "idle",
		})
	case pollTick:
		state.logger.Debug("poller@default tick")
		// apply a pending client power-limit write before reading back
		if limit, pending := state.store.TakePowerLimitChange(); pending {
			PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ApplyPowerLimitRequest{Limit: limit}, state.requestTimeout()), func(err error) any {
				return domain.ApplyPowerLimitResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
					Limit: limit,
				}
			})
		}
		// poll measurements
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.PollMeasurementsRequest{}, state.requestTimeout()), func(err error) any {
			return domain.PollMeasurementsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.WaitingPollReceive)
	case domain.ApplyPowerLimitResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@default ApplyPowerLimitResponse error", zap.Error(msg.GetResponseError()))
			return
		}
		state.logger.Debug("poller@default ApplyPowerLimitResponse",
			zap.Bool("enabled", msg.Limit.Enabled), zap.Float64("percent", msg.Limit.Percent))
		state.publish(events.PowerLimitToUpdateEvents(msg.Limit))
	default:
		state.logger.Debug("poller@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) WaitingPollReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.PollMeasurementsResponse:
		if msg.HasResponseError() {
			state.logger.Error("poller@waiting PollMeasurementsResponse error", zap.Error(msg.GetResponseError()))
			state.failures++
			// keep serving the last good snapshot, flag it once it ages out
			if stale := state.isStale(); stale && !state.wasStale {
				state.wasStale = true
				state.publish(events.StalenessToUpdateEvents(true))
			}
		} else {
			state.logger.Debug("poller@waiting PollMeasurementsResponse")
			state.failures = 0
			if err := state.store.Update(msg.Measurements); err != nil {
				state.logger.Warn("poller@waiting snapshot encode", zap.Error(err))
			}
			state.publish(events.MeasurementsToUpdateEvents(msg.Measurements))
			if state.wasStale {
				state.wasStale = false
			}
			state.publish(events.StalenessToUpdateEvents(false))
		}

		state.scheduler.RequestOnce(state.nextPollDelay(), ctx.Self(), pollTick{})
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("poller@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *PollerActor) requestDeviceInfo(ctx actor.Context) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetDeviceInfoRequest{}, state.requestTimeout()), func(err error) any {
		return domain.GetDeviceInfoResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{
				ResponseError: err,
			},
		}
	})
}

func (state *PollerActor) publish(evs []any) {
	for _, ev := range evs {
		state.eventStream.Publish(ev)
	}
}

func (state *PollerActor) isStale() bool {
	last := state.store.LastUpdate()
	if last.IsZero() {
		return true
	}
	staleAfter := time.Duration(state.config.Device.StaleAfterMillis) * time.Millisecond
	if staleAfter <= 0 {
		return false
	}
	return time.Since(last) > staleAfter
}

func (state *PollerActor) pollInterval() time.Duration {
	interval := time.Duration(state.config.Device.PollIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 1 * time.Second
	}
	return interval
}

// nextPollDelay doubles the poll interval per consecutive failure, capped at
// device.max_backoff_millis, so a dead bus is not hammered at full rate.
func (state *PollerActor) nextPollDelay() time.Duration {
	interval := state.pollInterval()
	if state.failures == 0 {
		return interval
	}
	shift := state.failures
	if shift > 16 {
		shift = 16
	}
	delay := interval << shift
	maxBackoff := time.Duration(state.config.Device.MaxBackoffMillis) * time.Millisecond
	if maxBackoff > 0 && delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func (state *PollerActor) requestTimeout() time.Duration {
	timeout := time.Duration(state.config.Device.RequestTimeoutMillis) * time.Millisecond
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	// leave headroom for the modbus actor's own exchange timeout
	return timeout + 500*time.Millisecond
}
