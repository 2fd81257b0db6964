package domain

import "sunspecbridge/pkg/sunspec"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MODBUS       = "modbus"
	ACTOR_ID_POLLER       = "poller"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

type GetDeviceInfoRequest struct {
	ActorRequestMixIn
}

type GetDeviceInfoResponse struct {
	ActorResponseMixIn
	Info *sunspec.DeviceInfo
}

type PollMeasurementsRequest struct {
	ActorRequestMixIn
}

type PollMeasurementsResponse struct {
	ActorResponseMixIn
	Measurements *sunspec.Measurements
}

type ApplyPowerLimitRequest struct {
	ActorRequestMixIn
	Limit sunspec.PowerLimit
}

type ApplyPowerLimitResponse struct {
	ActorResponseMixIn
	Limit sunspec.PowerLimit
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
