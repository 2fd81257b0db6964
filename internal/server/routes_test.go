package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sunspecbridge/internal/util"
	"sunspecbridge/pkg/sunspec"

	"github.com/stretchr/testify/assert"
)

func testServer() (*Server, *sunspec.Store) {
	cfg := util.LoadTestConfig()
	store := sunspec.NewStore(sunspec.DeviceInfo{
		Manufacturer:       "Demo",
		Model:              "Generic",
		Version:            "0.1",
		Serial:             "DEADBEEF",
		MaxRatedPowerWatt:  3000,
		SupportsPowerLimit: true,
	}, uint16(cfg.SunSpec.ModbusAddress))
	s := &Server{
		port:       cfg.Port,
		config:     cfg,
		store:      store,
		staleAfter: time.Duration(cfg.Device.StaleAfterMillis) * time.Millisecond,
	}
	return s, store
}

func TestMeasurementsHandlerBeforeFirstPoll(t *testing.T) {
	assert := assert.New(t)

	s, _ := testServer()
	handler := s.RegisterRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/measurements", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestMeasurementsHandler(t *testing.T) {
	assert := assert.New(t)

	s, store := testServer()
	err := store.Update(&sunspec.Measurements{
		ACVoltage:       230.4,
		ACCurrent:       2.1,
		FrequencyHz:     50.02,
		ActivePowerWatt: 483,
		TotalEnergyWh:   1234000,
		OperatingState:  sunspec.OperatingStateMPPT,
		AcquiredAt:      time.Now(),
	})
	assert.NoError(err)

	handler := s.RegisterRoutes()
	req := httptest.NewRequest(http.MethodGet, "/api/measurements", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var resp measurementsResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(230.4, resp.Measurements.ACVoltage, 0.01)
	assert.False(resp.Stale)
	assert.True(resp.AgeMillis < 5000)
}

func TestMeasurementsHandlerStale(t *testing.T) {
	assert := assert.New(t)

	s, store := testServer()
	err := store.Update(&sunspec.Measurements{
		ACVoltage:      230.4,
		OperatingState: sunspec.OperatingStateMPPT,
		AcquiredAt:     time.Now().Add(-1 * time.Minute),
	})
	assert.NoError(err)

	handler := s.RegisterRoutes()
	req := httptest.NewRequest(http.MethodGet, "/api/measurements", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var resp measurementsResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(resp.Stale, "snapshot older than stale_after_millis")
}

func TestDeviceHandler(t *testing.T) {
	assert := assert.New(t)

	s, _ := testServer()
	handler := s.RegisterRoutes()

	req := httptest.NewRequest(http.MethodGet, "/api/device", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var info sunspec.DeviceInfo
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal("Demo", info.Manufacturer)
	assert.Equal("DEADBEEF", info.Serial)
	assert.True(info.SupportsPowerLimit)
}

func TestSunSpecModelHandler(t *testing.T) {
	assert := assert.New(t)

	s, store := testServer()
	err := store.Update(&sunspec.Measurements{
		ACVoltage:       230.4,
		ACCurrent:       2.1,
		FrequencyHz:     50.02,
		ActivePowerWatt: 483,
		TotalEnergyWh:   1234000,
		OperatingState:  sunspec.OperatingStateMPPT,
		AcquiredAt:      time.Now(),
	})
	assert.NoError(err)

	handler := s.RegisterRoutes()
	req := httptest.NewRequest(http.MethodGet, "/api/sunspec", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var decoded sunspec.DecodedModel
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &decoded))
	assert.Equal("Demo", decoded.Manufacturer)
	if assert.NotNil(decoded.ACVoltage) {
		assert.InDelta(230.4, *decoded.ACVoltage, 0.1)
	}
	assert.Equal(uint64(1234000), decoded.TotalEnergyWh)
}

func TestConfigHandlerRedactsSecrets(t *testing.T) {
	assert := assert.New(t)

	s, _ := testServer()
	s.config.MQTT.Username = "user"
	s.config.MQTT.Password = "hunter2"

	handler := s.RegisterRoutes()
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)
	assert.NotContains(rec.Body.String(), "hunter2")
	assert.Contains(rec.Body.String(), "*redacted*")
}

func TestPowerLimitHandler(t *testing.T) {
	assert := assert.New(t)

	s, store := testServer()
	assert.NoError(store.WriteRange(40155, []uint16{60}))
	assert.NoError(store.WriteRange(40159, []uint16{1}))

	handler := s.RegisterRoutes()
	req := httptest.NewRequest(http.MethodGet, "/api/powerlimit", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(http.StatusOK, rec.Code)

	var limit sunspec.PowerLimit
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &limit))
	assert.True(limit.Enabled)
	assert.InDelta(60.0, limit.Percent, 0.01)
}
