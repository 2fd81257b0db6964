package sunspec

import (
	"errors"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Port       uint
	MaxClients uint
	Timeout    time.Duration
}

// Handler answers SunSpec register traffic from the store. Every read is
// served from exactly one snapshot load, so a single response can never mix
// two poll cycles.
type Handler struct {
	store  *Store
	logger *zap.Logger
}

func NewHandler(store *Store, logger *zap.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger.With(zap.String("component", "sunspec_server")),
	}
}

func (h *Handler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

func (h *Handler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.IsWrite {
		if err := h.store.WriteRange(req.Addr, req.Args); err != nil {
			h.logger.Debug("rejected register write",
				zap.Uint16("addr", req.Addr), zap.Int("quantity", len(req.Args)), zap.Error(err))
			return nil, mapStoreError(err)
		}
		h.logger.Info("power limit written",
			zap.Uint16("addr", req.Addr), zap.Any("limit", h.store.PowerLimit()))
		return req.Args, nil
	}
	words, err := h.store.ReadRange(req.Addr, req.Quantity)
	if err != nil {
		h.logger.Debug("rejected register read",
			zap.Uint16("addr", req.Addr), zap.Uint16("quantity", req.Quantity), zap.Error(err))
		return nil, mapStoreError(err)
	}
	return words, nil
}

func (h *Handler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	// read-only mirror of the holding map, for clients polling FC4
	words, err := h.store.ReadRange(req.Addr, req.Quantity)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return words, nil
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, ErrOutOfRange), errors.Is(err, ErrReadOnly):
		return modbus.ErrIllegalDataAddress
	case errors.Is(err, ErrInvalidValue):
		return modbus.ErrIllegalDataValue
	default:
		return modbus.ErrServerDeviceFailure
	}
}

// NewServer builds the network-facing Modbus TCP server. Request ordering,
// per-connection timeouts and client limits are the transport library's job;
// the handler above only ever touches the store.
func NewServer(cfg ServerConfig, store *Store, logger *zap.Logger) (*modbus.ModbusServer, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	maxClients := cfg.MaxClients
	if maxClients == 0 {
		maxClients = 5
	}
	return modbus.NewServer(&modbus.ServerConfiguration{
		URL:        fmt.Sprintf("tcp://0.0.0.0:%d", cfg.Port),
		Timeout:    timeout,
		MaxClients: maxClients,
	}, NewHandler(store, logger))
}
