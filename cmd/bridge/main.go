package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "sunspecbridge/internal/adapter/actor"
	"sunspecbridge/internal/config"
	"sunspecbridge/internal/core/actor"
	"sunspecbridge/internal/server"
	"sunspecbridge/internal/util/actorutil"
	"sunspecbridge/pkg/device"
	"sunspecbridge/pkg/sunspec"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	// Create context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Listen for the interrupt signal.
	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	log.Println("Server exiting")

	// Notify the main goroutine that the shutdown is complete
	done <- true
}

func main() {

	// load and print config
	cfg, err := initConfig()
	if err != nil {
		slog.Error("config errors", "error", err)
		return
	}
	safePrintConfig(*cfg)

	// zap logger
	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(cfg.LogLevel)

	logger := zap.Must(zapCfg.Build())

	// init actor system
	as := actorutil.NewActorSystemWithZapLogger(logger)
	ctx := as.Root

	defer logger.Sync()

	// register store, empty identity until the first device read
	store := sunspec.NewStore(sunspec.DeviceInfo{}, uint16(cfg.SunSpec.ModbusAddress))

	// init Modbus actor provider
	modbusProv, err := modbusActorProvider(cfg, logger)
	if err != nil {
		panic(err)
	}

	props := pactor.PropsFromProducer(func() pactor.Actor {
		return actor.NewMasterOfPuppetsActor(*cfg, store, modbusProv, mqttActorProvider(cfg, logger), logger)
	})
	pid, err := ctx.SpawnNamed(props, "master")
	if err != nil {
		return
	}

	// SunSpec register server
	sunspecServer, err := sunspec.NewServer(sunspec.ServerConfig{
		Port:       cfg.SunSpec.Port,
		MaxClients: cfg.SunSpec.MaxClients,
	}, store, logger)
	if err != nil {
		panic(fmt.Sprintf("sunspec server error: %s", err))
	}
	if err := sunspecServer.Start(); err != nil {
		panic(fmt.Sprintf("sunspec server error: %s", err))
	}

	server := server.NewServer(*cfg, ctx, pid, store)
	// Create a done channel to signal when the shutdown is complete
	done := make(chan bool, 1)

	// Run graceful shutdown in a separate goroutine
	go gracefulShutdown(server, done)

	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		panic(fmt.Sprintf("http server error: %s", err))
	}

	// Wait for the graceful shutdown to complete
	<-done
	log.Println("Graceful shutdown complete.")

	if err := sunspecServer.Stop(); err != nil {
		log.Printf("sunspec server stop error: %v", err)
	}
	ctx.Stop(pid)
	as.Shutdown()
}

func initConfig() (*config.Config, error) {

	// alias PORT => SUNSPECBRIDGE_PORT
	if port := os.Getenv("PORT"); port != "" {
		os.Setenv("SUNSPECBRIDGE_PORT", port)
	}

	setConfigDefaults()

	viper.SetEnvPrefix("sunspecbridge")
	viper.AutomaticEnv()

	// if defined, try to load config from yaml file
	if cfgFile := os.Getenv("CONFIG_FILE"); cfgFile != "" {
		if _, err := os.Stat(cfgFile); err == nil {
			slog.Info("Using config", "file", cfgFile)
			viper.SetConfigFile(cfgFile)

			err = viper.ReadInConfig()
			if err != nil {
				slog.Error("Error reading config file", "error", err)
			}
		}
	}

	var cfg config.Config

	err := viper.Unmarshal(&cfg)
	if err != nil {
		return nil, err
	}

	// parse log level
	switch viper.GetString("log_level") {
	case "trace":
		cfg.LogLevel = zap.DebugLevel
	case "debug":
		cfg.LogLevel = zap.DebugLevel
	case "info":
		cfg.LogLevel = zap.InfoLevel
	case "error":
		cfg.LogLevel = zap.ErrorLevel
	case "warn":
		cfg.LogLevel = zap.WarnLevel
	case "fatal":
		cfg.LogLevel = zap.FatalLevel
	default:
		cfg.LogLevel = zap.InfoLevel
	}

	// check driver name
	switch cfg.Device.Driver {
	case device.DriverSolis1P, device.DriverEM24, device.DriverDemo:
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Device.Driver)
	}

	// check serial parameters
	if cfg.Device.Driver != device.DriverDemo && cfg.Serial.Device == "" {
		return nil, errors.New("config param serial.device is required")
	}
	switch cfg.Serial.Parity {
	case "", "none", "even", "odd":
	default:
		return nil, errors.New("config param serial.parity must be one of none, even, odd")
	}

	// check bounds
	if cfg.Device.PollIntervalMillis < 500 {
		return nil, errors.New("config param device.poll_interval_millis should be >= 500")
	}
	if cfg.Device.RequestTimeoutMillis < 100 {
		return nil, errors.New("config param device.request_timeout_millis should be >= 100")
	}
	if cfg.Device.MaxBackoffMillis > 0 && cfg.Device.MaxBackoffMillis < cfg.Device.PollIntervalMillis {
		return nil, errors.New("config param device.max_backoff_millis should be >= device.poll_interval_millis")
	}
	if cfg.SunSpec.ModbusAddress < 1 || cfg.SunSpec.ModbusAddress > 247 {
		return nil, errors.New("config param sunspec.modbus_address should be in 1..247")
	}

	if cfg.MQTT.Enable {
		// check and fix base topic
		baseTopic, err := config.CheckMQTTTopic(cfg.MQTT.BaseTopic)
		if err != nil {
			return nil, errors.New("invalid base topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.BaseTopic = baseTopic

		// check and fix homeassistant discovery topic
		hadBaseTopic, err := config.CheckMQTTTopic(cfg.MQTT.HADiscoveryTopic)
		if err != nil {
			return nil, errors.New("invalid homeassistant discovery topic. can only contain letters, numbers and underscores")
		}
		cfg.MQTT.HADiscoveryTopic = hadBaseTopic
	}

	return &cfg, nil
}

func modbusActorProvider(cfg *config.Config, logger *zap.Logger) (actor.ModbusActorProvider, error) {

	drv, err := buildDriver(cfg, logger)
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.Device.RequestTimeoutMillis) * time.Millisecond

	return func() *adactor.ModbusActor {
		return adactor.NewModbusActor(drv, timeout, logger)
	}, nil
}

func buildDriver(cfg *config.Config, logger *zap.Logger) (device.Driver, error) {
	serial := device.SerialConfig{
		Device:   cfg.Serial.Device,
		BaudRate: cfg.Serial.BaudRate,
		DataBits: cfg.Serial.DataBits,
		Parity:   cfg.Serial.Parity,
		StopBits: cfg.Serial.StopBits,
		SlaveID:  uint8(cfg.Device.SlaveId),
		Timeout:  time.Duration(cfg.Device.RequestTimeoutMillis) * time.Millisecond,
	}

	switch cfg.Device.Driver {
	case device.DriverSolis1P:
		return device.NewSolis1PDriver(serial, cfg.Device.MaxRatedPowerWatt, logger, nil)
	case device.DriverEM24:
		return device.NewEM24Driver(serial, logger, nil)
	case device.DriverDemo:
		return device.NewTestDriver(), nil
	default:
		return nil, fmt.Errorf("unknown device driver %q", cfg.Device.Driver)
	}
}

func mqttActorProvider(cfg *config.Config, logger *zap.Logger) actor.MQTTActorProvider {
	return func() *adactor.MQTTActor {
		return adactor.NewMQTTActor(cfg, logger)
	}
}

func setConfigDefaults() {
	viper.SetDefault("log_level", "warn")
	viper.SetDefault("serial.baud_rate", 9600)
	viper.SetDefault("serial.data_bits", 8)
	viper.SetDefault("serial.parity", "none")
	viper.SetDefault("serial.stop_bits", 1)
	viper.SetDefault("device.driver", "demo")
	viper.SetDefault("device.slave_id", 1)
	viper.SetDefault("device.poll_interval_millis", 1000)
	viper.SetDefault("device.request_timeout_millis", 1000)
	viper.SetDefault("device.max_backoff_millis", 30000)
	viper.SetDefault("device.stale_after_millis", 10000)
	viper.SetDefault("sunspec.port", 502)
	viper.SetDefault("sunspec.max_clients", 5)
	viper.SetDefault("sunspec.modbus_address", 126)
	viper.SetDefault("mqtt.enable", false)
	viper.SetDefault("mqtt.ha_discovery_enable", false)
	viper.SetDefault("mqtt.base_topic", "sunspecbridge")
	viper.SetDefault("mqtt.ha_discovery_topic", "homeassistant")
	viper.SetDefault("port", 8080)
}

func safePrintConfig(cfg config.Config) {
	cfg.MQTT.Username = "*redacted*"
	cfg.MQTT.Password = "*redacted*"
	slog.Info("Using", "config", cfg)
}
