package util

import (
	"sunspecbridge/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Serial: config.SerialPortConfig{
			Device:   "/dev/null",
			BaudRate: 9600,
			DataBits: 8,
			Parity:   "none",
			StopBits: 1,
		},
		Device: config.DeviceConfig{
			Driver:               "demo",
			SlaveId:              1,
			PollIntervalMillis:   1000,
			RequestTimeoutMillis: 1000,
			MaxBackoffMillis:     30000,
			StaleAfterMillis:     10000,
		},
		SunSpec: config.SunSpecConfig{
			Port:          5502,
			MaxClients:    5,
			ModbusAddress: 126,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "sunspecbridge",
		},
		Port: 8080,
	}
}
