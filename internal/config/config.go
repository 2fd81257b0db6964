package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Serial   SerialPortConfig `mapstructure:"serial"`
	Device   DeviceConfig     `mapstructure:"device"`
	SunSpec  SunSpecConfig    `mapstructure:"sunspec"`
	MQTT     MQTTConfig       `mapstructure:"mqtt"`

	Port    uint `mapstructure:"port"`
	HttpLog bool `mapstructure:"http_log"`
}

type SerialPortConfig struct {
	Device   string
	BaudRate uint   `mapstructure:"baud_rate"`
	DataBits uint   `mapstructure:"data_bits"`
	Parity   string `mapstructure:"parity"`
	StopBits uint   `mapstructure:"stop_bits"`
}

type DeviceConfig struct {
	Driver               string
	SlaveId              uint   `mapstructure:"slave_id"`
	PollIntervalMillis   uint32 `mapstructure:"poll_interval_millis"`
	RequestTimeoutMillis uint32 `mapstructure:"request_timeout_millis"`
	MaxBackoffMillis     uint32 `mapstructure:"max_backoff_millis"`
	StaleAfterMillis     uint32 `mapstructure:"stale_after_millis"`
	MaxRatedPowerWatt    uint32 `mapstructure:"max_rated_power_watt"`
}

type SunSpecConfig struct {
	Port          uint
	MaxClients    uint `mapstructure:"max_clients"`
	ModbusAddress uint `mapstructure:"modbus_address"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
