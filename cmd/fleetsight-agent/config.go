package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log        LogConfig
	Server     ServerConfig
	Device     DeviceConfig
	Collection CollectionConfig
	Inventory  InventoryConfig
	Capture    CaptureConfig
}

type ServerConfig struct {
	Url    string `mapstructure:"url"`
	ApiKey string `mapstructure:"api_key"`
}

type DeviceConfig struct {
	SerialNumber string `mapstructure:"serial_number"`
	Platform     string `mapstructure:"platform"`
}

type CollectionConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	SpoolPath  string        `mapstructure:"spool_path"`
	PolicyFile string        `mapstructure:"policy_file"`
}

type InventoryConfig struct {
	Roots []string `mapstructure:"roots"`
}

type CaptureConfig struct {
	Method  string   `mapstructure:"method"`
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleetsight-agent")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("server.api_key", "AGENT_API_KEY")
	_ = viper.BindEnv("device.serial_number", "DEVICE_SERIAL_NUMBER")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log.Level)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		configJSON, err := json.MarshalIndent(config, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
