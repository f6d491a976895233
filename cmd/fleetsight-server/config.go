package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fleetsight/fleetsight/internal/api/http"
	"github.com/fleetsight/fleetsight/internal/db"
	"github.com/fleetsight/fleetsight/internal/maintenance"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log         LogConfig
	Http        http.Config
	Db          db.Config
	Maintenance maintenance.Config
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/fleetsight-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("db.url", "DATABASE_URL")
	_ = viper.BindEnv("http.agent_api_key", "AGENT_API_KEY")
	_ = viper.BindEnv("http.admin_api_key", "ADMIN_API_KEY")

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
