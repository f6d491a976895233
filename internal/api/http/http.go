package http

type Config struct {
	Port        uint   `mapstructure:"port"`
	AgentAPIKey string `mapstructure:"agent_api_key"`
	AdminAPIKey string `mapstructure:"admin_api_key"`
}
