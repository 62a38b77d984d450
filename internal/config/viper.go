package config

import (
	"log"

	"github.com/spf13/viper"
)

// InitViper reads .env when present and binds every environment variable the
// service understands. Environment variables override the file.
func InitViper(configFile string) {
	if configFile == "" {
		configFile = ".env"
	}
	viper.SetConfigFile(configFile)
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	BindMpesaEnv()
	BindEventsEnv()
	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("server.public_host", "PUBLIC_HOST")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using environment: %v", err)
	}
}
