package config

import (
	"log"
	"time"

	"github.com/SafeSpaceHQ/safeline/pkg/constants"
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"github.com/SafeSpaceHQ/safeline/pkg/utils"
)

var GlobalConfig *Config

// Config holds the full service configuration. Every field has a default so
// the server starts without an .env file.
type Config struct {
	Log        logger.LogConfig
	Addr       string `env:"ADDR"`
	Mode       string `env:"MODE"`
	ServerName string `env:"SERVER_NAME"`

	// SessionTTL is the fixed duration of a support session.
	SessionTTL time.Duration `env:"SESSION_TTL"`

	// StunServers is sent to every participant on connect.
	StunServers []string `env:"STUN_SERVERS"`
}

func Load() error {
	mode := utils.GetStringOrDefault("MODE", "development")
	err := utils.LoadEnv(mode)
	if err != nil {
		// A missing .env file is fine, defaults cover everything.
		log.Printf("Note: .env file not found or failed to load: %v (using default values)", err)
	}
	GlobalConfig = &Config{
		Log: logger.LogConfig{
			Level:      utils.GetStringOrDefault("LOG_LEVEL", "info"),
			Filename:   utils.GetStringOrDefault("LOG_FILENAME", "./logs/safeline.log"),
			MaxSize:    utils.GetIntOrDefault("LOG_MAX_SIZE", 100),
			MaxAge:     utils.GetIntOrDefault("LOG_MAX_AGE", 30),
			MaxBackups: utils.GetIntOrDefault("LOG_MAX_BACKUPS", 5),
			Daily:      utils.GetBoolOrDefault("LOG_DAILY", true),
		},
		Mode:        mode,
		Addr:        utils.GetStringOrDefault("ADDR", constants.DefaultAddr),
		ServerName:  utils.GetStringOrDefault("SERVER_NAME", constants.DefaultServerName),
		SessionTTL:  time.Duration(utils.GetIntOrDefault("SESSION_TTL", int(constants.DefaultSessionTTL.Seconds()))) * time.Second,
		StunServers: utils.GetStringSliceOrDefault("STUN_SERVERS", constants.DefaultStunServers),
	}
	return nil
}
