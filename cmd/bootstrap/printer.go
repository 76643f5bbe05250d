package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"github.com/SafeSpaceHQ/safeline/pkg/config"
	"github.com/SafeSpaceHQ/safeline/pkg/logger"
	"go.uber.org/zap"
)

// LogConfigInfo prints the effective configuration at startup.
func LogConfigInfo() {
	logger.Info("system config load finished")

	logger.Info("base config",
		zap.String("addr", config.GlobalConfig.Addr),
		zap.String("mode", config.GlobalConfig.Mode),
		zap.Duration("session_ttl", config.GlobalConfig.SessionTTL),
		zap.Strings("stun_servers", config.GlobalConfig.StunServers),
	)

	logger.Info("log config",
		zap.String("log_level", config.GlobalConfig.Log.Level),
		zap.String("log_filename", config.GlobalConfig.Log.Filename),
		zap.Int("log_max_size", config.GlobalConfig.Log.MaxSize),
		zap.Int("log_max_age", config.GlobalConfig.Log.MaxAge),
		zap.Int("log_max_backups", config.GlobalConfig.Log.MaxBackups),
	)
}

// PrintBannerFromFile reads and prints a banner file; when the file is
// missing it falls back to the plain server name.
func PrintBannerFromFile(filename string, defaultText string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if defaultText != "" {
			fmt.Println(defaultText)
		}
		return nil
	}

	lines := strings.Split(string(data), "\n")

	colors := []string{
		"\x1b[38;5;45m",
		"\x1b[38;5;51m",
		"\x1b[38;5;87m",
		"\x1b[38;5;123m",
		"\x1b[38;5;159m",
		"\x1b[38;5;195m",
	}

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		color := colors[i%len(colors)]
		fmt.Println(color + line + "\x1b[0m")
	}
	return nil
}
