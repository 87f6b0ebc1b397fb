package providers

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"wsd/internal/structures"
)

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	// .env is optional; real environment variables win over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load .env: %w", err)
	}

	filename := filepath.Base(flags.ConfigPath)
	viper.AddConfigPath(filepath.Dir(flags.ConfigPath))
	viper.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	viper.SetConfigType("yaml")

	viper.BindEnv("logger.level", "WSD_LOG_LEVEL")
	viper.BindEnv("geocoder.key", "WSD_GEOCODER_KEY")
	viper.BindEnv("weather.key", "WSD_WEATHER_KEY")
	viper.BindEnv("access.adminToken", "WSD_ADMIN_TOKEN")
	viper.BindEnv("access.gatewayToken", "WSD_GATEWAY_TOKEN")
	viper.BindEnv("persistence.filePath", "WSD_REGISTRY_PATH")
	viper.BindEnv("rateLimit.hitsPerInterval", "WSD_RATE_LIMIT")
	viper.BindEnv("identity.redis.addr", "WSD_REDIS_ADDR")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = viper.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "WeatherServiceDaemon"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
