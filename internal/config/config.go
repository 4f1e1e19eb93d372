/**
 * @description
 * Configuration management for the pledge-service. Settings come from environment
 * variables, optionally preloaded from a `.env` file, and are unmarshalled with Viper.
 *
 * @dependencies
 * - github.com/spf13/viper: configuration loading and env binding.
 */
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all configuration variables for the pledge-service.
type Config struct {
	ServerPort            string `mapstructure:"SERVER_PORT"`
	DatabaseURL           string `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32  `mapstructure:"DB_MIN_CONNS"`
	JWTSecret             string `mapstructure:"JWT_SECRET"`
	JWTIssuer             string `mapstructure:"JWT_ISSUER"`
	ScheduleTimeZone      string `mapstructure:"SCHEDULE_TIME_ZONE"`
	RabbitMQURL           string `mapstructure:"RABBITMQ_URL"`
	EventsExchange        string `mapstructure:"EVENTS_EXCHANGE"`
	RedisURL              string `mapstructure:"REDIS_URL"`
	RedisRateLimitPrefix  string `mapstructure:"REDIS_RATE_LIMIT_PREFIX"`
	FixRateLimitPerMinute int    `mapstructure:"FIX_RATE_LIMIT_PER_MINUTE"`
	ReminderJobSchedule   string `mapstructure:"REMINDER_JOB_SCHEDULE"`
	ReminderLeadMinutes   int    `mapstructure:"REMINDER_LEAD_MINUTES"`

	// ScheduleLocation is ScheduleTimeZone resolved by LoadConfig.
	ScheduleLocation *time.Location `mapstructure:"-"`
}

// ReminderLead returns the reminder lead time as a duration.
func (c Config) ReminderLead() time.Duration {
	return time.Duration(c.ReminderLeadMinutes) * time.Minute
}

// LoadConfig reads configuration from the environment and an optional .env file in path.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName(".env")
	viper.SetConfigType("env")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("DB_MAX_CONNS", 20)
	viper.SetDefault("DB_MIN_CONNS", 2)
	viper.SetDefault("SCHEDULE_TIME_ZONE", "UTC")
	viper.SetDefault("EVENTS_EXCHANGE", "geopledge.events")
	viper.SetDefault("REDIS_RATE_LIMIT_PREFIX", "geopledge:rate_limit")
	viper.SetDefault("FIX_RATE_LIMIT_PER_MINUTE", 30)
	viper.SetDefault("REMINDER_JOB_SCHEDULE", "* * * * *")
	viper.SetDefault("REMINDER_LEAD_MINUTES", 15)

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	_ = viper.BindEnv("SERVER_PORT")
	_ = viper.BindEnv("PORT")
	_ = viper.BindEnv("DATABASE_URL")
	_ = viper.BindEnv("DB_MAX_CONNS")
	_ = viper.BindEnv("DB_MIN_CONNS")
	_ = viper.BindEnv("JWT_SECRET")
	_ = viper.BindEnv("JWT_ISSUER")
	_ = viper.BindEnv("SCHEDULE_TIME_ZONE")
	_ = viper.BindEnv("RABBITMQ_URL")
	_ = viper.BindEnv("EVENTS_EXCHANGE")
	_ = viper.BindEnv("REDIS_URL", "REDIS_URL", "PLEDGE_REDIS_URL")
	_ = viper.BindEnv("REDIS_RATE_LIMIT_PREFIX")
	_ = viper.BindEnv("FIX_RATE_LIMIT_PER_MINUTE")
	_ = viper.BindEnv("REMINDER_JOB_SCHEDULE")
	_ = viper.BindEnv("REMINDER_LEAD_MINUTES")

	if err = viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("level=warn component=config msg=\"failed to read config file; using environment values\" err=%v", err)
		}
		err = nil
	}

	if err = viper.Unmarshal(&config); err != nil {
		return
	}

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		config.ServerPort = port
	}
	config.DatabaseURL = strings.TrimSpace(config.DatabaseURL)
	config.JWTSecret = strings.TrimSpace(config.JWTSecret)
	config.JWTIssuer = strings.TrimSpace(config.JWTIssuer)
	config.RabbitMQURL = strings.TrimSpace(config.RabbitMQURL)
	config.RedisURL = strings.TrimSpace(config.RedisURL)
	config.RedisRateLimitPrefix = strings.TrimSpace(config.RedisRateLimitPrefix)
	if config.RedisRateLimitPrefix == "" {
		config.RedisRateLimitPrefix = "geopledge:rate_limit"
	}
	config.EventsExchange = strings.TrimSpace(config.EventsExchange)
	if config.EventsExchange == "" {
		config.EventsExchange = "geopledge.events"
	}
	config.ReminderJobSchedule = strings.TrimSpace(config.ReminderJobSchedule)

	if config.FixRateLimitPerMinute < 0 {
		log.Printf("level=warn component=config msg=\"negative fix rate limit configured; disabling\" value=%d", config.FixRateLimitPerMinute)
		config.FixRateLimitPerMinute = 0
	}
	if config.ReminderLeadMinutes < 0 {
		log.Printf("level=warn component=config msg=\"negative reminder lead configured; using default\" value=%d", config.ReminderLeadMinutes)
		config.ReminderLeadMinutes = 15
	}
	if config.DBMaxConns <= 0 {
		config.DBMaxConns = 20
	}
	if config.DBMinConns < 0 {
		config.DBMinConns = 0
	}
	if config.DBMinConns > config.DBMaxConns {
		config.DBMinConns = config.DBMaxConns
	}

	if config.DatabaseURL == "" {
		return config, errors.New("DATABASE_URL is required")
	}
	if config.JWTSecret == "" {
		return config, errors.New("JWT_SECRET is required")
	}

	zone := strings.TrimSpace(config.ScheduleTimeZone)
	if zone == "" {
		zone = "UTC"
	}
	loc, locErr := time.LoadLocation(zone)
	if locErr != nil {
		return config, fmt.Errorf("invalid SCHEDULE_TIME_ZONE %q: %w", zone, locErr)
	}
	config.ScheduleTimeZone = zone
	config.ScheduleLocation = loc

	return config, nil
}
