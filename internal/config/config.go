package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode            string        `mapstructure:"mode"`
	BackendURL      string        `mapstructure:"backend_url"`
	Organization    string        `mapstructure:"organization"`
	RefNum          string        `mapstructure:"ref_num"`
	ParticipantName string        `mapstructure:"participant_name"`
	DurationMinutes int           `mapstructure:"duration_minutes"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	CaptureSource   string        `mapstructure:"capture_source"`
	PlaybackDir     string        `mapstructure:"playback_dir"`
	BackendPort     int           `mapstructure:"backend_port"`
	BackendDataFile string        `mapstructure:"backend_data_file"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("backend_url", "http://localhost:8002")
	v.SetDefault("organization", "test_org")
	v.SetDefault("ref_num", "NORMALIZED_TEST_001")
	v.SetDefault("participant_name", "candidate_prajwal")
	v.SetDefault("duration_minutes", 30)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("connect_timeout", "15s")
	v.SetDefault("capture_source", "./mic.pcm")
	v.SetDefault("playback_dir", "")
	v.SetDefault("backend_port", 8002)
	v.SetDefault("backend_data_file", "./data/interviews.json")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Backend: %s | Ref: %s\n", cfg.Mode, cfg.BackendURL, cfg.RefNum)
	return &cfg, nil
}
