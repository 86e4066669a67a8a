package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		PingInterval time.Duration `yaml:"ping_interval"`
		PongTimeout  time.Duration `yaml:"pong_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"signal"`

	Rooms struct {
		SweepInterval time.Duration `yaml:"sweep_interval"`
		IdleWindow    time.Duration `yaml:"idle_window"`
	} `yaml:"rooms"`

	Streaming struct {
		EncoderBinary string `yaml:"encoder_binary"`
		PlatformURLs  struct {
			YouTube  string `yaml:"youtube"`
			Twitch   string `yaml:"twitch"`
			Facebook string `yaml:"facebook"`
		} `yaml:"platform_urls"`
		Defaults struct {
			Width        int    `yaml:"width"`
			Height       int    `yaml:"height"`
			Framerate    int    `yaml:"framerate"`
			VideoBitrate string `yaml:"video_bitrate"`
			AudioBitrate string `yaml:"audio_bitrate"`
		} `yaml:"defaults"`
		MaxRecentErrors int `yaml:"max_recent_errors"`
	} `yaml:"streaming"`

	WebRTC struct {
		ICEServers []struct {
			URLs       []string `yaml:"urls"`
			Username   string   `yaml:"username,omitempty"`
			Credential string   `yaml:"credential,omitempty"`
		} `yaml:"ice_servers"`
	} `yaml:"webrtc"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"http"`

		Signal struct {
			MessagesPerSecond float64 `yaml:"messages_per_second"`
			Burst             int     `yaml:"burst"`
		} `yaml:"signal"`
	} `yaml:"rate_limiting"`
}

// Load reads and validates configuration from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with production-safe defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.ShutdownTimeout = 10 * time.Second

	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.ReadTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second

	cfg.Rooms.SweepInterval = 30 * time.Second
	cfg.Rooms.IdleWindow = 5 * time.Minute

	cfg.Streaming.EncoderBinary = "ffmpeg"
	cfg.Streaming.PlatformURLs.YouTube = "rtmp://a.rtmp.youtube.com/live2/"
	cfg.Streaming.PlatformURLs.Twitch = "rtmp://live.twitch.tv/app/"
	cfg.Streaming.PlatformURLs.Facebook = "rtmp://live-api-s.facebook.com:80/rtmp/"
	cfg.Streaming.Defaults.Width = 1280
	cfg.Streaming.Defaults.Height = 720
	cfg.Streaming.Defaults.Framerate = 30
	cfg.Streaming.Defaults.VideoBitrate = "2500k"
	cfg.Streaming.Defaults.AudioBitrate = "128k"
	cfg.Streaming.MaxRecentErrors = 10

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.ServiceName = "studiocast"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"

	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Auth.AccessTokenTTL = 15 * time.Minute

	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.Signal.MessagesPerSecond = 50
	cfg.RateLimiting.Signal.Burst = 100

	return cfg
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Signal
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= 0 {
		return fmt.Errorf("signal.pong_timeout must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}

	// Rooms
	if c.Rooms.SweepInterval <= 0 {
		return fmt.Errorf("rooms.sweep_interval must be > 0")
	}
	if c.Rooms.IdleWindow <= c.Rooms.SweepInterval {
		return fmt.Errorf("rooms.idle_window must be > rooms.sweep_interval")
	}

	// Streaming
	if c.Streaming.EncoderBinary == "" {
		return fmt.Errorf("streaming.encoder_binary must not be empty")
	}
	if c.Streaming.Defaults.Width <= 0 || c.Streaming.Defaults.Height <= 0 {
		return fmt.Errorf("streaming.defaults dimensions must be > 0")
	}
	if c.Streaming.Defaults.Framerate <= 0 || c.Streaming.Defaults.Framerate > 120 {
		return fmt.Errorf("streaming.defaults.framerate must be in (0, 120]")
	}
	if c.Streaming.MaxRecentErrors <= 0 {
		return fmt.Errorf("streaming.max_recent_errors must be > 0")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0")
		}
		if c.RateLimiting.Signal.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.signal.messages_per_second must be > 0")
		}
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in [0, 1]")
		}
	}

	return nil
}
