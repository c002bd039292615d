package config

import "time"

// Config holds client runtime configuration values.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// RealtimeURL is the push channel endpoint. The local default is only
	// acceptable outside production.
	RealtimeURL string `mapstructure:"realtime_url" yaml:"realtime_url"`
	// APIBaseURL is the REST backend base URL.
	APIBaseURL string `mapstructure:"api_base_url" yaml:"api_base_url"`
	// MediaAppID identifies this application to the media transport.
	// There is no default: joining a call without it is a reported
	// configuration error, never a silent fallback.
	MediaAppID string `mapstructure:"media_app_id" yaml:"media_app_id"`

	ReconnectAttempts int           `mapstructure:"reconnect_attempts" yaml:"reconnect_attempts"`
	ReconnectDelay    time.Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	ReconnectDelayMax time.Duration `mapstructure:"reconnect_delay_max" yaml:"reconnect_delay_max"`

	DevServer DevServer `mapstructure:"devserver" yaml:"devserver"`
}

// DevServer configures the bundled development backend emulator.
type DevServer struct {
	Addr             string `mapstructure:"addr" yaml:"addr"`
	DatabasePath     string `mapstructure:"database_path" yaml:"database_path"`
	JWTSecret        string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	LiveKitURL       string `mapstructure:"livekit_url" yaml:"livekit_url"`
	LiveKitAPIKey    string `mapstructure:"livekit_api_key" yaml:"livekit_api_key"`
	LiveKitAPISecret string `mapstructure:"livekit_api_secret" yaml:"livekit_api_secret"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel:          "info",
		RealtimeURL:       "ws://localhost:5001/ws",
		APIBaseURL:        "http://localhost:5001",
		ReconnectAttempts: 10,
		ReconnectDelay:    time.Second,
		ReconnectDelayMax: 5 * time.Second,
		DevServer: DevServer{
			Addr:         ":5001",
			DatabasePath: "tutorlink-dev.db",
			JWTSecret:    "dev-secret-change-me",
			LiveKitURL:   "ws://localhost:7880",
		},
	}
}
