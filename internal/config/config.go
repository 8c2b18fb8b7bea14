package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	SignalURL      string        `mapstructure:"signal_url"`
	Token          string        `mapstructure:"token"`
	DisplayName    string        `mapstructure:"display_name"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`

	RingTimeout time.Duration `mapstructure:"ring_timeout"`
	ICEServers  []ICEServer   `mapstructure:"ice_servers"`
	MediaSource string        `mapstructure:"media_source"`

	LogLevel string `mapstructure:"log_level"`

	v *viper.Viper
}

// Load reads config/config.<CONFIG_ENV>.yaml, falling back to defaults when
// the file is missing. DIAL_* environment variables override file values.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetEnvPrefix("DIAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("secret", "")
	v.SetDefault("signal_url", "ws://localhost:3000/ws")
	v.SetDefault("token", "")
	v.SetDefault("display_name", "")
	v.SetDefault("reconnect_delay", "3s")
	v.SetDefault("ring_timeout", "60s")
	v.SetDefault("ice_servers", []map[string]any{{"urls": []string{"stun:stun.l.google.com:19302"}}})
	v.SetDefault("media_source", "device")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("signal_url", cfg.SignalURL).Str("media_source", cfg.MediaSource).Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.v = v
	return &cfg, nil
}

// Watch calls onChange with a freshly decoded Config whenever the file
// changes. Only settings read at use time (log_level) take effect live.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil {
		return
	}
	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		next, err := decode(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed")
			return
		}
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		onChange(next)
	})
	c.v.WatchConfig()
}
