package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type MQTT struct {
	Host      string
	Username  string
	Password  string
	ClientID  string
	TopicRoot string
}

type Config struct {
	Host        string
	Port        int
	GinMode     string
	TLSCertFile string
	TLSKeyFile  string
	WSURL       string

	DashboardSecret string
	TokenExpiry     time.Duration

	MQTT MQTT

	MaxRetries        int
	RetryDelay        time.Duration
	SessionsDir       string
	SessionID         string
	GroupPollInterval time.Duration
	QRRefreshInterval time.Duration
	ForwardTarget     string

	Debug     bool
	LogLevel  string
	LogFormat string
	LogFile   string

	ScriptPath string
	ScriptArgs []string
}

func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type Env interface {
	Getenv(key string) string
}

type osEnv struct{}

func (osEnv) Getenv(key string) string { return os.Getenv(key) }

// LoadDotEnv merges the given .env files into the process environment without
// overriding variables that are already set. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func LoadConfig() (Config, error) {
	if err := LoadDotEnv(); err != nil {
		return Config{}, err
	}
	return LoadConfigFromEnv(osEnv{})
}

func LoadConfigFromEnv(env Env) (Config, error) {
	cfg := Config{
		Host:        "0.0.0.0",
		Port:        3000,
		GinMode:     "release",
		TokenExpiry: 7 * 24 * time.Hour,
		MQTT: MQTT{
			ClientID:  "frigate-wa-bridge",
			TopicRoot: "frigate",
		},
		MaxRetries:        3,
		RetryDelay:        time.Second,
		SessionsDir:       "./sessions",
		SessionID:         "default",
		GroupPollInterval: 30 * time.Second,
		QRRefreshInterval: 20 * time.Second,
		LogLevel:          "info",
		LogFormat:         "text",
		LogFile:           "./logs/app.log",
	}

	str := func(key string, dst *string) {
		if raw := strings.TrimSpace(env.Getenv(key)); raw != "" {
			*dst = raw
		}
	}

	str("HOST", &cfg.Host)
	if raw := env.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT")
		}
		cfg.Port = port
	}
	str("GIN_MODE", &cfg.GinMode)
	cfg.TLSCertFile = env.Getenv("TLS_CERT_FILE")
	cfg.TLSKeyFile = env.Getenv("TLS_KEY_FILE")

	cfg.WSURL = env.Getenv("WS_URL")
	if cfg.WSURL == "" {
		scheme := "ws"
		if cfg.TLSCertFile != "" {
			scheme = "wss"
		}
		cfg.WSURL = fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
	}

	cfg.DashboardSecret = env.Getenv("DASHBOARD_SECRET")
	if raw := env.Getenv("TOKEN_EXPIRY_SECONDS"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds <= 0 {
			return Config{}, fmt.Errorf("invalid TOKEN_EXPIRY_SECONDS")
		}
		cfg.TokenExpiry = time.Duration(seconds) * time.Second
	}

	str("MQTT_HOST", &cfg.MQTT.Host)
	cfg.MQTT.Username = env.Getenv("MQTT_USERNAME")
	cfg.MQTT.Password = env.Getenv("MQTT_PASSWORD")
	str("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	str("MQTT_TOPIC_ROOT", &cfg.MQTT.TopicRoot)

	if raw := env.Getenv("MAX_RETRIES"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid MAX_RETRIES")
		}
		cfg.MaxRetries = n
	}
	if raw := env.Getenv("RETRY_DELAY"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			return Config{}, fmt.Errorf("invalid RETRY_DELAY")
		}
		cfg.RetryDelay = time.Duration(ms) * time.Millisecond
	}

	str("SESSIONS_DIR", &cfg.SessionsDir)
	str("SESSION_ID", &cfg.SessionID)

	var err error
	if cfg.GroupPollInterval, err = seconds(env, "GROUP_POLL_SECONDS", cfg.GroupPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.QRRefreshInterval, err = seconds(env, "QR_REFRESH_SECONDS", cfg.QRRefreshInterval); err != nil {
		return Config{}, err
	}
	cfg.ForwardTarget = strings.TrimSpace(env.Getenv("FORWARD_TARGET"))

	if raw := env.Getenv("DEBUG"); raw != "" {
		debug, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DEBUG")
		}
		cfg.Debug = debug
	}
	str("LOG_LEVEL", &cfg.LogLevel)
	str("LOG_FORMAT", &cfg.LogFormat)
	if raw, ok := lookup(env, "LOG_FILE"); ok {
		cfg.LogFile = raw
	}

	cfg.ScriptPath = env.Getenv("SCRIPT_PATH")
	if raw := strings.TrimSpace(env.Getenv("SCRIPT_ARGS")); raw != "" {
		cfg.ScriptArgs = strings.Fields(raw)
	}

	return cfg, nil
}

func seconds(env Env, key string, def time.Duration) (time.Duration, error) {
	raw := env.Getenv(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return time.Duration(n) * time.Second, nil
}

// lookup treats "-" as an explicit empty value so LOG_FILE can be disabled.
func lookup(env Env, key string) (string, bool) {
	raw := env.Getenv(key)
	switch raw {
	case "":
		return "", false
	case "-":
		return "", true
	}
	return raw, true
}
