package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL         = "http://localhost:8000"
	DefaultVersion        = "1.0.0"
	DefaultListenAddr     = ":8080"
	DefaultRequestTimeout = 30 * time.Second
)

// Config is read once at startup. Values come from, in order of precedence:
// environment, optional YAML file (DASHBOARD_CONFIG), built-in defaults.
type Config struct {
	APIURL         string        `yaml:"apiUrl"`
	WSURL          string        `yaml:"wsUrl"`
	Version        string        `yaml:"version"`
	DevMode        bool          `yaml:"devMode"`
	ListenAddr     string        `yaml:"listenAddr"`
	DatabaseURL    string        `yaml:"databaseUrl"`
	UseMock        bool          `yaml:"useMock"`
	LogLevel       string        `yaml:"logLevel"`
	RequestTimeout time.Duration `yaml:"requestTimeout"`
	TemplatesDir   string        `yaml:"templatesDir"`
}

// Load reads .env and .env.<APP_ENV> when present, then builds the Config.
func Load() (*Config, error) {
	appEnv := getEnvOrDefault("APP_ENV", "development")

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Info: no .env file found (this is OK outside local development)")
	}
	envFile := fmt.Sprintf(".env.%s", appEnv)
	if err := godotenv.Overload(envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load %s: %v", envFile, err)
	}

	return FromEnv()
}

// FromEnv builds the Config without touching dotenv files.
func FromEnv() (*Config, error) {
	c := &Config{
		APIURL:         DefaultAPIURL,
		Version:        DefaultVersion,
		ListenAddr:     DefaultListenAddr,
		RequestTimeout: DefaultRequestTimeout,
		TemplatesDir:   ".",
	}

	if path := os.Getenv("DASHBOARD_CONFIG"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("AGENT_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("AGENT_WS_URL"); v != "" {
		c.WSURL = v
	}
	if v := os.Getenv("APP_VERSION"); v != "" {
		c.Version = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.DevMode = v == "development"
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("USE_MOCK"); v != "" {
		c.UseMock = parseBool(v, c.UseMock)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.RequestTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("TEMPLATES_DIR"); v != "" {
		c.TemplatesDir = v
	}

	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if c.WSURL == "" {
		ws, err := DeriveWSURL(c.APIURL)
		if err != nil {
			return nil, err
		}
		c.WSURL = ws
	}
	return c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// DeriveWSURL maps http(s)://host[:port] to ws(s)://host[:port]/ws.
func DeriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url %q: %w", apiURL, err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func parseBool(v string, defaultVal bool) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return defaultVal
	}
	return parsed
}
