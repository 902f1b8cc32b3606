package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"readTimeout"`
		WriteTimeout time.Duration `yaml:"writeTimeout"`
		IdleTimeout  time.Duration `yaml:"idleTimeout"`
		CORSOrigins  []string      `yaml:"corsOrigins"`
	} `yaml:"server"`

	Sonar struct {
		HostURL string        `yaml:"hostURL"`
		Token   string        `yaml:"token"` // reference credential, optional
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"sonar"`

	Scanner struct {
		Runtime string        `yaml:"runtime"` // local | docker
		Path    string        `yaml:"path"`
		Image   string        `yaml:"image"`
		Git     string        `yaml:"git"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"scanner"`

	Workspace struct {
		Root            string `yaml:"root"`
		UploadsRoot     string `yaml:"uploadsRoot"`
		DefaultExt      string `yaml:"defaultExt"`
		MaxArchiveBytes int64  `yaml:"maxArchiveBytes"`
		MaxUploadBytes  int64  `yaml:"maxUploadBytes"`
	} `yaml:"workspace"`

	Polling struct {
		Interval time.Duration `yaml:"interval"`
		MaxWait  time.Duration `yaml:"maxWait"`
	} `yaml:"polling"`

	Database struct {
		Driver   string `yaml:"driver"` // mysql | postgres | "" (history disabled)
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`

	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rateLimit"`

	Log struct {
		Debug bool `yaml:"debug"`
	} `yaml:"log"`
}

// Default values used for anything the file leaves out.
func Default() *Config {
	var c Config
	c.Server.Port = 5000
	c.Server.ReadTimeout = 30 * time.Second
	c.Server.WriteTimeout = 15 * time.Minute
	c.Server.IdleTimeout = 60 * time.Second
	c.Server.CORSOrigins = []string{"*"}

	c.Sonar.HostURL = "http://localhost:9000"
	c.Sonar.Timeout = 15 * time.Second

	c.Scanner.Runtime = "local"
	c.Scanner.Path = "/opt/sonar-scanner/bin/sonar-scanner"
	c.Scanner.Image = "sonarsource/sonar-scanner-cli:latest"
	c.Scanner.Git = "git"
	c.Scanner.Timeout = 10 * time.Minute

	c.Workspace.Root = os.TempDir()
	c.Workspace.UploadsRoot = "/tmp/sonar_file_uploads"
	c.Workspace.DefaultExt = "py"
	c.Workspace.MaxArchiveBytes = 1 << 30
	c.Workspace.MaxUploadBytes = 256 << 20

	c.Polling.Interval = 2 * time.Second
	c.Polling.MaxWait = 30 * time.Second

	c.Database.SSLMode = "disable"

	c.OpenAI.Model = "gpt-4o-mini"

	c.RateLimit.RPS = 1
	c.RateLimit.Burst = 5
	return &c
}

// Load reads the yaml file at path on top of Default, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("SONAR_HOST_URL"); v != "" {
		c.Sonar.HostURL = v
	}
	if v := getenv("SONAR_TOKEN"); v != "" {
		c.Sonar.Token = v
	}
	if v := getenv("SONAR_SCANNER_PATH"); v != "" {
		c.Scanner.Path = v
	}
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	}
	if v := getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Server.Port = p
	}
	return nil
}

func (c *Config) Validate() error {
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if c.Polling.MaxWait < c.Polling.Interval {
		return fmt.Errorf("polling.maxWait must be at least polling.interval")
	}
	switch c.Scanner.Runtime {
	case "local", "docker":
	default:
		return fmt.Errorf("unsupported scanner.runtime %q (allowed: local, docker)", c.Scanner.Runtime)
	}
	switch c.Database.Driver {
	case "", "mysql", "postgres":
	default:
		return fmt.Errorf("unsupported database.driver %q (allowed: mysql, postgres)", c.Database.Driver)
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}
