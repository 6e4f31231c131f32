// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Device  DeviceConfig  `mapstructure:"device"`
	Journal JournalConfig `mapstructure:"journal"`
	Logging LoggingConfig `mapstructure:"logging"`
	App     AppConfig     `mapstructure:"app"`
}

// ServerConfig represents the gateway listener configuration
type ServerConfig struct {
	Address    string `mapstructure:"address"`
	Port       int    `mapstructure:"port"`
	MaxClients int    `mapstructure:"max_clients"`
	// IDFile receives the "pid:address:port" line; empty means stdout
	IDFile string `mapstructure:"id_file"`
}

// MonitorConfig represents the HTTP monitor configuration
type MonitorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Host           string        `mapstructure:"host"`
	Port           string        `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	EventHistory   int           `mapstructure:"event_history"`
}

// DeviceConfig represents port driver configuration
type DeviceConfig struct {
	Driver         string           `mapstructure:"driver"`
	MaxReadSize    int              `mapstructure:"max_read_size"`
	ReadTimeout    time.Duration    `mapstructure:"read_timeout"`
	MaxReadTimeout time.Duration    `mapstructure:"max_read_timeout"`
	LoopbackPorts  []string         `mapstructure:"loopback_ports"`
	DefaultMode    SerialPortConfig `mapstructure:"default_mode"`
}

// SerialPortConfig represents the mode a port is opened with
type SerialPortConfig struct {
	BaudRate int     `mapstructure:"baud_rate"`
	DataBits int     `mapstructure:"data_bits"`
	StopBits float64 `mapstructure:"stop_bits"`
	Parity   string  `mapstructure:"parity"`
}

// JournalConfig represents the session journal database configuration
type JournalConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	User         string        `mapstructure:"user"`
	Password     string        `mapstructure:"password"`
	DBName       string        `mapstructure:"dbname"`
	SSLMode      string        `mapstructure:"sslmode"`
	MaxOpenConns int           `mapstructure:"max_open_conns"`
	MaxIdleConns int           `mapstructure:"max_idle_conns"`
	MaxLifetime  time.Duration `mapstructure:"max_lifetime"`
	Retention    time.Duration `mapstructure:"retention"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
	// Verbosity lowers the level by one step per -v
	Verbosity int `mapstructure:"verbosity"`
}

// AppConfig represents application metadata
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// Drivers lists the port driver names accepted by device.driver
var Drivers = []string{"serial", "loopback"}

// Load builds the configuration from defaults, an optional config file,
// SERIAL_GATEWAY_* environment variables and the command line, in
// increasing order of precedence
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	if err := bindFlags(v, flags); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	// Environment variable support
	v.SetEnvPrefix("SERIAL_GATEWAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile, _ := flags.GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("serial-gateway")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/serial-gateway")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("serial-gateway", pflag.ContinueOnError)
	flags.SetOutput(os.Stderr)
	flags.StringP("address", "a", "127.0.0.1", "address to bind the gateway to")
	flags.IntP("port", "p", 0, "port to bind the gateway to (0 picks a free port)")
	flags.StringP("idfile", "i", "", "file receiving pid:address:port (default stdout)")
	flags.IntP("max-clients", "m", 10, "maximum number of concurrently served connections")
	flags.CountP("verbose", "v", "increase logging verbosity (repeatable)")
	flags.StringP("config", "c", "", "configuration file")
	flags.String("driver", "serial", "port driver: "+strings.Join(Drivers, ", "))
	flags.Bool("monitor", false, "enable the HTTP monitor")
	return flags
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"server.address":     "address",
		"server.port":        "port",
		"server.id_file":     "idfile",
		"server.max_clients": "max-clients",
		"logging.verbosity":  "verbose",
		"device.driver":      "driver",
		"monitor.enabled":    "monitor",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 0)
	v.SetDefault("server.max_clients", 10)
	v.SetDefault("server.id_file", "")

	// Monitor defaults
	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.host", "127.0.0.1")
	v.SetDefault("monitor.port", "8084")
	v.SetDefault("monitor.read_timeout", "30s")
	v.SetDefault("monitor.write_timeout", "30s")
	v.SetDefault("monitor.idle_timeout", "120s")
	v.SetDefault("monitor.event_history", 100)

	// Device defaults
	v.SetDefault("device.driver", "serial")
	v.SetDefault("device.max_read_size", 4096)
	v.SetDefault("device.read_timeout", "1s")
	v.SetDefault("device.max_read_timeout", "60s")
	v.SetDefault("device.loopback_ports", []string{"loop0", "loop1"})
	v.SetDefault("device.default_mode.baud_rate", 9600)
	v.SetDefault("device.default_mode.data_bits", 8)
	v.SetDefault("device.default_mode.stop_bits", 1)
	v.SetDefault("device.default_mode.parity", "none")

	// Journal defaults
	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.host", "localhost")
	v.SetDefault("journal.port", 5432)
	v.SetDefault("journal.user", "postgres")
	v.SetDefault("journal.dbname", "serial_gateway")
	v.SetDefault("journal.sslmode", "disable")
	v.SetDefault("journal.max_open_conns", 5)
	v.SetDefault("journal.max_idle_conns", 2)
	v.SetDefault("journal.max_lifetime", "5m")
	v.SetDefault("journal.retention", "720h")

	// Logging defaults
	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	// App defaults
	v.SetDefault("app.name", "serial-gateway")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "production")
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Server.MaxClients < 1 {
		return fmt.Errorf("server.max_clients must be at least 1")
	}
	if config.Server.Port < 0 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", config.Server.Port)
	}
	if config.Device.MaxReadSize < 1 {
		return fmt.Errorf("device.max_read_size must be at least 1")
	}
	if config.Device.ReadTimeout < 0 || config.Device.MaxReadTimeout < config.Device.ReadTimeout {
		return fmt.Errorf("device.read_timeout must be between 0 and device.max_read_timeout")
	}

	if !contains(Drivers, config.Device.Driver) {
		return fmt.Errorf("device.driver must be one of: %v", Drivers)
	}

	// Validate logging level
	validLevels := []string{"debug", "info", "warn", "error", "fatal"}
	if !contains(validLevels, config.Logging.Level) {
		return fmt.Errorf("logging.level must be one of: %v", validLevels)
	}

	if config.Journal.Enabled && (config.Journal.Host == "" || config.Journal.DBName == "") {
		return fmt.Errorf("journal.host and journal.dbname are required when the journal is enabled")
	}

	return nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

// GetJournalDSN returns the journal database connection string
func (c *Config) GetJournalDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Journal.Host, c.Journal.Port, c.Journal.User,
		c.Journal.Password, c.Journal.DBName, c.Journal.SSLMode)
}

// GetServerAddr returns the gateway listen address
func (c *Config) GetServerAddr() string {
	return net.JoinHostPort(c.Server.Address, strconv.Itoa(c.Server.Port))
}

// GetMonitorAddr returns the monitor listen address
func (c *Config) GetMonitorAddr() string {
	return net.JoinHostPort(c.Monitor.Host, c.Monitor.Port)
}

// IsProduction checks if the environment is production
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}
