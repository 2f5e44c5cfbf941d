package config

import (
	"crypto/ed25519"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/subki/federation/src/common"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the
	// aggregator's private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the
	// Badger database
	DefaultBadgerFile = "badger_db"

	// DefaultTrustFile is the default name of the file containing the trust
	// map
	DefaultTrustFile = "trust.json"

	// DefaultAuditFile is the default name of the append-only audit log
	DefaultAuditFile = "audit.log"

	// DefaultErrorLogFile is the default name of the file collecting error
	// feedback events
	DefaultErrorLogFile = "subki_errors.log"
)

// Default configuration values.
const (
	DefaultLogLevel      = "debug"
	DefaultServiceAddr   = "127.0.0.1:8000"
	DefaultMinConfidence = 0.7
	DefaultStore         = false
	DefaultDrainInterval = 30 * time.Second
)

// Config contains all the configuration properties of an aggregator.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates all log output to a file.
	LogFile string `mapstructure:"log-file"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP API service.
	ServiceAddr string `mapstructure:"service-listen"`

	// MinConfidence is the effective-confidence threshold below which
	// proposals are filtered out.
	MinConfidence float64 `mapstructure:"min-confidence"`

	// ActiveSet restricts which nodes' proposals are eligible. Empty means
	// every registered node is active.
	ActiveSet []string `mapstructure:"active-set"`

	// Store activates persistent Badger storage for the ledger, proposal
	// archive and event archive. When false, flat files are used.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// DrainInterval is the period of the background feedback-queue drain.
	// Zero disables the background drain; the queue is then only drained by
	// high-priority events and explicit calls.
	DrainInterval time.Duration `mapstructure:"drain-interval"`

	// Moniker defines the friendly name of this aggregator
	Moniker string `mapstructure:"moniker"`

	// Key is the private key the aggregator re-signs ledger blocks with.
	Key ed25519.PrivateKey `mapstructure:"-"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:       DefaultDataDir(),
		LogLevel:      DefaultLogLevel,
		ServiceAddr:   DefaultServiceAddr,
		MinConfidence: DefaultMinConfidence,
		Store:         DefaultStore,
		DatabaseDir:   DefaultDatabaseDir(),
		DrainInterval: DefaultDrainInterval,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t)
	return config
}

// SetDataDir sets the top-level data directory, and updates the database
// directory if it is currently set to the default value. If the database
// directory is not currently the default, it means the user has explicitely
// set it to something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// TrustFile returns the full path of the trust map file.
func (c *Config) TrustFile() string {
	return filepath.Join(c.DataDir, DefaultTrustFile)
}

// AuditFile returns the full path of the audit log.
func (c *Config) AuditFile() string {
	return filepath.Join(c.DataDir, DefaultAuditFile)
}

// ErrorLogFile returns the full path of the error-event log.
func (c *Config) ErrorLogFile() string {
	return filepath.Join(c.DataDir, DefaultErrorLogFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "subkifed".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			pathMap := make(lfshook.PathMap)
			for _, level := range logrus.AllLevels {
				pathMap[level] = c.LogFile
			}
			c.logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.JSONFormatter{}))
		}
	}
	return c.logger.WithField("prefix", "subkifed")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level configuration
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Subkifed")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Subkifed")
		} else {
			return filepath.Join(home, ".subkifed")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
