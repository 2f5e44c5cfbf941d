package commands

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subki/federation/src/aggregator"
	"github.com/subki/federation/src/nodes"
	"github.com/subki/federation/src/proxy/inmem"
	"github.com/subki/federation/src/service"
)

// NewRunCmd returns the command that starts an aggregator
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run aggregator",
		PreRunE: loadConfig,
		RunE:    runAggregator,
	}
	AddRunFlags(cmd)
	return cmd
}

func runAggregator(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	registry, err := loadRegistry()
	if err != nil {
		logger.Error("Cannot load node registry:", err)
		return err
	}

	learner := inmem.NewInmemProxy(logger.Logger)

	engine := aggregator.NewAggregator(_config, registry, learner)

	if err := engine.Init(); err != nil {
		logger.Error("Cannot initialize aggregator:", err)
		return err
	}

	defer engine.Shutdown()

	engine.StartDrain()

	if _config.NoService {
		select {}
	}

	apiService := service.NewService(_config.ServiceAddr, engine, logger)

	apiService.Serve()

	return nil
}

// loadRegistry reads nodes.json from the data directory. A missing file is
// not an error; the aggregator starts with an empty registry and signature
// checks fall back to the keys embedded in proposals.
func loadRegistry() (nodes.Registry, error) {
	jsonRegistry := nodes.NewJSONRegistry(_config.DataDir)

	registry, err := jsonRegistry.Nodes()
	if err != nil {
		if os.IsNotExist(err) {
			return nodes.NewInmemRegistry(), nil
		}
		return nil, err
	}

	return registry, nil
}

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Duplicate log output to this file")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Consensus
	cmd.Flags().Float64("min-confidence", _config.MinConfidence, "Effective-confidence threshold for merging")
	cmd.Flags().StringSlice("active-set", _config.ActiveSet, "Node IDs allowed to propose; empty allows all")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of flat files")
	cmd.Flags().String("db", _config.DatabaseDir, "Database directory")

	// Feedback
	cmd.Flags().Duration("drain-interval", _config.DrainInterval, "Period of the feedback queue drain; 0 disables it")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":       _config.DataDir,
		"ServiceAddr":   _config.ServiceAddr,
		"NoService":     _config.NoService,
		"LogLevel":      _config.LogLevel,
		"Moniker":       _config.Moniker,
		"MinConfidence": _config.MinConfidence,
		"ActiveSet":     _config.ActiveSet,
		"Store":         _config.Store,
		"DatabaseDir":   _config.DatabaseDir,
		"DrainInterval": _config.DrainInterval,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/subkifed.toml (.json, .yaml also work)
	viper.SetConfigName("subkifed")
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
