package commands

import (
	"github.com/spf13/cobra"
	"github.com/subki/federation/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

// RootCmd is the root command for subkifed
var RootCmd = &cobra.Command{
	Use:              "subkifed",
	Short:            "subkifed knowledge aggregator",
	TraverseChildren: true,
}
