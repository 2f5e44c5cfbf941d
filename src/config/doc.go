// Package config defines the configuration of a subkifed aggregator and the
// conventions for where its files live on disk.
package config
