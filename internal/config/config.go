// Package config loads the steprec configuration from a yaml file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jakopako/steprec/internal/capture"
	"github.com/jakopako/steprec/internal/control"
	"github.com/jakopako/steprec/internal/export"
	"github.com/jakopako/steprec/internal/fetch"
	"github.com/jakopako/steprec/internal/live"
	"github.com/jakopako/steprec/internal/locator"
	"github.com/jakopako/steprec/internal/log"
	"github.com/jakopako/steprec/internal/store"
)

// Config defines the overall structure of the recorder configuration.
// Values will be taken from a config yml file or environment variables
// or both.
type Config struct {
	Log      log.FileConfig         `yaml:"log"`
	Fetcher  fetch.FetcherConfig    `yaml:"fetcher"`
	Capture  capture.Config         `yaml:"capture"`
	Resolver locator.ResolverConfig `yaml:"resolver"`
	Export   export.Config          `yaml:"export"`
	Store    store.StoreConfig      `yaml:"store"`
	Control  control.Config         `yaml:"control"`
	Browser  live.Config            `yaml:"browser"`
}

// NewConfig reads the configuration at path. If the file does not exist only
// defaults and environment variables are used.
func NewConfig(path string) (*Config, error) {
	var config Config

	_, err := os.Stat(path)
	switch {
	case path == "" || errors.Is(err, fs.ErrNotExist):
		err = cleanenv.ReadEnv(&config)
	case err != nil:
		return nil, err
	default:
		err = cleanenv.ReadConfig(path, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading config %s: %w", path, err)
	}
	return &config, nil
}
