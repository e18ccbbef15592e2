package config

import (
	"errors"
	"io/fs"
	"log/slog"

	"github.com/spf13/viper"
	"github.com/wavetap/wavetap/internal/conditioner"
	"github.com/wavetap/wavetap/internal/endpoint"
)

func setViperDefaults() {
	viper.SetDefault("loglevel", "info")
	viper.SetDefault("logfile", "")

	// Transport. An empty host means auto-resolution (helper command, mdns,
	// private-range probe, loopback).
	viper.SetDefault("host", "")
	viper.SetDefault("port", endpoint.DefaultPort)

	// Capture and conditioning.
	viper.SetDefault("preferredchannels", 2)
	viper.SetDefault("deviceindex", -1)
	viper.SetDefault("gain", conditioner.DefaultGain)

	// Rate the visualizer expects frames at; frames captured at any other
	// negotiated rate are resampled to this.
	viper.SetDefault("targetrate", 44100)

	// Optional WAV tap of the conditioned stream. Empty disables it.
	viper.SetDefault("archivefile", "")
}

func LoadConfig(configFilePath string) {
	setViperDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
			slog.Info("no config file found, using defaults", "configFilePath", configFilePath)
		} else {
			slog.Error("error during config read", "err", err)
			panic(err)
		}
	}
}
