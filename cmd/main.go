/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/viper"

	"github.com/loqalabs/loqa-speak-go/internal/audio"
	"github.com/loqalabs/loqa-speak-go/internal/config"
	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Config file (defaults to $SPEAK_CONFIG)")
	deviceID := flag.String("id", "", "Device identifier")
	natsURL := flag.String("nats", "", "NATS server URL for events and remote commands")
	hubURL := flag.String("hub", "", "Hub URL for uploads")
	useComplex := flag.Bool("complex", false, "Use the audio graph recording mechanism")
	flag.Parse()

	v, err := config.InitConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	applyFlags(v, flag.CommandLine, map[string]string{
		"id":      config.KeyDeviceID,
		"nats":    config.KeyNATSURL,
		"hub":     config.KeyHubURL,
		"complex": config.KeyUseComplexRecording,
	}, map[string]interface{}{
		"id":      *deviceID,
		"nats":    *natsURL,
		"hub":     *hubURL,
		"complex": *useComplex,
	})

	cfg, err := config.GetApplicationConfig(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Infof("🚀 Starting Loqa Speak")
	logger.Infof("📋 Device ID: %s", cfg.DeviceID)
	logger.Infof("🎛️ Mechanism: %s", mechanismName(cfg.UseComplex))

	app, err := newApp(cfg, v, audio.NewPortAudioBackend(), logger)
	if err != nil {
		logger.Errorf("❌ Failed to start: %v", err)
		_ = logger.Sync()
		os.Exit(1) //nolint:gocritic // logger synced above
	}
	defer app.Close()

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printBanner(os.Stdout, cfg)
	if err := app.Run(ctx, os.Stdin, os.Stdout); err != nil {
		logger.Errorf("❌ %v", err)
	}

	logger.Info("👋 Speak service stopped")
}

// applyFlags copies explicitly set flags over file and environment values
func applyFlags(v *viper.Viper, fs *flag.FlagSet, keys map[string]string, values map[string]interface{}) {
	fs.Visit(func(f *flag.Flag) {
		if key, ok := keys[f.Name]; ok {
			v.Set(key, values[f.Name])
		}
	})
}

func mechanismName(useGraph bool) string {
	if useGraph {
		return "complex (audio graph)"
	}
	return "simple (recorder/player)"
}
