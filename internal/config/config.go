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

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Configuration keys read by the speak controller at call time
const (
	KeyRecordedFileName    = "recorded_file_name"
	KeySpeakEnabled        = "speak_enabled"
	KeyGeoSpeakEnabled     = "geo_speak_enabled"
	KeyMaxRecordingLength  = "max_recording_length"
	KeyUseComplexRecording = "use_complex_recording_mechanism"
	KeyTempDir             = "temp_dir"
	KeySampleRate          = "sample_rate"
	KeyGraphSampleRate     = "graph_sample_rate"
	KeyDeviceID            = "device_id"
	KeyNATSURL             = "nats_url"
	KeyHubURL              = "hub_url"
	KeyQueueFile           = "queue_file"
	KeyHeartbeatInterval   = "heartbeat_interval"
	KeyLogLevel            = "log_level"
)

const (
	envPrefix               = "SPEAK"
	defaultRecordedFileName = "recording.wav"
	defaultMaxRecordingLen  = 45.0
	defaultSampleRate       = 22050
	defaultGraphSampleRate  = 44100
	defaultDeviceID         = "loqa-speak-001"
	defaultHeartbeatSeconds = 30.0
)

// Lookup is the key-value view of configuration consulted on every
// operation. *viper.Viper satisfies it.
type Lookup interface {
	GetString(key string) string
	GetBool(key string) bool
	GetFloat64(key string) float64
}

// AppConfig is the validated startup configuration
type AppConfig struct {
	RecordedFileName   string  `mapstructure:"recorded_file_name" validate:"required"`
	SpeakEnabled       bool    `mapstructure:"speak_enabled"`
	GeoSpeakEnabled    bool    `mapstructure:"geo_speak_enabled"`
	MaxRecordingLength float64 `mapstructure:"max_recording_length" validate:"gt=0"`
	UseComplex         bool    `mapstructure:"use_complex_recording_mechanism"`
	TempDir            string  `mapstructure:"temp_dir" validate:"required"`
	SampleRate         int     `mapstructure:"sample_rate" validate:"gte=8000,lte=192000"`
	GraphSampleRate    int     `mapstructure:"graph_sample_rate" validate:"gte=8000,lte=192000"`
	DeviceID           string  `mapstructure:"device_id" validate:"required"`
	NATSURL            string  `mapstructure:"nats_url" validate:"omitempty,url"`
	HubURL             string  `mapstructure:"hub_url" validate:"omitempty,url"`
	QueueFile          string  `mapstructure:"queue_file"`
	HeartbeatInterval  float64 `mapstructure:"heartbeat_interval" validate:"gt=0"`
	LogLevel           string  `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// InitConfig builds a viper instance from defaults, an optional config file
// and SPEAK_* environment variables.
func InitConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefault(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("SPEAK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	return v, nil
}

func setDefault(v *viper.Viper) {
	v.SetDefault(KeyRecordedFileName, defaultRecordedFileName)
	v.SetDefault(KeySpeakEnabled, true)
	v.SetDefault(KeyGeoSpeakEnabled, false)
	v.SetDefault(KeyMaxRecordingLength, defaultMaxRecordingLen)
	v.SetDefault(KeyUseComplexRecording, false)
	v.SetDefault(KeyTempDir, os.TempDir())
	v.SetDefault(KeySampleRate, defaultSampleRate)
	v.SetDefault(KeyGraphSampleRate, defaultGraphSampleRate)
	v.SetDefault(KeyDeviceID, defaultDeviceID)
	v.SetDefault(KeyNATSURL, "")
	v.SetDefault(KeyHubURL, "")
	v.SetDefault(KeyQueueFile, "")
	v.SetDefault(KeyHeartbeatInterval, defaultHeartbeatSeconds)
	v.SetDefault(KeyLogLevel, "info")
}

// GetApplicationConfig unmarshals and validates the startup configuration
func GetApplicationConfig(v *viper.Viper) (*AppConfig, error) {
	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
