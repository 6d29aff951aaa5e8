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

package nats

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/loqalabs/loqa-speak-go/internal/logging"
)

// Remote command names
const (
	CommandRecord      = "record"
	CommandStop        = "stop"
	CommandPlay        = "play"
	CommandStopPlay    = "stop-play"
	CommandDelete      = "delete"
	CommandAdd         = "add"
	CommandDescribe    = "describe"
	CommandRemove      = "remove"
	broadcastSubject   = "speak.commands.broadcast"
	commandSubjectBase = "speak.commands."
)

// CommandMessage is a remote control request from the hub
type CommandMessage struct {
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Path        string `json:"path,omitempty"`
}

// CommandReply is sent back when the request carries a reply subject
type CommandReply struct {
	Command string `json:"command"`
	OK      bool   `json:"ok"`
	Path    string `json:"path,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Commander is the recording surface remote commands drive
type Commander interface {
	StartRecording()
	StopRecording()
	StartPlayback()
	StopPlayback()
	DeleteRecording()
	AddRecording(description string) (string, bool)
	SetRecordingDescription(path, description string)
	RemoveRecording(path string)
}

// CommandSubject returns the subject commands for deviceID arrive on
func CommandSubject(deviceID string) string {
	return commandSubjectBase + deviceID
}

// CommandSubscriber handles NATS subscriptions for remote commands
type CommandSubscriber struct {
	natsConn  SpeakNATSConnection
	deviceID  string
	commander Commander
	logger    *zap.SugaredLogger
}

// NewCommandSubscriber creates a subscriber dispatching to commander
func NewCommandSubscriber(natsConn SpeakNATSConnection, deviceID string, commander Commander, logger *zap.SugaredLogger) *CommandSubscriber {
	return &CommandSubscriber{
		natsConn:  natsConn,
		deviceID:  deviceID,
		commander: commander,
		logger:    logging.OrNop(logger),
	}
}

// Start begins listening for commands
func (cs *CommandSubscriber) Start() error {
	deviceTopic := CommandSubject(cs.deviceID)
	if _, err := cs.natsConn.Subscribe(deviceTopic, cs.handleCommandMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", deviceTopic, err)
	}

	if _, err := cs.natsConn.Subscribe(broadcastSubject, cs.handleCommandMessage); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", broadcastSubject, err)
	}

	cs.logger.Infof("🎧 Subscribed to command topics: %s, %s", deviceTopic, broadcastSubject)
	return nil
}

func (cs *CommandSubscriber) handleCommandMessage(msg *nats.Msg) {
	var cmd CommandMessage
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		cs.logger.Errorf("❌ Failed to unmarshal command message: %v", err)
		cs.reply(msg, CommandReply{OK: false, Error: "malformed command"})
		return
	}

	cs.logger.Infof("📥 Received command %q on %s", cmd.Command, msg.Subject)
	cs.reply(msg, cs.Dispatch(cmd))
}

// Dispatch runs cmd against the commander
func (cs *CommandSubscriber) Dispatch(cmd CommandMessage) CommandReply {
	result := CommandReply{Command: cmd.Command, OK: true}

	switch cmd.Command {
	case CommandRecord:
		cs.commander.StartRecording()
	case CommandStop:
		cs.commander.StopRecording()
	case CommandPlay:
		cs.commander.StartPlayback()
	case CommandStopPlay:
		cs.commander.StopPlayback()
	case CommandDelete:
		cs.commander.DeleteRecording()
	case CommandAdd:
		result.Path, result.OK = cs.commander.AddRecording(cmd.Description)
		if !result.OK {
			result.Error = "no recording"
		}
	case CommandDescribe:
		if cmd.Path == "" {
			return CommandReply{Command: cmd.Command, Error: "path required"}
		}
		cs.commander.SetRecordingDescription(cmd.Path, cmd.Description)
	case CommandRemove:
		if cmd.Path == "" {
			return CommandReply{Command: cmd.Command, Error: "path required"}
		}
		cs.commander.RemoveRecording(cmd.Path)
	default:
		cs.logger.Warnf("⚠️  Unknown command: %q", cmd.Command)
		return CommandReply{Command: cmd.Command, Error: "unknown command"}
	}

	return result
}

func (cs *CommandSubscriber) reply(msg *nats.Msg, result CommandReply) {
	if msg.Reply == "" {
		return
	}

	data, err := json.Marshal(result)
	if err != nil {
		cs.logger.Errorf("❌ Failed to marshal command reply: %v", err)
		return
	}
	if err := cs.natsConn.Publish(msg.Reply, data); err != nil {
		cs.logger.Warnf("⚠️  Failed to send command reply: %v", err)
	}
}

// Close closes the NATS connection
func (cs *CommandSubscriber) Close() {
	if cs.natsConn != nil {
		cs.natsConn.Close()
		cs.logger.Info("🔌 NATS connection closed")
	}
}
