package main

import (
	"os"
	"path/filepath"
)

// stateDir resolves the engine's state directory: $OPENCLAW_STATE_DIR
// when set, otherwise ~/.openclaw.
func stateDir() string {
	if dir := os.Getenv("OPENCLAW_STATE_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".openclaw"
	}
	return filepath.Join(home, ".openclaw")
}

func defaultConfigPath() string {
	return filepath.Join(stateDir(), "config.json")
}

func sessionsPath() string {
	return filepath.Join(stateDir(), "sessions.json")
}

func memoryPath() string {
	return filepath.Join(stateDir(), "conversation-memory.json")
}

func credentialsPath() string {
	return filepath.Join(stateDir(), "credentials.json")
}

func defaultWorkspaceRoot() string {
	return filepath.Join(stateDir(), "workspace")
}
