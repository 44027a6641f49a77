package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openclaw/openclaw/internal/config"
)

func runInit(cmd *cobra.Command, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("config already exists at %s", configPath)
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := config.Save(config.Default(), configPath); err != nil {
		return err
	}
	cmd.Printf("Wrote default config to %s\n", configPath)
	return nil
}
