package main

import (
	"fmt"
	"os"

	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/security"
)

func runAudit(configPath string) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}

	findings := security.Run(security.Options{
		Config:     cfg,
		ConfigPath: configPath,
		StatePaths: []string{sessionsPath(), memoryPath(), credentialsPath()},
		ScanPaths:  []string{configPath},
	})

	if len(findings) == 0 {
		fmt.Println("No findings.")
		return nil
	}
	for _, f := range findings {
		fmt.Printf("[%s] %s: %s\n", f.Severity, f.ID, f.Title)
		if f.Detail != "" {
			fmt.Printf("    %s\n", f.Detail)
		}
		if f.Remediation != "" {
			fmt.Printf("    fix: %s\n", f.Remediation)
		}
	}
	fmt.Printf("%d finding(s).\n", len(findings))

	if security.HasErrors(findings) {
		os.Exit(1)
	}
	return nil
}
