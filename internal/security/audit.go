// Package security audits the runtime configuration and state files
// for risky defaults and plaintext secrets. The audit is a pure pass:
// it reads the named files and mutates nothing.
package security

import (
	"sort"
	"strconv"

	"github.com/openclaw/openclaw/internal/config"
	"github.com/openclaw/openclaw/internal/diagnostics"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// severityRank orders error before warning before info.
func severityRank(s Severity) int {
	switch s {
	case SeverityError:
		return 0
	case SeverityWarning:
		return 1
	default:
		return 2
	}
}

// Finding is one audit result.
type Finding struct {
	ID          string   `json:"id"`
	Severity    Severity `json:"severity"`
	Title       string   `json:"title"`
	Detail      string   `json:"detail,omitempty"`
	Remediation string   `json:"remediation,omitempty"`
}

// Options selects what the audit examines. Every field is optional;
// empty inputs simply skip the matching checks.
type Options struct {
	// Config is the parsed runtime configuration.
	Config *config.Config

	// ConfigPath is checked for file permissions when set.
	ConfigPath string

	// StatePaths are state files checked for permissions.
	StatePaths []string

	// ScanPaths are files scanned for plaintext secret patterns.
	ScanPaths []string

	// Diag receives audit events when set.
	Diag *diagnostics.Pipeline
}

// Run executes every applicable check and returns the findings ranked
// by severity, then by ID.
func Run(opts Options) []Finding {
	var findings []Finding

	if opts.Config != nil {
		findings = append(findings, auditConfig(opts.Config)...)
	}

	var permPaths []string
	if opts.ConfigPath != "" {
		permPaths = append(permPaths, opts.ConfigPath)
	}
	permPaths = append(permPaths, opts.StatePaths...)
	findings = append(findings, auditFilePermissions(permPaths)...)
	findings = append(findings, auditPlaintextSecrets(opts.ScanPaths)...)

	sort.Slice(findings, func(i, j int) bool {
		ri, rj := severityRank(findings[i].Severity), severityRank(findings[j].Severity)
		if ri != rj {
			return ri < rj
		}
		return findings[i].ID < findings[j].ID
	})

	if opts.Diag != nil {
		for _, f := range findings {
			opts.Diag.Record(diagnostics.Event{
				Subsystem: diagnostics.SubsystemSecurity,
				Name:      diagnostics.EventAuditFinding,
				Metadata:  map[string]string{"id": f.ID, "severity": string(f.Severity)},
			})
		}
		opts.Diag.Record(diagnostics.Event{
			Subsystem: diagnostics.SubsystemSecurity,
			Name:      diagnostics.EventAuditCompleted,
			Metadata:  map[string]string{"findings": strconv.Itoa(len(findings))},
		})
	}
	return findings
}

// HasErrors reports whether any finding is error severity.
func HasErrors(findings []Finding) bool {
	for _, f := range findings {
		if f.Severity == SeverityError {
			return true
		}
	}
	return false
}
