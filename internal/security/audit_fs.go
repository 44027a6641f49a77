package security

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
)

// maxScanLine caps how much of a single line the secret scanner reads.
const maxScanLine = 64 * 1024

// secretPattern matches assignments of long opaque values to keys that
// look like credentials.
var secretPattern = regexp.MustCompile(`(?i)(api[_-]?key|access[_-]?token|bot[_-]?token|secret|password)["']?\s*[:=]\s*["']?[A-Za-z0-9_\-]{16,}`)

// auditFilePermissions flags state files readable or writable by other
// users. Missing paths are skipped.
func auditFilePermissions(paths []string) []Finding {
	var findings []Finding
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.IsDir() {
			continue
		}
		mode := info.Mode().Perm()
		switch {
		case mode&0o002 != 0:
			findings = append(findings, Finding{
				ID:          "fs.world-writable",
				Severity:    SeverityError,
				Title:       "State file is world-writable",
				Detail:      fmt.Sprintf("%s has mode %04o", path, mode),
				Remediation: fmt.Sprintf("chmod 600 %s", path),
			})
		case mode&0o077 != 0:
			findings = append(findings, Finding{
				ID:          "fs.permissions-loose",
				Severity:    SeverityWarning,
				Title:       "State file readable by other users",
				Detail:      fmt.Sprintf("%s has mode %04o", path, mode),
				Remediation: fmt.Sprintf("chmod 600 %s", path),
			})
		}
	}
	return findings
}

// auditPlaintextSecrets scans the named files line by line for values
// that look like credentials.
func auditPlaintextSecrets(paths []string) []Finding {
	var findings []Finding
	for _, path := range paths {
		line, ok := scanFileForSecret(path)
		if !ok {
			continue
		}
		findings = append(findings, Finding{
			ID:          "fs.plaintext-secret",
			Severity:    SeverityWarning,
			Title:       "File contains what looks like a plaintext secret",
			Detail:      fmt.Sprintf("%s line %d matches a credential pattern", path, line),
			Remediation: "move the value into the credential store and reference it from config",
		})
	}
	return findings
}

// scanFileForSecret returns the first matching line number, or ok=false.
func scanFileForSecret(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxScanLine)
	line := 0
	for scanner.Scan() {
		line++
		if secretPattern.Match(scanner.Bytes()) {
			return line, true
		}
	}
	return 0, false
}
