package system

import (
	"os/exec"
	"runtime"
	"strings"

	"github.com/acobaugh/osrelease"
)

type Information struct {
	Version      string `json:"version"`
	Architecture string `json:"architecture"`
	OS           string `json:"os"`
	OSName       string `json:"os_name"`
	CpuCount     int    `json:"cpu_count"`
	Java         string `json:"java"`
}

// GetSystemInformation returns details about the host this daemon runs on.
// Missing os-release data or a missing java binary are not errors, the
// fields are simply left empty.
func GetSystemInformation() *Information {
	info := &Information{
		Version:      Version,
		Architecture: runtime.GOARCH,
		OS:           runtime.GOOS,
		CpuCount:     runtime.NumCPU(),
		Java:         JavaVersion(),
	}
	if release, err := osrelease.Read(); err == nil {
		info.OSName = FirstNotEmpty(release["PRETTY_NAME"], release["NAME"])
	}
	return info
}

// JavaVersion returns the first line of "java -version", or an empty string
// when java is not on the PATH.
func JavaVersion() string {
	out, err := exec.Command("java", "-version").CombinedOutput()
	if err != nil {
		return ""
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line)
}
