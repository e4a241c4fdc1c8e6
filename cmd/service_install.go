package cmd

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

const (
	serviceFile    = "/etc/systemd/system/minimanager.service"
	serviceContent = `[Unit]
Description=minimanager world daemon
After=network-online.target

[Service]
User=root
WorkingDirectory=/etc/minimanager
LimitNOFILE=4096
ExecStart=/usr/local/bin/minimanager
Restart=on-failure
StartLimitInterval=180
StartLimitBurst=30
RestartSec=5s
KillMode=mixed
TimeoutStopSec=120

[Install]
WantedBy=multi-user.target
`
)

func newServiceInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "service-install",
		Short: "Install and enable the systemd unit for this daemon",
		Run:   installService,
	}
}

func installService(*cobra.Command, []string) {
	if _, err := os.Stat(serviceFile); err == nil {
		log.WithField("path", serviceFile).Fatal("service already installed")
		return
	}
	if err := os.WriteFile(serviceFile, []byte(serviceContent), 0o644); err != nil {
		log.WithField("error", err).Fatal("error while writing service file")
		return
	}
	if err := exec.Command("systemctl", "daemon-reload").Run(); err != nil {
		log.WithField("error", err).Fatal("error while reloading systemd")
		return
	}
	if err := exec.Command("systemctl", "enable", "--now", "minimanager").Run(); err != nil {
		log.WithField("error", err).Fatal("error while enabling service")
		return
	}
	fmt.Println("service installed and started")
}
