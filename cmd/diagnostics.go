package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/mcmanager/minimanager/config"
	"github.com/mcmanager/minimanager/loggers/cli"
	"github.com/mcmanager/minimanager/system"
)

var reportArgs struct {
	ShowEndpoints bool
	AttachLogs    bool
	Output        string
	Lines         int
}

func newDiagnosticsCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "diagnostics",
		Short: "Print a report about this node that can be attached to bug reports.",
		PreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
			log.SetHandler(cli.Default)
		},
		Run: diagnosticsCmdRun,
	}

	command.Flags().IntVar(&reportArgs.Lines, "log-lines", 200, "how many lines of the log file to attach")
	command.Flags().StringVarP(&reportArgs.Output, "output", "o", "", "write the report to this file instead of stdout")

	return command
}

func diagnosticsCmdRun(*cobra.Command, []string) {
	err := survey.Ask([]*survey.Question{
		{
			Name:   "ShowEndpoints",
			Prompt: &survey.Confirm{Message: "Include addresses and domains in the report?", Default: false},
		},
		{
			Name:   "AttachLogs",
			Prompt: &survey.Confirm{Message: "Attach the tail of the log file?", Default: true},
		},
	}, &reportArgs)
	if err == terminal.InterruptErr {
		return
	} else if err != nil {
		panic(err)
	}

	report := buildReport(config.Get(), system.GetSystemInformation())
	if reportArgs.Output == "" {
		fmt.Print(report)
		return
	}
	if err := os.WriteFile(reportArgs.Output, []byte(report), 0o600); err != nil {
		log.WithField("error", err).Fatal("failed to write report")
	}
	fmt.Println("report written to", reportArgs.Output)
}

func buildReport(cfg *config.Configuration, info *system.Information) string {
	var b strings.Builder
	section := func(title string) {
		fmt.Fprintf(&b, "\n## %s\n\n", title)
	}
	row := func(k string, v ...interface{}) {
		fmt.Fprintf(&b, "%20s: %s\n", k, strings.TrimSpace(fmt.Sprintln(v...)))
	}

	fmt.Fprintf(&b, "# minimanager diagnostics (%s)\n", time.Now().Format(time.RFC1123Z))

	section("Host")
	row("version", info.Version)
	row("os", system.FirstNotEmpty(info.OSName, info.OS), info.Architecture)
	row("cpus", info.CpuCount)
	row("java", system.FirstNotEmpty(info.Java, "not found"))

	section("Configuration")
	row("debug", cfg.Debug)
	row("control plane", cfg.Remote.Url)
	row("api", fmt.Sprintf("%s:%d", cfg.Api.Host, cfg.Api.Port))
	row("root", cfg.System.RootDirectory)
	row("versions", cfg.System.VersionsDirectory)
	row("worlds", cfg.System.WorldsDirectory)
	row("ports", fmt.Sprintf("%d-%d", cfg.World.PortRange.Start, cfg.World.PortRange.End))
	row("launch command", cfg.World.LaunchCommand)
	row("proxy", cfg.Proxy.Type, cfg.Proxy.Port)
	row("proxy domain", cfg.Proxy.Hostname)

	section("Installed versions")
	entries, err := os.ReadDir(cfg.System.VersionsDirectory)
	if err != nil {
		fmt.Fprintln(&b, "unavailable:", err)
	} else {
		var names []string
		for _, e := range entries {
			if e.IsDir() {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		fmt.Fprintln(&b, strings.Join(names, "\n"))
	}

	if reportArgs.AttachLogs {
		section("Log")
		f, err := os.Open(filepath.Join(cfg.System.LogDirectory, "minimanager.log"))
		if err != nil {
			fmt.Fprintln(&b, "unavailable:", err)
		} else {
			writeTail(&b, f, reportArgs.Lines)
			f.Close()
		}
	}

	out := b.String()
	if !reportArgs.ShowEndpoints {
		for _, v := range []string{cfg.Remote.Url, cfg.Api.Host, cfg.Proxy.Hostname} {
			if v != "" {
				out = strings.ReplaceAll(out, v, "{redacted}")
			}
		}
	}
	return out
}

// Copies the last n lines of r into w.
func writeTail(w io.Writer, r io.Reader, n int) {
	b, err := io.ReadAll(r)
	if err != nil {
		fmt.Fprintln(w, "unavailable:", err)
		return
	}
	lines := bytes.Split(bytes.TrimRight(b, "\n"), []byte("\n"))
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	w.Write(bytes.Join(lines, []byte("\n")))
	fmt.Fprintln(w)
}
