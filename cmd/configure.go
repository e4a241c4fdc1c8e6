package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strconv"

	"emperror.dev/errors"
	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mcmanager/minimanager/config"
)

var configureArgs struct {
	RemoteURL   string
	RemoteToken string
	ProxyType   string
	Domain      string
	PortStart   string
	PortEnd     string
	Override    bool
}

func newConfigureCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "configure",
		Short: "Interactively write a configuration file for this node",
		Run:   configureCmdRun,
	}

	command.Flags().StringVarP(&configureArgs.RemoteURL, "remote-url", "r", "", "the base url of the control plane, leave empty to run without one")
	command.Flags().StringVarP(&configureArgs.RemoteToken, "remote-token", "t", "", "the token used to authenticate against the control plane")
	command.Flags().BoolVar(&configureArgs.Override, "override", false, "override an existing configuration")

	return command
}

func configureCmdRun(*cobra.Command, []string) {
	if _, err := os.Stat(configPath); err == nil && !configureArgs.Override {
		_ = survey.AskOne(&survey.Confirm{Message: "Override existing configuration file"}, &configureArgs.Override)
		if !configureArgs.Override {
			fmt.Println("Aborted.")
			os.Exit(1)
		}
	}

	questions := []*survey.Question{
		{
			Name:   "ProxyType",
			Prompt: &survey.Select{Message: "Proxy:", Options: []string{config.ProxyInfrarust, config.ProxyVelocity, config.ProxyNone}, Default: config.ProxyInfrarust},
		},
		{
			Name:     "Domain",
			Prompt:   &survey.Input{Message: "Public domain worlds are served under:", Default: "localhost"},
			Validate: survey.Required,
		},
		{
			Name:     "PortStart",
			Prompt:   &survey.Input{Message: "First world port:", Default: "25566"},
			Validate: validatePort,
		},
		{
			Name:     "PortEnd",
			Prompt:   &survey.Input{Message: "Last world port:", Default: "25665"},
			Validate: validatePort,
		},
	}
	if configureArgs.RemoteURL == "" {
		questions = append(questions, &survey.Question{
			Name:   "RemoteURL",
			Prompt: &survey.Input{Message: "Control plane URL (optional):"},
			Validate: func(ans interface{}) error {
				if str, ok := ans.(string); ok && str != "" {
					_, err := url.ParseRequestURI(str)
					return err
				}
				return nil
			},
		})
	}

	if err := survey.Ask(questions, &configureArgs); err != nil {
		if err == terminal.InterruptErr {
			return
		}
		panic(err)
	}
	if configureArgs.RemoteURL != "" && configureArgs.RemoteToken == "" {
		if err := survey.AskOne(&survey.Password{Message: "Control plane token:"}, &configureArgs.RemoteToken, survey.WithValidator(survey.Required)); err != nil {
			return
		}
	}

	c, err := config.NewAtPath(configPath)
	if err != nil {
		panic(err)
	}
	start, _ := strconv.Atoi(configureArgs.PortStart)
	end, _ := strconv.Atoi(configureArgs.PortEnd)
	c.World.PortRange = config.PortRange{Start: start, End: end}
	c.Proxy.Type = configureArgs.ProxyType
	c.Proxy.Hostname = configureArgs.Domain
	if c.Proxy.Type == config.ProxyVelocity {
		c.Proxy.Executable = "velocity.jar"
		c.Proxy.ForwardingSecret = uuid.New().String()
	}
	c.Remote.Url = configureArgs.RemoteURL
	c.Remote.Token = configureArgs.RemoteToken
	c.Api.Token = uuid.New().String()

	if err := config.WriteToDisk(c); err != nil {
		panic(errors.WithMessage(err, "failed to write configuration"))
	}
	fmt.Printf("Configuration written to %s\nAPI token: %s\n", configPath, c.Api.Token)
}

func validatePort(ans interface{}) error {
	str, _ := ans.(string)
	p, err := strconv.Atoi(str)
	if err != nil || p < 1 || p > 65535 {
		return errors.New("the port must be a number between 1 and 65535")
	}
	return nil
}
