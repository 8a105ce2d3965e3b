package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/vesseldata/vesseldata/internal/syslog"
)

type program struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		if err := serve(ctx); err != nil {
			syslog.L.Error(err).WithMessage("daemon exited with error").Write()
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	return nil
}

func serviceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service [install|uninstall|start|stop|run]",
		Short:     "Manage the system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			svcConfig := &service.Config{
				Name:        "transferd",
				DisplayName: "Vessel Data Transfer Daemon",
				Description: "Schedules and executes shipboard data warehouse transfers.",
				Arguments:   []string{"service", "run"},
			}
			if configFile != "" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--config", configFile)
			}

			svc, err := service.New(&program{}, svcConfig)
			if err != nil {
				return err
			}

			switch args[0] {
			case "run":
				return svc.Run()
			case "install", "uninstall", "start", "stop":
				if err := service.Control(svc, args[0]); err != nil {
					return err
				}
				fmt.Printf("service %s: ok\n", args[0])
				return nil
			}
			return fmt.Errorf("unknown service action %q", args[0])
		},
	}
	return cmd
}
