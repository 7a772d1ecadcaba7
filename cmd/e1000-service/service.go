package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000"
	"github.com/slackhq/e1000/config"
)

var logger service.Logger

type program struct {
	configPath string
	build      string
	control    *e1000.Control
}

func (p *program) Start(s service.Service) error {
	// Start should not block.
	logger.Info("e1000 driver service starting.")

	l := logrus.New()
	l.Out = os.Stdout
	if !service.Interactive() {
		hookLogger(l)
	}

	c := config.NewC(l)
	if err := c.Load(p.configPath); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctrl, err := e1000.Main(c, false, p.build, l)
	if err != nil {
		return err
	}

	p.control = ctrl
	p.control.Start()
	return nil
}

func (p *program) Stop(s service.Service) error {
	logger.Info("e1000 driver service stopping.")
	if p.control != nil {
		p.control.Stop()
	}
	return nil
}

func doService(configPath string, build string, action string) error {
	if configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			return err
		}
		configPath = filepath.Join(filepath.Dir(ex), "config.yml")
	}

	svcConfig := &service.Config{
		Name:        "e1000d",
		DisplayName: "e1000 Driver",
		Description: "User space driver for Intel 8254x network controllers",
		Arguments:   []string{"-service", "run", "-config", configPath},
	}

	prg := &program{
		configPath: configPath,
		build:      build,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return err
	}

	errs := make(chan error, 5)
	logger, err = s.Logger(errs)
	if err != nil {
		return err
	}

	go func() {
		for err := range errs {
			if err != nil {
				log.Print(err)
			}
		}
	}()

	if action == "run" {
		return s.Run()
	}

	if err := service.Control(s, action); err != nil {
		return fmt.Errorf("%w, valid actions: %q", err, service.ControlAction)
	}
	return nil
}
