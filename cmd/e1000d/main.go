package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/slackhq/e1000"
	"github.com/slackhq/e1000/config"
	"github.com/slackhq/e1000/util"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to either a file or directory to load configuration from")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	backend := flag.String("backend", "", "Override device.backend from the config: sim or pci")
	printVersion := flag.Bool("version", false, "Print version")
	printUsage := flag.Bool("help", false, "Print command line usage")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		fmt.Printf("Backends: %s, %s\n", e1000.BackendSim, e1000.BackendPCI)
		os.Exit(0)
	}

	if *printUsage {
		flag.Usage()
		os.Exit(0)
	}

	if *configPath == "" {
		fmt.Println("-config flag must be set")
		flag.Usage()
		os.Exit(1)
	}

	l := logrus.New()
	l.Out = os.Stdout

	c := config.NewC(l)
	err := c.Load(*configPath)
	if err != nil {
		fmt.Printf("failed to load config: %s", err)
		os.Exit(1)
	}

	if *backend != "" {
		if err := overrideBackend(c, *backend); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	}

	ctrl, err := e1000.Main(c, *configTest, Build, l)
	if err != nil {
		util.LogWithContextIfNeeded("Failed to start", err, l)
		os.Exit(1)
	}

	if !*configTest {
		ctrl.Start()
		notifyReady(l)
		ctrl.ShutdownBlock()
	}

	os.Exit(0)
}

// overrideBackend replaces device.backend, keeping the rest of the device
// section.
func overrideBackend(c *config.C, backend string) error {
	switch backend {
	case e1000.BackendSim, e1000.BackendPCI:
	default:
		return fmt.Errorf("unknown backend %q, use %s or %s", backend, e1000.BackendSim, e1000.BackendPCI)
	}

	device, ok := c.Settings["device"].(map[string]any)
	if !ok {
		device = map[string]any{}
	}
	device["backend"] = backend
	c.Settings["device"] = device
	return nil
}
