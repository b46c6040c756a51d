package main

import (
	"fmt"
	"image/png"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/sotalab/droidctl/pkg/adb"
	"github.com/sotalab/droidctl/pkg/config"
	"github.com/sotalab/droidctl/pkg/fleet"
	"github.com/sotalab/droidctl/pkg/hierarchy"
	"github.com/sotalab/droidctl/pkg/hostproc"
	"github.com/sotalab/droidctl/pkg/keymap"
)

type ConsoleHook struct{}

func (h *ConsoleHook) Fire(entry *logrus.Entry) error {
	if entry.Level <= logrus.InfoLevel {
		t := entry.Time
		fmt.Print(color.BlueString("[INFO]"))
		fmt.Print(t.Format("2006-01-02 15:04:05 "))
		fmt.Print(color.GreenString(entry.Message), " ")
		if entry.Data["command"] != nil {
			fmt.Println(entry.Data["command"], "duration :", entry.Data["duration"])
		} else {
			fmt.Println("")
		}
	}
	return nil
}

func (h *ConsoleHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func NewConsoleHook() *ConsoleHook {
	return &ConsoleHook{}
}

var serverGuard adb.ServerGuard

func main() {
	app := cli.NewApp()
	app.Name = "droidctl"
	app.Usage = "droidctl drives Android devices through the adb bridge tool"
	app.Version = "0.1.0"
	app.EnableBashCompletion = true
	app.Before = before
	app.After = after

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Path to a droidctl YAML configuration file",
		},
		cli.StringFlag{
			Name:  "device, s",
			Usage: "Device address to connect and target",
		},
		cli.StringFlag{
			Name:  "timeout, t",
			Usage: "Per-command timeout (e.g. 30s)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "Echo every bridge command and its output",
		},
		cli.BoolFlag{
			Name:  "restart-server",
			Usage: "Freshly restart the bridge server before the first command",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "version",
			Usage: "Print the bridge tool version",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				out, err := s.Version()
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}),
		},
		{
			Name:      "connect",
			Usage:     "Connect to a device address",
			ArgsUsage: "<address>",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				id, err := s.Connect(c.Args().First())
				if err != nil {
					return err
				}
				fmt.Println(id)
				return nil
			}),
		},
		{
			Name:  "wait",
			Usage: "Block until the target device is reachable",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				return s.WaitForDevice(runOpts(c)...)
			}),
		},
		{
			Name:  "reboot",
			Usage: "Reboot the target device",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				return s.Reboot(runOpts(c)...)
			}),
		},
		{
			Name:  "start-server",
			Usage: "Start the bridge server",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				return s.StartServer()
			}),
		},
		{
			Name:  "kill-server",
			Usage: "Stop the bridge server",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				return s.KillServer()
			}),
		},
		{
			Name:  "packages",
			Usage: "List installed packages",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				packages, err := s.ListInstalledPackages(runOpts(c)...)
				if err != nil {
					return err
				}
				for _, pkg := range packages {
					fmt.Println(pkg)
				}
				return nil
			}),
		},
		{
			Name:      "activities",
			Usage:     "List exported activities of a package",
			ArgsUsage: "<package>",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing package name")
				}
				activities, err := s.ListPackageActivities(c.Args().First(), runOpts(c)...)
				if err != nil {
					return err
				}
				for _, activity := range activities {
					fmt.Println(activity)
				}
				return nil
			}),
		},
		{
			Name:  "focused",
			Usage: "Print the currently focused package/activity",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				pkg, activity, err := s.GetFocusedWindow(runOpts(c)...)
				if err != nil {
					return err
				}
				fmt.Printf("%s/%s\n", pkg, activity)
				return nil
			}),
		},
		{
			Name:  "hierarchy",
			Usage: "Dump and pretty-print the device UI hierarchy",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				doc, err := s.GetViewHierarchy(runOpts(c)...)
				if err != nil {
					return err
				}
				out, err := hierarchy.Format(doc)
				if err != nil {
					return err
				}
				fmt.Println(out)
				return nil
			}),
		},
		{
			Name:      "launch",
			Usage:     "Launch a package, optionally a specific activity",
			ArgsUsage: "<package> [activity]",
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing package name")
				}
				return s.Launch(c.Args().Get(0), c.Args().Get(1), runOpts(c)...)
			}),
		},
		{
			Name:  "keys",
			Usage: "List the mapped key names",
			Action: func(c *cli.Context) error {
				for _, name := range keymap.Names() {
					fmt.Println(name)
				}
				return nil
			},
		},
		{
			Name:      "key",
			Usage:     "Send one combined key event for the named keys",
			ArgsUsage: "<name>...",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "wait",
					Usage: "Settle time after the key event",
					Value: 500 * time.Millisecond,
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing key name")
				}
				return s.PressKey(c.Args(), c.Duration("wait"), runOpts(c)...)
			}),
		},
		{
			Name:      "text",
			Usage:     "Type text on the device",
			ArgsUsage: "<text>",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "wait",
					Usage: "Settle time after the input",
					Value: 500 * time.Millisecond,
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing text")
				}
				return s.InputText(strings.Join(c.Args(), " "), c.Duration("wait"), runOpts(c)...)
			}),
		},
		{
			Name:      "install",
			Usage:     "Install an apk on the target device",
			ArgsUsage: "<apk>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "flags, f",
					Usage: "Install flags without the dash, e.g. r for reinstall",
					Value: "r",
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing apk path")
				}
				return s.Install(c.Args().First(), c.String("flags"), runOpts(c)...)
			}),
		},
		{
			Name:      "uninstall",
			Usage:     "Uninstall a package from the target device",
			ArgsUsage: "<package>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "flags, f",
					Usage: "Uninstall flags without the dash",
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				if c.NArg() < 1 {
					return fmt.Errorf("missing package name")
				}
				return s.Uninstall(c.Args().First(), c.String("flags"), runOpts(c)...)
			}),
		},
		{
			Name:  "screenshot",
			Usage: "Capture the device screen to a PNG file",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "out, o",
					Usage: "Output file",
					Value: "screenshot.png",
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				img, err := s.Screenshot(runOpts(c)...)
				if err != nil {
					return err
				}
				f, err := os.Create(c.String("out"))
				if err != nil {
					return err
				}
				defer f.Close()
				if err := png.Encode(f, img); err != nil {
					return err
				}
				logrus.Infof("Screenshot written to %s", c.String("out"))
				return nil
			}),
		},
		{
			Name:      "each",
			Usage:     "Run one command across multiple devices in parallel",
			ArgsUsage: "<command>",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "devices, d",
					Usage: "Comma-separated device identifiers",
				},
				cli.IntFlag{
					Name:  "parallel, p",
					Usage: "Worker count",
					Value: 2,
				},
				cli.BoolFlag{
					Name:  "shell",
					Usage: "Run the command inside the device shell",
				},
			},
			Action: withSession(func(s *adb.Session, c *cli.Context) error {
				devices := splitDevices(c.String("devices"))
				if len(devices) == 0 {
					return fmt.Errorf("missing --devices")
				}
				if c.NArg() < 1 {
					return fmt.Errorf("missing command")
				}
				command := strings.Join(c.Args(), " ")
				tasks := fleet.GenerateTasks(devices, command, c.Bool("shell"))
				executor := fleet.NewExecutor(c.Int("parallel"), s)
				results := executor.Execute(tasks)
				fleet.PrintSummary(results)
				return nil
			}),
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

func before(c *cli.Context) error {
	logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05.000", FullTimestamp: true})
	logrus.SetOutput(os.Stdout)
	if c.Bool("debug") {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
	logrus.AddHook(NewConsoleHook())
	return nil
}

func after(c *cli.Context) error {
	// Reclaim any child process still tracked by a runner.
	hostproc.KillAll()
	return nil
}

// loadConfig merges the config file (if any) with the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if device := c.GlobalString("device"); device != "" {
		cfg.Device = device
	}
	if timeout := c.GlobalString("timeout"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", timeout, err)
		}
		cfg.CommandTimeout = timeout
	}
	if c.GlobalBool("debug") {
		cfg.Debug = true
	}
	return cfg, nil
}

// withSession builds an adb session from the global flags and hands it to
// the command action.
func withSession(action func(*adb.Session, *cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		opts := []adb.SessionOption{
			adb.WithADBPath(cfg.ADBPath),
			adb.WithConnectSettle(config.Duration(cfg.ConnectSettle)),
			adb.WithKeySettle(config.Duration(cfg.KeySettle)),
		}
		if cfg.Debug {
			opts = append(opts, adb.WithDebug())
		}
		if c.GlobalBool("restart-server") {
			opts = append(opts, adb.WithServerGuard(&serverGuard))
		}
		// The connect command manages its own connection.
		if cfg.Device != "" && c.Command.Name != "connect" {
			opts = append(opts, adb.WithDevice(cfg.Device))
		}

		s, err := adb.NewSession(opts...)
		if err != nil {
			return err
		}
		return action(s, c)
	}
}

// runOpts translates the global timeout flag into per-call options.
func runOpts(c *cli.Context) []adb.RunOption {
	var opts []adb.RunOption
	if timeout := c.GlobalString("timeout"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil && d > 0 {
			opts = append(opts, adb.Timeout(d))
		}
	}
	return opts
}

func splitDevices(s string) []string {
	var devices []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			devices = append(devices, trimmed)
		}
	}
	return devices
}
