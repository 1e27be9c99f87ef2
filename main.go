// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"
	mount "k8s.io/mount-utils"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/internal/config"
	"github.com/ffutop/c0microsd-toolkit/internal/logging"
	"github.com/ffutop/c0microsd-toolkit/internal/toolkit"
	"github.com/ffutop/c0microsd-toolkit/transport"
	"github.com/ffutop/c0microsd-toolkit/transport/blockdev"
	"github.com/ffutop/c0microsd-toolkit/transport/local"
)

const appVersion = "1.2"

// Exit codes from BSD sysexits.h.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65
	exitNoInput  = 66
	exitSoftware = 70
	exitNoPerm   = 77
)

type options struct {
	configFile string
	inputFile  string
	userData   bool
	bootloader bool
	soc        bool
	switchMode bool
	info       bool
	assumeYes  bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("c0microsd-toolkit", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Signaloid C0-microSD-toolkit. Version %s\n\nUsage:\n", appVersion)
		flags.PrintDefaults()
	}

	var opts options
	flags.StringP("target", "t", "", "Specify the target device path.")
	flags.BoolP("force", "f", false, "Force flash sequence (do not check for bootloader).")
	flags.String("log-level", "", "Log level: debug, info, warn, error.")
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to config file.")
	flags.StringVarP(&opts.inputFile, "input", "b", "", "Specify the input file for flashing (required with -u, -q, or -w).")
	flags.BoolVarP(&opts.userData, "user-data", "u", false, "Flash user data.")
	flags.BoolVarP(&opts.bootloader, "bootloader", "q", false, "Flash new Bootloader bitstream.")
	flags.BoolVarP(&opts.soc, "soc", "w", false, "Flash new Signaloid SoC bitstream.")
	flags.BoolVarP(&opts.switchMode, "switch", "s", false, "Switch boot mode.")
	flags.BoolVarP(&opts.info, "info", "i", false, "Print target C0-microSD information, and run data verification.")
	flags.BoolVarP(&opts.assumeYes, "yes", "y", false, "Do not ask for confirmation before destructive actions.")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if n := countTrue(opts.userData, opts.bootloader, opts.soc, opts.switchMode, opts.info); n > 1 {
		fmt.Fprintln(stderr, "Options -u, -q, -w, -s and -i are mutually exclusive.")
		flags.Usage()
		return exitUsage
	}

	cfg, err := config.LoadConfig(opts.configFile, flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return exitUsage
	}
	logging.Setup(cfg.Log, stderr)

	if cfg.Device.Path == "" && cfg.Device.Type == "blockdev" {
		fmt.Fprintln(stderr, "Option -t is required.")
		flags.Usage()
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	t, tkOpts, closeFn, err := openDevice(cfg)
	if err != nil {
		return fail(stderr, err)
	}
	defer closeFn()

	tkOpts = append(tkOpts,
		toolkit.WithMaxAttempts(cfg.Flash.MaxAttempts),
		toolkit.WithOutput(stdout),
	)
	handle := device.Handle{Path: cfg.Device.Path, Force: cfg.Device.Force}
	tk := toolkit.New(t, handle, tkOpts...)

	// Also verifies that communication is correct.
	st, err := tk.Status()
	if st.Identity != device.Unknown {
		fmt.Fprintln(stdout, st)
	}
	if err != nil {
		return fail(stderr, err)
	}

	switch {
	case opts.info:
		report, err := tk.Info()
		if err != nil {
			return fail(stderr, err)
		}
		report.Print(stdout)
		fmt.Fprintln(stdout, "Done.")
		return exitOK

	case opts.switchMode:
		if _, err := tk.SwitchBootMode(); err != nil {
			return fail(stderr, err)
		}
		fmt.Fprintln(stdout, "Done.")
		return exitOK
	}

	if opts.inputFile == "" {
		flags.Usage()
		fmt.Fprintln(stderr, "\nOption -b is required when flashing data.")
		return exitUsage
	}

	data, err := readInput(opts.inputFile)
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintln(stdout, "Filename: ", opts.inputFile)
	fmt.Fprintln(stdout, "File size: ", len(data), "bytes.")

	region := toolkit.UserBitstream
	switch {
	case opts.bootloader:
		region = toolkit.BootloaderRegion
	case opts.soc:
		region = toolkit.SoCRegion
	case opts.userData:
		region = toolkit.UserData
	}

	if region.Protected && !opts.assumeYes && !confirmAction(stdin, stdout) {
		fmt.Fprintln(stdout, "Aborting.")
		return exitUsage
	}

	ok, err := tk.Flash(ctx, region, data)
	if err != nil {
		return fail(stderr, err)
	}
	if !ok {
		fmt.Fprintf(stderr, "Flashing %s failed after %d attempts.\n", region.Name, cfg.Flash.MaxAttempts)
		return exitSoftware
	}
	fmt.Fprintln(stdout, "Done.")
	return exitOK
}

// openDevice returns the transport selected by the configuration, the
// toolkit options it needs, and a cleanup function.
func openDevice(cfg *config.Config) (transport.Transport, []toolkit.Option, func(), error) {
	switch cfg.Device.Type {
	case "local":
		c, err := local.NewClient(cfg.Device.Local)
		if err != nil {
			return nil, nil, nil, err
		}
		return c, nil, func() {
			if err := c.Close(); err != nil {
				slog.Error("Failed to close emulated card", "err", err)
			}
		}, nil
	default:
		slog.Debug("Using block device", "device", cfg.Device.Path)
		return blockdev.NewClient(cfg.Device.Path),
			[]toolkit.Option{toolkit.WithMountLister(mount.New(""))},
			func() {}, nil
	}
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("file not found: the file %s does not exist: %w", path, err)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("permission denied: you do not have the necessary permissions to access %s: %w", path, err)
	case err != nil:
		return nil, err
	}
	return data, nil
}

func confirmAction(in io.Reader, out io.Writer) bool {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "WARNING: This action may render the device inoperable. Proceed? (y/n): ")
		if !scanner.Scan() {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "y":
			return true
		case "n":
			return false
		default:
			fmt.Fprintln(out, "Invalid input. Please enter 'y' for yes or 'n' for no.")
		}
	}
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "%v\nAn error occurred, aborting.\n", err)
	return exitCode(err)
}

func exitCode(err error) int {
	var (
		accessErr   *device.AccessError
		sizeErr     *device.SizeError
		protocolErr *device.ProtocolError
	)
	switch {
	case errors.As(err, &accessErr) && accessErr.Kind == device.NotFound:
		return exitNoInput
	case errors.As(err, &accessErr) && accessErr.Kind == device.PermissionDenied:
		return exitNoPerm
	case errors.As(err, &sizeErr):
		return exitDataErr
	case errors.As(err, &protocolErr) && protocolErr.Kind == device.MissingPrefixMarkers:
		return exitDataErr
	case errors.Is(err, fs.ErrNotExist):
		return exitNoInput
	case errors.Is(err, fs.ErrPermission):
		return exitNoPerm
	default:
		return exitSoftware
	}
}

func countTrue(vals ...bool) int {
	n := 0
	for _, v := range vals {
		if v {
			n++
		}
	}
	return n
}
