// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Command c0-arith sends two floating-point numbers to a C0-microSD running
// the basic arithmetic application and prints their sum, difference,
// product and quotient.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/ffutop/c0microsd-toolkit/device"
	"github.com/ffutop/c0microsd-toolkit/internal/config"
	"github.com/ffutop/c0microsd-toolkit/internal/logging"
	"github.com/ffutop/c0microsd-toolkit/soc"
	"github.com/ffutop/c0microsd-toolkit/transport"
	"github.com/ffutop/c0microsd-toolkit/transport/blockdev"
	"github.com/ffutop/c0microsd-toolkit/transport/local"
)

// Application commands.
const (
	calculateAddition uint32 = iota + 1
	calculateSubtraction
	calculateMultiplication
	calculateDivision
)

var operations = []struct {
	name string
	cmd  uint32
}{
	{"addition", calculateAddition},
	{"subtraction", calculateSubtraction},
	{"multiplication", calculateMultiplication},
	{"division", calculateDivision},
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("c0-arith", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: c0-arith -t <device path> <float1> <float2>")
		flags.PrintDefaults()
	}
	flags.StringP("target", "t", "", "Path of C0-microSD.")
	flags.BoolP("force", "f", false, "Do not check that the SoC configuration is loaded.")
	flags.String("log-level", "", "Log level: debug, info, warn, error.")
	configFile := flags.StringP("config", "c", "", "Path to config file.")

	if err := flags.Parse(args); err != nil {
		return 1
	}
	if flags.NArg() != 2 {
		flags.Usage()
		return 1
	}

	var operands [2]float32
	for i, arg := range flags.Args() {
		v, err := strconv.ParseFloat(arg, 32)
		if err != nil {
			fmt.Fprintf(stderr, "Error: '%s' is not a valid floating-point number.\n", arg)
			return 1
		}
		operands[i] = float32(v)
	}

	cfg, err := config.LoadConfig(*configFile, flags)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}
	logging.Setup(cfg.Log, stderr)

	t, closeFn, err := openDevice(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := calculate(ctx, t, cfg, operands, stdout); err != nil {
		fmt.Fprintf(stderr, "An error occurred while calculating:\n%v\nAborting.\n", err)
		return 1
	}
	return 0
}

func calculate(ctx context.Context, t transport.Transport, cfg *config.Config, operands [2]float32, out io.Writer) error {
	st, err := device.ReadStatus(t, cfg.Device.Force)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, st)
	if st.Identity != device.SoC && !cfg.Device.Force {
		return &device.ModeError{Operation: "calculate", Want: device.SoC, Got: st.Identity}
	}

	fmt.Fprintf(out, "Argument A: %v\n", operands[0])
	fmt.Fprintf(out, "Argument B: %v\n", operands[1])

	ch := soc.NewChannel(t,
		soc.WithPollInterval(cfg.Command.PollInterval),
		soc.WithTimeout(cfg.Command.Timeout),
		soc.WithIdleCommand(cfg.Command.IdleCommand),
		soc.WithProgress(func(cmd uint32, st soc.Status) {
			slog.Debug("Waiting for calculation to finish", "command", cmd)
		}),
	)

	fmt.Fprintln(out, "Sending parameters to C0-microSD...")
	mosi, err := soc.PackFloats(operands[:], device.MOSIBufferSize)
	if err != nil {
		return err
	}
	if err := ch.WriteMOSI(mosi); err != nil {
		return err
	}

	for _, op := range operations {
		fmt.Fprintf(out, "Calculating %s...\n", op.name)
		miso, err := ch.Calculate(ctx, op.cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", op.name, err)
		}
		result, err := soc.UnpackFloats(miso, 1)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Result: %v\n", result[0])
	}
	return nil
}

func openDevice(cfg *config.Config) (transport.Transport, func(), error) {
	if cfg.Device.Type == "local" {
		c, err := local.NewClient(cfg.Device.Local)
		if err != nil {
			return nil, nil, err
		}
		return c, func() { c.Close() }, nil
	}
	if cfg.Device.Path == "" {
		return nil, nil, fmt.Errorf("option -t is required")
	}
	return blockdev.NewClient(cfg.Device.Path), func() {}, nil
}
