// Command tncd runs the packet-radio terminal/APRS gateway core: it
// opens a KISS transport, wires the decode pipeline, and serves the
// KISS bridge, AGWPE, and HTTP/SSE listeners until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tinygo.org/x/bluetooth"

	"github.com/aprsgo/tncd/internal/config"
	"github.com/aprsgo/tncd/internal/logging"
	"github.com/aprsgo/tncd/internal/supervisor"
	"github.com/aprsgo/tncd/internal/transport"

	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tncd:", err)
		os.Exit(1)
	}
}

func run() error {
	transportKind := pflag.String("transport", "tcp", "carrier to use: tcp, serial, or ble")
	tcpHost := pflag.String("tcp-host", "127.0.0.1", "KISS-over-TCP host")
	tcpPort := pflag.Int("tcp-port", 8100, "KISS-over-TCP port")
	serialPort := pflag.String("serial-port", "/dev/ttyUSB0", "serial TNC device path")
	serialBaud := pflag.Int("serial-baud", 9600, "serial TNC baud rate")
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error")
	pflag.Parse()

	cfg, err := config.ParseFlags(config.Defaults(), pflag.Args())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(os.Stderr, parseLevel(*logLevel))

	tr, err := buildTransport(*transportKind, cfg, *tcpHost, *tcpPort, *serialPort, *serialBaud)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(cfg, tr, supervisor.DefaultPaths(), logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting", "mycall", cfg.MyCallsign, "transport", *transportKind)
	return sup.Run(ctx)
}

func buildTransport(kind string, cfg config.Config, tcpHost string, tcpPort int, serialPort string, serialBaud int) (transport.Transport, error) {
	switch kind {
	case "tcp":
		return transport.NewTCPClient(tcpHost, tcpPort), nil
	case "serial":
		return transport.NewSerial(serialPort, serialBaud), nil
	case "ble":
		if cfg.RadioMAC == "" {
			return nil, fmt.Errorf("tncd: --transport=ble requires RADIO_MAC to be set")
		}
		service := bluetooth.New16BitUUID(0xFFE0)
		notify := bluetooth.New16BitUUID(0xFFE1)
		write := bluetooth.New16BitUUID(0xFFE1)
		return transport.NewBLE(cfg.RadioMAC, service, notify, write), nil
	default:
		return nil, fmt.Errorf("tncd: unknown transport %q", kind)
	}
}

func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.DebugLevel
	case "warn":
		return logging.WarnLevel
	case "error":
		return logging.ErrorLevel
	default:
		return logging.InfoLevel
	}
}
