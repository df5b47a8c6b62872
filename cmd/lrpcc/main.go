package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/lotusrpc/internal/logging"
	"github.com/danmuck/lotusrpc/internal/protocol"
)

const (
	configEnv         = "LRPCC_CONFIG"
	defaultConfigPath = "lrpcc.toml"
)

func main() {
	logging.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func configPathDefault() string {
	if p := os.Getenv(configEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

// run executes one lrpcc command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("lrpcc", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", configPathDefault(), "lrpcc config path (env "+configEnv+")")
	fs.Usage = func() { usage(fs) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs)
		return 2
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	var err error
	switch cmd {
	case "init":
		err = runInit(rest, *configPath, stderr)
	case "version":
		fmt.Fprintln(stdout, protocol.LibraryVersion)
	case "list":
		err = runList(*configPath, stdout)
	case "puml":
		err = runPUML(rest, *configPath, stdout, stderr)
	case "call":
		err = runCall(ctx, rest, *configPath, stdout, stderr)
	case "check":
		err = runCheck(ctx, *configPath, stdout)
	case "definition":
		err = runDefinition(ctx, rest, *configPath, stdout, stderr)
	case "help":
		usage(fs)
	default:
		fmt.Fprintf(stderr, "lrpcc: unknown command %q\n", cmd)
		usage(fs)
		return 2
	}
	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintf(stderr, "lrpcc %s: %v\n", cmd, err)
			return 2
		}
		log.Error().Err(err).Str("command", cmd).Msg("lrpcc failed")
		return 1
	}
	return 0
}

// usageError marks bad command line input.
type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return usageError{msg: fmt.Sprintf(format, args...)}
}

func usage(fs *flag.FlagSet) {
	w := fs.Output()
	fmt.Fprintln(w, `lrpcc is the LotusRPC client.

Usage:
  lrpcc [-config path] <command> [arguments]

Commands:
  init [-kind tcp|stdio] [-force]             write a config template
  list                                        list services, functions and streams
  call [-stop] [-final] <service> <name> [param=value ...]
                                              call a function or send a stream message
  check                                       compare client and server versions
  definition [-o path]                        retrieve the definition embedded in the server
  puml [-o path]                              render the definition as PlantUML
  version                                     print the LotusRPC version

Parameter values are YAML: p0=5, s="a b", point={x: 1, y: 2}, arr=[1, 2, 3].
Bytearrays are hex (blob="01 02 ff"). An optional is absent when given as _.

Flags:`)
	fs.PrintDefaults()
}
