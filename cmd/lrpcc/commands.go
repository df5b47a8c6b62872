package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/lotusrpc/internal/client"
	"github.com/danmuck/lotusrpc/internal/config"
	"github.com/danmuck/lotusrpc/internal/logging"
	"github.com/danmuck/lotusrpc/internal/observability"
	"github.com/danmuck/lotusrpc/internal/protocol"
	"github.com/danmuck/lotusrpc/internal/protocol/schema"
	"github.com/danmuck/lotusrpc/internal/transport"
)

const processGrace = 2 * time.Second

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if os.Getenv(logging.EnvLogLevel) == "" {
		if lvl, ok := logging.ParseLevel(cfg.LogLevel); ok {
			zerolog.SetGlobalLevel(lvl)
		}
	}
	return cfg, nil
}

func loadDefinition(path string) (config.Config, *schema.Definition, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return config.Config{}, nil, err
	}
	def, err := schema.LoadFile(cfg.Definition)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, def, nil
}

// session is one connected client.
type session struct {
	cfg    config.Config
	client *client.Client
	close  func() error
}

func openSession(ctx context.Context, cfg config.Config, def *schema.Definition) (*session, error) {
	s := &session{cfg: cfg}
	var tr client.Transport
	switch cfg.Transport.Kind {
	case config.TransportTCP:
		conn, err := transport.Dial(ctx, cfg.Transport.Address, cfg.Transport.Config)
		if err != nil {
			return nil, err
		}
		tr, s.close = conn, conn.Close
	case config.TransportStdio:
		p, err := transport.StartProcess(ctx, cfg.Transport.Command, cfg.Transport.Config)
		if err != nil {
			return nil, err
		}
		tr, s.close = p, func() error { return p.Close(processGrace) }
	default:
		return nil, fmt.Errorf("unsupported transport kind %q", cfg.Transport.Kind)
	}

	s.client = client.New(def, tr,
		client.WithLogger(logging.Component("client")),
		client.WithObserver(observability.NewClientMetrics()),
	)
	return s, nil
}

// checkVersion runs the version handshake when the config asks for it.
func (s *session) checkVersion(ctx context.Context, configPath string) error {
	if !s.cfg.CheckServerVersion {
		return nil
	}
	report, err := s.client.CheckServerVersion(ctx)
	if err == nil && report.Match() {
		return nil
	}
	log.Info().Msgf("Use the 'check_server_version' setting in the config file (%s) to disable the version check", configPath)
	return err
}

func (s *session) finish() {
	if err := s.close(); err != nil {
		log.Debug().Err(err).Msg("close transport")
	}
	if s.cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(s.cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Msg("write metrics textfile")
		}
	}
}

func runInit(args []string, configPath string, stderr io.Writer) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", config.TransportTCP, "transport kind: tcp|stdio")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if err := config.WriteTemplate(configPath, *kind, *force); err != nil {
		return err
	}
	log.Info().Str("path", configPath).Str("kind", *kind).Msg("wrote lrpcc config template")
	return nil
}

func runList(configPath string, stdout io.Writer) error {
	_, def, err := loadDefinition(configPath)
	if err != nil {
		return err
	}
	def.Accept(&lister{w: stdout})
	return nil
}

func runPUML(args []string, configPath string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("puml", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	_, def, err := loadDefinition(configPath)
	if err != nil {
		return err
	}
	return writeOutput(*output, stdout, func(w io.Writer) error { return schema.WritePlantUML(w, def) })
}

func runCheck(ctx context.Context, configPath string, stdout io.Writer) error {
	cfg, def, err := loadDefinition(configPath)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, def)
	if err != nil {
		return err
	}
	defer s.finish()

	report, err := s.client.CheckServerVersion(ctx)
	if report.Server != (client.Versions{}) {
		rows := [][3]string{
			{"LotusRPC version", report.Client.LotusRPC, report.Server.LotusRPC},
			{"Definition version", report.Client.Definition, report.Server.Definition},
			{"Definition hash", report.Client.Hash, report.Server.Hash},
		}
		for _, r := range rows {
			fmt.Fprintf(stdout, "%-18s: %s vs %s\n", r[0], r[1], r[2])
		}
	}
	if err != nil {
		return err
	}
	if !report.Match() {
		fmt.Fprintln(stdout, "server differs from client")
	} else {
		fmt.Fprintln(stdout, "server matches client")
	}
	return nil
}

func runDefinition(ctx context.Context, args []string, configPath string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("definition", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	cfg, def, err := loadDefinition(configPath)
	if err != nil {
		return err
	}
	s, err := openSession(ctx, cfg, def)
	if err != nil {
		return err
	}
	defer s.finish()

	_, source, err := s.client.RetrieveDefinition(ctx)
	if err != nil {
		return err
	}
	return writeOutput(*output, stdout, func(w io.Writer) error {
		_, err := w.Write(source)
		return err
	})
}

func runCall(ctx context.Context, args []string, configPath string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(stderr)
	stop := fs.Bool("stop", false, "stop a server stream instead of starting it")
	final := fs.Bool("final", false, "mark a finite client stream message as the final one")
	if err := fs.Parse(args); err != nil {
		return usagef("%v", err)
	}
	if fs.NArg() < 2 {
		return usagef("expected <service> <function|stream> [param=value ...]")
	}
	service, name := fs.Arg(0), fs.Arg(1)

	cfg, def, err := loadDefinition(configPath)
	if err != nil {
		return err
	}
	t, err := lookupTarget(def, service, name)
	if err != nil {
		return err
	}
	values, err := parseArgs(t, fs.Args()[2:], *stop, *final)
	if err != nil {
		return err
	}

	s, err := openSession(ctx, cfg, def)
	if err != nil {
		return err
	}
	defer s.finish()
	if err := s.checkVersion(ctx, configPath); err != nil {
		return err
	}

	started, _ := values[schema.StartParam].(bool)
	index := 0
	for resp, err := range s.client.Communicate(ctx, service, name, values) {
		if err != nil {
			if t.isServerStream() && started {
				stopStream(s.client, t)
			}
			var se *protocol.ServerError
			if errors.As(err, &se) && se.Type == protocol.OpaqueServerError {
				printServerError(stdout, se)
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		printResponse(stdout, def, resp, index)
		index++
	}
	return nil
}

// stopStream ends a server stream the caller abandoned.
func stopStream(c *client.Client, t target) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, err := range c.Communicate(ctx, t.service, t.name, map[string]any{schema.StartParam: false}) {
		if err != nil {
			log.Warn().Err(err).Str("stream", t.service+"."+t.name).Msg("stop stream")
		}
	}
}

func writeOutput(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	log.Info().Str("path", path).Msg("wrote output")
	return nil
}

// lister prints the callable surface of a definition.
type lister struct {
	schema.BaseVisitor
	w io.Writer
}

func (l *lister) VisitDefinition(d *schema.Definition) {
	fmt.Fprintf(l.w, "%s %s (hash %s)\n", d.Name(), d.Version(), prefixOf(d.Hash(), 16))
}

func (l *lister) VisitService(s *schema.Service) {
	if s.IsMeta() {
		fmt.Fprintf(l.w, "\n%s [%d] (built in)\n", s.Name(), s.ID())
		return
	}
	fmt.Fprintf(l.w, "\n%s [%d]\n", s.Name(), s.ID())
}

func (l *lister) VisitFunction(_ *schema.Service, f *schema.Function) {
	fmt.Fprintf(l.w, "  %-3d %-20s %s(%s) -> (%s)\n", f.ID(), "function", f.Name(), listVars(f.Params()), listVars(f.Returns()))
}

func (l *lister) VisitStream(_ *schema.Service, st *schema.Stream) {
	kind := string(st.Origin()) + " stream"
	if st.IsFinite() {
		kind = "finite " + kind
	}
	fmt.Fprintf(l.w, "  %-3d %-20s %s(%s) -> (%s)\n", st.ID(), kind, st.Name(), listVars(st.Params()), listVars(st.Returns()))
}

func listVars(vars []schema.Var) string {
	parts := make([]string, len(vars))
	for i, v := range vars {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

func prefixOf(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
