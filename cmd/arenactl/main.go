package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	"github.com/decred/slog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	x402 "github.com/aarika/x402-arena"
	"github.com/aarika/x402-arena/arena"
	"github.com/aarika/x402-arena/events"
	"github.com/aarika/x402-arena/evm"
	"github.com/aarika/x402-arena/metrics"
)

// Testable variables for main()
var osExit = os.Exit

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		ctlLog.Error(err)
		osExit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) == 0 {
		usage(out)
		return errors.New("command required")
	}
	switch args[0] {
	case "create":
		return createCompetition(args[1:], out)
	case "select-winner":
		return selectWinner(args[1:], out)
	case "delivery":
		return delivery(args[1:], out)
	case "list":
		return listCompetitions(args[1:], out)
	case "show":
		return showCompetition(args[1:], out)
	case "login":
		return login(args[1:], out)
	case "events":
		return tailEvents(args[1:], out)
	case "fees":
		return fees(args[1:], out)
	default:
		usage(out)
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func usage(out io.Writer) {
	fmt.Fprintln(out, "arenactl commands:")
	fmt.Fprintln(out, "  create --prompt <text> --reward 100")
	fmt.Fprintln(out, "  select-winner --competition <id> --agent <id>")
	fmt.Fprintln(out, "  delivery --competition <id> [--wait]")
	fmt.Fprintln(out, "  list")
	fmt.Fprintln(out, "  show --competition <id>")
	fmt.Fprintln(out, "  login")
	fmt.Fprintln(out, "  events --count 20")
	fmt.Fprintln(out, "  fees --reward 100")
	fmt.Fprintln(out, "common flags: --config arenactl.yaml --endpoint <url> --key <hex> --debuglevel info --metrics")
}

// commonFlags are accepted by every command that talks to the backend.
type commonFlags struct {
	config     *string
	endpoint   *string
	key        *string
	debugLevel *string
	metrics    *bool
}

func newFlagSet(name string) (*flag.FlagSet, *commonFlags) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, &commonFlags{
		config:     fs.String("config", "", "YAML config file"),
		endpoint:   fs.String("endpoint", "", "backend base URL"),
		key:        fs.String("key", "", "hex private key of the paying wallet"),
		debugLevel: fs.String("debuglevel", "", "log level: trace, debug, info, warn, error, off"),
		metrics:    fs.Bool("metrics", false, "print collected metrics after the command"),
	}
}

// app holds the per-invocation wiring.
type app struct {
	cfg      config
	out      io.Writer
	client   *x402.Client
	wallet   evm.Wallet
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	redis    *redis.Client
	sink     *events.RedisSink
	records  events.Sink
	printMet bool
}

func setup(cf *commonFlags, out io.Writer) (*app, error) {
	cfg, err := loadConfig(*cf.config)
	if err != nil {
		return nil, err
	}
	if *cf.endpoint != "" {
		cfg.CoreEndpoint = *cf.endpoint
	}
	if *cf.key != "" {
		cfg.PrivateKey = *cf.key
	}
	if *cf.debugLevel != "" {
		cfg.DebugLevel = *cf.debugLevel
	}
	if err := setupLogging(cfg.DebugLevel); err != nil {
		return nil, err
	}

	httpClient, err := newHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	client, err := x402.NewClient(x402.Config{
		BaseURL:    cfg.CoreEndpoint,
		HTTPClient: httpClient,
		UserAgent:  "arenactl",
	})
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	a := &app{
		cfg:      cfg,
		out:      out,
		client:   client,
		registry: prometheus.NewRegistry(),
		metrics:  metrics.New(),
		printMet: *cf.metrics,
	}
	if err := a.metrics.Register(a.registry); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	if cfg.PrivateKey != "" {
		wallet, err := evm.NewKeyWallet(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		a.wallet = wallet
	}

	sinks := []events.Sink{events.NewLogSink(eventLog), printSink(out)}
	if cfg.RedisAddr != "" {
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		a.sink = events.NewRedisSink(a.redis, events.RedisSinkOptions{
			Stream: cfg.EventStream,
			MaxLen: cfg.EventMaxLen,
		})
		sinks = append(sinks, a.sink)
	}
	a.records = events.Multi(sinks...)
	return a, nil
}

// newHTTPClient keeps cookies for the lifetime of the process so the
// refresh_token set by a login is sent back on /auth/refresh.
func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &http.Client{
		Timeout:   timeoutOr(timeout),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Jar:       jar,
	}, nil
}

func timeoutOr(d time.Duration) time.Duration {
	if d <= 0 {
		return 30 * time.Second
	}
	return d
}

func (a *app) close() {
	if a.printMet {
		families, err := a.registry.Gather()
		if err == nil {
			for _, mf := range families {
				_, _ = expfmt.MetricFamilyToText(a.out, mf)
			}
		}
	}
	if a.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.sink.Close(ctx); err != nil {
			eventLog.Warnf("Failed to flush events: %v", err)
		}
		cancel()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *app) orchestrator() (*arena.Orchestrator, error) {
	return arena.New(a.client, a.wallet, arena.Options{
		Config:  a.cfg.arenaConfig(),
		Sink:    a.records,
		Metrics: a.metrics,
		OnState: func(action arena.Action, state arena.State) {
			arenaLog.Debugf("%s: %s", action, state)
		},
	})
}

// tokenStore keeps session tokens in Redis when configured so they
// survive between invocations.
func (a *app) tokenStore() arena.TokenStore {
	if a.redis != nil {
		return arena.NewRedisTokenStore(a.redis, "")
	}
	return arena.NewMemoryTokenStore()
}

// printSink writes each record as one line.
func printSink(out io.Writer) events.Sink {
	return events.SinkFunc(func(r events.Record) {
		fmt.Fprintf(out, "%s [%s] %s\n", r.Timestamp.Format("15:04:05.000"), r.Source, r.Event)
	})
}

func commandContext() (context.Context, context.CancelFunc) {
	return signalContext(context.Background())
}

func createCompetition(args []string, out io.Writer) error {
	fs, cf := newFlagSet("create")
	prompt := fs.String("prompt", "", "competition prompt")
	reward := fs.Float64("reward", 0, "reward amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*prompt) == "" || *reward <= 0 {
		return errors.New("prompt and positive reward required")
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()
	o, err := a.orchestrator()
	if err != nil {
		return err
	}

	q := arena.QuoteFees(*reward)
	fmt.Fprintf(out, "escrow: advance %s + platform fee %s = %s (remaining %s on winner selection)\n",
		q.Advance, q.PlatformFee, q.Total, q.Remaining)

	ctx, cancel := commandContext()
	defer cancel()
	resp, err := o.CreateCompetition(ctx, arena.CreateCompetitionRequest{
		Prompt:       *prompt,
		RewardAmount: *reward,
	}, func(id string) {
		fmt.Fprintf(out, "competition %s is live\n", id)
	})
	if err != nil {
		return fmt.Errorf("create competition: %w", err)
	}
	fmt.Fprintf(out, "competitionId: %s\n", resp.CompetitionID)
	if resp.TxHash != "" {
		fmt.Fprintf(out, "txHash: %s\n", resp.TxHash)
	}
	return nil
}

func selectWinner(args []string, out io.Writer) error {
	fs, cf := newFlagSet("select-winner")
	competition := fs.String("competition", "", "competition id")
	agent := fs.String("agent", "", "winning agent id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *competition == "" || *agent == "" {
		return errors.New("competition and agent required")
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()
	o, err := a.orchestrator()
	if err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()
	result, err := o.SelectWinner(ctx, arena.SelectWinnerRequest{
		CompetitionID:  *competition,
		WinningAgentID: *agent,
	})
	if err != nil {
		return fmt.Errorf("select winner: %w", err)
	}
	fmt.Fprintf(out, "winner: %s\n", result.Response.WinnerAgentID)
	if result.Response.PayoutTx != "" {
		fmt.Fprintf(out, "payoutTx: %s\n", result.Response.PayoutTx)
	}
	if result.Delivered {
		fmt.Fprintf(out, "download: %s\n", result.DownloadURL)
	} else {
		fmt.Fprintln(out, "delivery pending")
	}
	return nil
}

func delivery(args []string, out io.Writer) error {
	fs, cf := newFlagSet("delivery")
	competition := fs.String("competition", "", "competition id")
	wait := fs.Bool("wait", false, "poll until delivered or the poll budget is spent")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *competition == "" {
		return errors.New("competition required")
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext()
	defer cancel()

	if *wait {
		o, err := a.orchestrator()
		if err != nil {
			return err
		}
		if url, ok := o.PollDelivery(ctx, *competition); ok {
			fmt.Fprintf(out, "download: %s\n", url)
			return nil
		}
		fmt.Fprintln(out, "delivery pending")
		return nil
	}

	status, err := arena.NewReader(a.client).DeliveryStatus(ctx, *competition)
	if err != nil {
		return err
	}
	if status.Ready && status.DownloadURL != "" {
		fmt.Fprintf(out, "download: %s\n", status.DownloadURL)
	} else {
		fmt.Fprintln(out, "delivery pending")
	}
	return nil
}

func listCompetitions(args []string, out io.Writer) error {
	fs, cf := newFlagSet("list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext()
	defer cancel()
	header := arena.NewSession(a.client, a.wallet, a.tokenStore()).AuthHeader(ctx)
	list, err := arena.NewReader(a.client).ListCompetitions(ctx, header)
	if err != nil {
		return err
	}
	for _, c := range list {
		fmt.Fprintf(out, "%s\t%s\t%.2f\t%d agents\t%s\n", c.ID, c.Status, c.RewardAmount, c.AgentCount, c.Title)
	}
	return nil
}

func showCompetition(args []string, out io.Writer) error {
	fs, cf := newFlagSet("show")
	competition := fs.String("competition", "", "competition id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *competition == "" {
		return errors.New("competition required")
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext()
	defer cancel()
	header := arena.NewSession(a.client, a.wallet, a.tokenStore()).AuthHeader(ctx)
	c, err := arena.NewReader(a.client).GetCompetition(ctx, *competition, header)
	if err != nil {
		return err
	}
	encoded, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("encode competition: %w", err)
	}
	fmt.Fprintln(out, string(encoded))
	return nil
}

func login(args []string, out io.Writer) error {
	fs, cf := newFlagSet("login")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := commandContext()
	defer cancel()
	if _, err := arena.NewSession(a.client, a.wallet, a.tokenStore()).EnsureToken(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	fmt.Fprintf(out, "logged in as %s\n", a.wallet.Address())
	return nil
}

func tailEvents(args []string, out io.Writer) error {
	fs, cf := newFlagSet("events")
	count := fs.Int64("count", 20, "number of records")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := setup(cf, out)
	if err != nil {
		return err
	}
	defer a.close()
	if a.redis == nil {
		return errors.New("redis_addr required for events")
	}

	ctx, cancel := commandContext()
	defer cancel()
	records, err := events.ReadStream(ctx, a.redis, a.cfg.EventStream, *count)
	if err != nil {
		return err
	}
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		fmt.Fprintf(out, "%s %-8s %-8s %s\n", r.Timestamp.Format(time.RFC3339), r.Type, r.Source, r.Event)
	}
	return nil
}

func fees(args []string, out io.Writer) error {
	fs, _ := newFlagSet("fees")
	reward := fs.Float64("reward", 0, "reward amount")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *reward <= 0 {
		return errors.New("positive reward required")
	}
	q := arena.QuoteFees(*reward)
	fmt.Fprintf(out, "reward:        %s\n", q.Reward)
	fmt.Fprintf(out, "advance:       %s\n", q.Advance)
	fmt.Fprintf(out, "platform fee:  %s\n", q.PlatformFee)
	fmt.Fprintf(out, "due now:       %s\n", q.Total)
	fmt.Fprintf(out, "due on payout: %s\n", q.Remaining)
	return nil
}

func setupLogging(level string) error {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return fmt.Errorf("unknown debug level: %s", level)
	}
	for _, l := range subsystemLoggers {
		l.SetLevel(lvl)
	}
	return nil
}
