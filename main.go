package main

import (
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/goware/urlx"
	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"
)

var ResourceLibrary = "apiload"
var ResourceVersion = "dev"

const DefaultTracesEndpoint = "http://jaeger:4318/v1/traces"

type Options struct {
	Target struct {
		Host    string        `long:"host" description:"the base url of the API under test (or local)" env:"APILOAD_HOST" default:"local"`
		Secure  bool          `long:"secure" description:"use https when the host has no scheme" yaml:",omitempty"`
		Timeout time.Duration `long:"timeout" description:"per-request timeout (0 means no timeout)" default:"60s"`
	} `group:"Target Options"`
	Users struct {
		Count      int           `long:"users" description:"the number of concurrent simulated users" default:"1"`
		SpawnRate  float64       `long:"spawnrate" description:"the number of users to start (or stop) per second" default:"1"`
		RunTime    time.Duration `long:"runtime" description:"stop after this long, counted from the first user (0 means no limit)" default:"0s" yaml:",omitempty"`
		Iterations int64         `long:"iterations" description:"stop after this many tasks across all users (0 means no limit)" default:"0" yaml:",omitempty"`
		MinWait    time.Duration `long:"minwait" description:"the shortest pause between two tasks of a user" default:"1s"`
		MaxWait    time.Duration `long:"maxwait" description:"the longest pause between two tasks of a user" default:"2s"`
	} `group:"User Options"`
	Tracing struct {
		Sender             string            `long:"sender" description:"how to trace requests (none disables tracing)" choice:"otel" choice:"launcher" choice:"honeycomb" choice:"print" choice:"none" default:"otel"`
		ServiceName        string            `long:"servicename" description:"service.name of the exported spans" env:"OTEL_SERVICE_NAME" default:"locust-load-test"`
		Endpoint           string            `long:"endpoint" description:"the collector url to export traces to" env:"OTEL_EXPORTER_OTLP_TRACES_ENDPOINT" default:"http://jaeger:4318/v1/traces"`
		Protocol           string            `long:"protocol" description:"for otel and launcher, the OTLP transport" choice:"http" choice:"grpc" default:"http"`
		Headers            map[string]string `long:"header" description:"header to send with every export, as key:value" yaml:",omitempty"`
		APIKey             string            `long:"apikey" description:"for honeycomb only, the API key(*)" env:"HONEYCOMB_API_KEY" yaml:"-"`
		NoAutoTrace        bool              `long:"noautotrace" description:"do not instrument the http transport" yaml:",omitempty"`
		NoManualSpans      bool              `long:"nomanualspans" description:"do not wrap each request in a span of its own" yaml:",omitempty"`
		MaxQueueSize       int               `long:"maxqueuesize" description:"for otel only, maximum number of spans to queue before dropping" default:"0" yaml:",omitempty"`
		MaxExportBatchSize int               `long:"maxexportbatchsize" description:"for otel only, maximum number of spans to export at once" default:"0" yaml:",omitempty"`
		BatchTimeout       time.Duration     `long:"batchtimeout" description:"for otel only, maximum time to wait before sending a batch" default:"0s" yaml:",omitempty"`
		ExportTimeout      time.Duration     `long:"exporttimeout" description:"for otel only, maximum time to wait for a batch to be sent" default:"0s" yaml:",omitempty"`
	} `group:"Tracing Options"`
	Output struct {
		StatsInterval time.Duration `long:"statsinterval" description:"how often to print the request table (0 disables it)" default:"5s"`
		StatsFile     string        `long:"statsfile" description:"write a YAML summary of the run to this file" yaml:",omitempty"`
	} `group:"Output Options"`
	Global struct {
		LogLevel  string `long:"loglevel" description:"level of logging" choice:"debug" choice:"info" choice:"warn" choice:"error" default:"info"`
		DebugPort int    `long:"debugport" description:"port to listen on for pprof(*)" default:"-1" yaml:"-"`
		Seed      string `long:"seed" description:"string seed for the user random number generators (defaults to a time-based seed)" yaml:",omitempty"`
		Config    string `long:"config" description:"name of config file to load(*)" default:"" yaml:"-"`
		WriteCfg  string `long:"writecfg" description:"write effective YAML config to the specified output file and quit(*)" default:"" yaml:"-"`
	} `group:"Global Options"`
	apihost *url.URL
}

func newOptions() *Options {
	return &Options{}
}

func (o *Options) CopyStarredFieldsFrom(other *Options) {
	o.Tracing.APIKey = other.Tracing.APIKey
	o.Global.DebugPort = other.Global.DebugPort
	o.Global.Config = other.Global.Config
	o.Global.WriteCfg = other.Global.WriteCfg
}

func (o *Options) DebugLevel() int {
	switch o.Global.LogLevel {
	case "debug":
		return 3
	case "info":
		return 2
	case "warn":
		return 1
	case "error":
		return 0
	default:
		return 0
	}
}

// Validate rejects option combinations that cannot run.
func (o *Options) Validate() error {
	if o.Users.Count < 1 {
		return fmt.Errorf("users must be at least 1, got %d", o.Users.Count)
	}
	if o.Users.SpawnRate <= 0 {
		return fmt.Errorf("spawnrate must be positive, got %g", o.Users.SpawnRate)
	}
	if o.Users.MinWait < 0 || o.Users.MaxWait < o.Users.MinWait {
		return fmt.Errorf("wait range %s..%s is invalid", o.Users.MinWait, o.Users.MaxWait)
	}
	return nil
}

// parses the host information and returns a cleaned-up version to make
// it easier to make sure that things are properly specified
func parseHost(host string, secure bool) (*url.URL, error) {
	switch host {
	case "local":
		host = "http://localhost:8080"
	default:
	}

	// if the scheme is not specified, fall back to the value of the secure flag
	defaultScheme := "http"
	if secure {
		defaultScheme = "https"
	}
	u, err := urlx.ParseWithDefaultScheme(host, defaultScheme)
	if err != nil {
		return nil, fmt.Errorf("unable to parse host %q: %w", host, err)
	}
	return u, nil
}

func ReadConfig(opts *Options, filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	err = dec.Decode(opts)
	if err != nil {
		return err
	}
	log.Printf("read config from %s\n", filename)
	return nil
}

func WriteConfig(opts *Options, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := yaml.NewEncoder(f)
	err = enc.Encode(opts)
	if err != nil {
		return err
	}
	log.Printf("wrote config to %s\n", filename)
	return nil
}

// newHTTPClient builds the client every user shares. Automatic
// instrumentation goes on the transport so that no task code has to ask
// for it.
func newHTTPClient(sender Sender, opts *Options) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = opts.Users.Count
	var rt http.RoundTripper = transport
	if !opts.Tracing.NoAutoTrace {
		rt = sender.WrapTransport(rt)
	}
	return &http.Client{
		Transport: rt,
		Timeout:   opts.Target.Timeout,
	}
}

func main() {
	cmdopts := newOptions()

	parser := flags.NewParser(cmdopts, flags.Default)
	parser.Usage = `[OPTIONS]

	apiload puts load on the bot analytics API. It runs a number of simulated
	users; each one repeatedly picks one of three tasks, sends one request, and
	waits between minwait and maxwait before the next one:

		- write  (weight 10): POST /api/log with a JSON message for bot locust-test
		- search (weight 1):  GET /api/search?textQuery=locust
		- stats  (weight 2):  GET /api/stats/locust-test

	Users are started at spawnrate per second until there are as many as
	requested. The run ends when runtime has passed, when iterations tasks have
	been run, or on ctrl-c, whichever comes first; with neither limit it runs
	until interrupted. A table of request statistics is printed every
	statsinterval and once more at the end.

	Every request can be traced. With the otel sender (the default) spans are
	batched and sent over OTLP to the endpoint in
	OTEL_EXPORTER_OTLP_TRACES_ENDPOINT, under the service name in
	OTEL_SERVICE_NAME. Each request gets a span of its own ("POST /api/log")
	with method, url, user type, status code and response size, wrapping the
	span from the instrumented http transport. Use --sender=none to turn
	tracing off entirely.

	Options can be set in a config file, or on the command line; to specify them in the
	config file, specify it on the command line with "--config=FILENAME". The config file
	format is YAML; use --writecfg to produce one.

	Note: If a config file is used, it MUST be used for all options, except for the ones
	marked in the help text with (*) -- these fields CANNOT be set in the config file.
	`

	// read the command line and envvars into cmdargs
	_, err := parser.Parse()
	if err != nil {
		switch flagsErr := err.(type) {
		case *flags.Error:
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		log.Fatalf("error reading command line: %v", err)
	}

	opts := newOptions()
	if cmdopts.Global.Config != "" {
		if err := ReadConfig(opts, cmdopts.Global.Config); err != nil {
			log.Fatalf("err %v -- unable to read config file %s", err, cmdopts.Global.Config)
		}
		opts.CopyStarredFieldsFrom(cmdopts)
	} else {
		opts = cmdopts // we don't have to read from a file
	}

	if opts.Global.WriteCfg != "" {
		err := WriteConfig(opts, opts.Global.WriteCfg)
		if err != nil {
			log.Fatalf("unable to write config: %s\n", err)
		}
		os.Exit(0)
	}

	if err := opts.Validate(); err != nil {
		log.Fatalf("invalid options: %v", err)
	}

	if opts.Global.Seed == "" {
		opts.Global.Seed = strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	if opts.Global.DebugPort > 0 {
		go func() {
			http.ListenAndServe(fmt.Sprintf("localhost:%d", opts.Global.DebugPort), nil)
		}()
	}

	log := NewLogger(opts.DebugLevel())

	opts.apihost, err = parseHost(opts.Target.Host, opts.Target.Secure)
	if err != nil {
		log.Fatal("%v\n", err)
	}
	log.Info("host: %s, users: %d, spawnrate: %g, sender: %s, seed: %s\n",
		opts.apihost, opts.Users.Count, opts.Users.SpawnRate, opts.Tracing.Sender, opts.Global.Seed)

	sender, err := NewSender(log, opts)
	if err != nil {
		log.Fatal("unable to set up tracing: %v\n", err)
	}

	stats := NewStats()
	client := NewClient(opts.apihost, newHTTPClient(sender, opts), sender, stats, ApiUserType, !opts.Tracing.NoManualSpans)
	utype := NewApiUser(opts.Users.MinWait, opts.Users.MaxWait)
	newUser := func(n int) *User {
		return NewUser(n, utype, client, opts.Global.Seed, log)
	}

	// closed once by whichever of signal, counter or swarm finishes first
	stopper := NewStopper()
	// and a waitgroup so we can wait for everything to finish
	wg := &sync.WaitGroup{}

	// catch ctrl-c and stop
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	// we don't want a wait group for this one, or we'll never exit
	go func() {
		select {
		case <-sigch:
			log.Warn("shutting down from operating system signal\n")
			stopper.Stop()
		case <-stopper.C:
		}
	}()

	// The iteration counter hands out one ticket per task and stops the run
	// when it has handed out the requested number.
	wg.Add(1)
	counterChan := make(chan int64)
	go func() {
		defer wg.Done()
		if !IterationCounter(log, opts.Users.Iterations, counterChan, stopper.C) {
			stopper.Stop()
		}
	}()

	if opts.Output.StatsInterval > 0 {
		go stats.Report(os.Stdout, opts.Output.StatsInterval, stopper.C)
	}

	swarm := NewSwarm(newUser, log, opts)
	wg.Add(1)
	go swarm.Run(wg, stopper, counterChan)

	// wait for things to finish
	wg.Wait()
	sender.Close()

	fmt.Println()
	stats.WriteSummary(os.Stdout)
	if opts.Output.StatsFile != "" {
		if err := stats.WriteSummaryFile(opts.Output.StatsFile); err != nil {
			log.Error("unable to write stats file %s: %v\n", opts.Output.StatsFile, err)
		} else {
			log.Info("wrote stats to %s\n", opts.Output.StatsFile)
		}
	}
	if stats.Total().NumFailures > 0 {
		os.Exit(1)
	}
}
