package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/pulseflow/internal/runtime"
	"github.com/drblury/pulseflow/internal/runtime/config"
	"github.com/drblury/pulseflow/internal/runtime/jsoncodec"
)

type streamOptions struct {
	configFile string

	transport    string
	kafkaBrokers []string
	natsURL      string
	rabbitMQURL  string
	httpURL      string
	ioFile       string
	sqliteFile   string
	postgresURL  string
	awsRegion    string
	awsEndpoint  string

	instrument       string
	topicPrefix      string
	runNumber        int64
	messagesPerFrame int
	paced            bool
	frameRate        float64
	singleRun        bool
	quiet            bool
	interRunPause    time.Duration
	codec            string

	source         string
	sourceFile     string
	frames         int
	eventsPerFrame int
	seed           uint64

	metrics     bool
	metricsPort int
}

func newStreamCommand() *cobra.Command {
	o := &streamOptions{}
	def := config.Default()

	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Stream runs to the configured broker",
		Long: "Stream publishes run start, every frame of the source split into event messages, and run stop. " +
			"Without --single-run it repeats with increasing run numbers until interrupted. " +
			"Settings come from the config file, then PULSEFLOW_* environment variables, then flags.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config(cmd)
			if err != nil {
				return err
			}

			log := newLogger(cmd.ErrOrStderr(),
				persistentString(cmd, "log-level", cfg.LogLevel),
				persistentString(cmd, "log-format", cfg.LogFormat),
				"stream", cfg.Quiet)

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			s, err := runtimepkg.TryNewStreamer(ctx, cfg, log, runtimepkg.StreamerDependencies{})
			if err != nil {
				return err
			}

			stats, runErr := s.Start(ctx)

			closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer closeCancel()
			if err := s.Close(closeCtx); err != nil {
				log.Error("Failed to close streamer", err, nil)
			}

			out := cmd.OutOrStdout()
			for _, st := range stats {
				if err := jsoncodec.Encode(out, st); err != nil {
					return err
				}
			}
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVarP(&o.configFile, "config", "c", "", "YAML config file")

	f.StringVarP(&o.transport, "transport", "t", def.PubSubSystem, "Broker: channel|kafka|rabbitmq|nats|jetstream|http|aws|io|sqlite|postgres")
	f.StringSliceVar(&o.kafkaBrokers, "kafka-brokers", nil, "Kafka bootstrap brokers")
	f.StringVar(&o.natsURL, "nats-url", "", "NATS server URL")
	f.StringVar(&o.rabbitMQURL, "rabbitmq-url", "", "RabbitMQ AMQP URL")
	f.StringVar(&o.httpURL, "http-url", "", "Base URL messages are POSTed to")
	f.StringVar(&o.ioFile, "io-file", "", "File receiving one JSON line per message")
	f.StringVar(&o.sqliteFile, "sqlite-file", "", "SQLite database file")
	f.StringVar(&o.postgresURL, "postgres-url", "", "PostgreSQL connection URL")
	f.StringVar(&o.awsRegion, "aws-region", "", "AWS region for SNS")
	f.StringVar(&o.awsEndpoint, "aws-endpoint", "", "Custom AWS endpoint, such as LocalStack")

	f.StringVarP(&o.instrument, "instrument", "i", def.Instrument, "Instrument name, also the default topic prefix")
	f.StringVar(&o.topicPrefix, "topic-prefix", "", "Topic prefix (default the instrument name)")
	f.Int64VarP(&o.runNumber, "run-number", "r", def.RunNumber, "First run number")
	f.IntVarP(&o.messagesPerFrame, "messages-per-frame", "m", def.MessagesPerFrame, "Event messages per frame")
	f.BoolVar(&o.paced, "paced", def.Paced, "Emit frames at --frame-rate instead of as fast as possible")
	f.Float64Var(&o.frameRate, "frame-rate", def.FrameRate, "Frames per second when paced")
	f.BoolVar(&o.singleRun, "single-run", def.SingleRun, "Stream one run and exit")
	f.BoolVarP(&o.quiet, "quiet", "q", def.Quiet, "Only log warnings and errors")
	f.DurationVar(&o.interRunPause, "inter-run-pause", def.InterRunPause, "Pause between repeated runs")
	f.StringVar(&o.codec, "codec", def.Codec, "Payload codec: binary|json")

	f.StringVar(&o.source, "source", def.Source, "Frame source: synthetic|file")
	f.StringVar(&o.sourceFile, "source-file", "", "Frame document for --source file")
	f.IntVar(&o.frames, "frames", def.Synthetic.Frames, "Synthetic frames per run")
	f.IntVar(&o.eventsPerFrame, "events-per-frame", def.Synthetic.EventsPerFrame, "Synthetic events per frame")
	f.Uint64Var(&o.seed, "seed", def.Synthetic.Seed, "Synthetic random seed")

	f.BoolVar(&o.metrics, "metrics", def.MetricsEnabled, "Serve Prometheus metrics")
	f.IntVar(&o.metricsPort, "metrics-port", def.MetricsPort, "Metrics HTTP port")

	return cmd
}

// config layers the config file, the environment and the flags the user set.
func (o *streamOptions) config(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	set := cmd.Flags().Changed
	if set("transport") {
		cfg.PubSubSystem = o.transport
	}
	if set("kafka-brokers") {
		cfg.KafkaBrokers = o.kafkaBrokers
	}
	if set("nats-url") {
		cfg.NATSURL = o.natsURL
	}
	if set("rabbitmq-url") {
		cfg.RabbitMQURL = o.rabbitMQURL
	}
	if set("http-url") {
		cfg.HTTPPublisherURL = o.httpURL
	}
	if set("io-file") {
		cfg.IOFile = o.ioFile
	}
	if set("sqlite-file") {
		cfg.SQLiteFile = o.sqliteFile
	}
	if set("postgres-url") {
		cfg.PostgresURL = o.postgresURL
	}
	if set("aws-region") {
		cfg.AWSRegion = o.awsRegion
	}
	if set("aws-endpoint") {
		cfg.AWSEndpoint = o.awsEndpoint
	}
	if set("instrument") {
		cfg.Instrument = o.instrument
	}
	if set("topic-prefix") {
		cfg.TopicPrefix = o.topicPrefix
	}
	if set("run-number") {
		cfg.RunNumber = o.runNumber
	}
	if set("messages-per-frame") {
		cfg.MessagesPerFrame = o.messagesPerFrame
	}
	if set("paced") {
		cfg.Paced = o.paced
	}
	if set("frame-rate") {
		cfg.FrameRate = o.frameRate
	}
	if set("single-run") {
		cfg.SingleRun = o.singleRun
	}
	if set("quiet") {
		cfg.Quiet = o.quiet
	}
	if set("inter-run-pause") {
		cfg.InterRunPause = o.interRunPause
	}
	if set("codec") {
		cfg.Codec = o.codec
	}
	if set("source") {
		cfg.Source = o.source
	}
	if set("source-file") {
		cfg.SourceFile = o.sourceFile
	}
	if set("frames") {
		cfg.Synthetic.Frames = o.frames
	}
	if set("events-per-frame") {
		cfg.Synthetic.EventsPerFrame = o.eventsPerFrame
	}
	if set("seed") {
		cfg.Synthetic.Seed = o.seed
	}
	if set("metrics") {
		cfg.MetricsEnabled = o.metrics
	}
	if set("metrics-port") {
		cfg.MetricsPort = o.metricsPort
	}
	return &cfg, nil
}
