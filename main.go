package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	app := &cli.App{
		Name:  "sqs-contact-formatter",
		Usage: "Turn queued contact messages into pages in S3 and announce them",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run a single polling cycle and exit, non-zero if any message failed",
				Flags:  runFlags(),
				Action: runProcessor,
			},
		},
	}

	// ctrl-c or sigterm, which is what docker sends
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("Application failed")
	}
}

func runFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "Optional YAML config file, flags and env vars override it",
			EnvVars: []string{"FORMATTER_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "queue-url",
			Usage:   "AWS SQS queue URL",
			EnvVars: []string{"SQS_QUEUE_URL"},
		},
		&cli.StringFlag{
			Name:    "bucket",
			Usage:   "S3 bucket contact pages are written to",
			EnvVars: []string{"ARTIFACT_BUCKET"},
		},
		&cli.StringFlag{
			Name:    "topic",
			Usage:   "Notification topic (SNS topic ARN, or routing key for amqp)",
			EnvVars: []string{"NOTIFY_TOPIC"},
		},
		&cli.StringFlag{
			Name:    "region",
			Usage:   "AWS region, defaults to the SDK's resolution",
			EnvVars: []string{"AWS_REGION"},
		},
		&cli.StringFlag{
			Name:    "credential-source",
			Usage:   "Where AWS credentials come from (default, env, profile)",
			Value:   CredentialSourceDefault,
			EnvVars: []string{"AWS_CREDENTIAL_SOURCE"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Usage:   "Shared config profile for credential source profile",
			EnvVars: []string{"AWS_PROFILE"},
		},
		&cli.StringFlag{
			Name:    "visibility",
			Usage:   "Visibility of stored pages (public, private)",
			Value:   string(VisibilityPublic),
			EnvVars: []string{"ARTIFACT_VISIBILITY"},
		},
		&cli.IntFlag{
			Name:    "key-offset",
			Usage:   "Derive storage keys from this byte offset into the url instead of its path (0 uses the path)",
			Value:   DefaultKeyOffset,
			EnvVars: []string{"ARTIFACT_KEY_OFFSET"},
		},
		&cli.IntFlag{
			Name:  "max-messages",
			Usage: "Messages requested per receive (1-10)",
			Value: 10,
		},
		&cli.IntFlag{
			Name:  "wait-seconds",
			Usage: "Long poll wait for the receive (0-20)",
			Value: 5,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			EnvVars: []string{"LOG_LEVEL"},
		},
		&cli.BoolFlag{
			Name:    "quiet",
			Usage:   "Suppress successful message processing logs",
			Value:   false,
			EnvVars: []string{"QUIET"},
		},
		&cli.StringFlag{
			Name:    "dedup-type",
			Usage:   "Ledger of announced pages that stops a redelivered message being announced twice (none, postgres)",
			Value:   DedupNone,
			EnvVars: []string{"DEDUP_TYPE"},
		},
		&cli.DurationFlag{
			Name:  "dedup-retention",
			Usage: "Ledger entries older than this are removed before the cycle, 0 keeps everything",
			Value: 7 * 24 * time.Hour,
		},
		&cli.StringFlag{
			Name:    "db-url",
			Usage:   "Postgres URL for the ledger and outcome log, empty disables both",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "notify-backend",
			Usage:   "Notification transport (sns, amqp)",
			Value:   NotifySNS,
			EnvVars: []string{"NOTIFY_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "amqp-url",
			Usage:   "RabbitMQ URL for notify backend amqp",
			EnvVars: []string{"AMQP_URL"},
		},
		&cli.StringFlag{
			Name:    "amqp-exchange",
			Usage:   "Exchange notifications are published to for notify backend amqp",
			Value:   "contacts",
			EnvVars: []string{"AMQP_EXCHANGE"},
		},
		&cli.StringFlag{
			Name:    "pushgateway-url",
			Usage:   "Prometheus Pushgateway to push cycle metrics to, empty disables",
			EnvVars: []string{"PUSHGATEWAY_URL"},
		},
	}
}

func runProcessor(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	setLogLevel(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx := c.Context

	// aws config
	awsCFG, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}

	var outcomeDB DatabaseInterface
	var db *Database
	if cfg.DatabaseURL != "" {
		db, err = NewDatabase(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare database schema: %w", err)
		}
		outcomeDB = db
	}

	ledger, err := newPageLedger(cfg.DedupType, db)
	if err != nil {
		return err
	}
	if ledger != nil && cfg.DedupRetention > 0 {
		pruned, err := ledger.Prune(ctx, cfg.DedupRetention)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune page ledger")
		} else {
			log.Debug().Int64("pruned", pruned).Msg("Pruned page ledger")
		}
	}

	publisher, closer, err := newPublisher(cfg, awsCFG)
	if err != nil {
		return fmt.Errorf("failed to create notification publisher: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	queue := NewSQSQueue(sqs.NewFromConfig(awsCFG), cfg.QueueURL, int32(cfg.MaxMessages), int32(cfg.WaitSeconds))

	processor, err := NewMessageProcessor(ProcessorDeps{
		Queue:      queue,
		Store:      NewS3Store(s3.NewFromConfig(awsCFG), cfg.Bucket),
		Publisher:  publisher,
		Builder:    NewArtifactBuilder(Visibility(cfg.Visibility), cfg.KeyOffset),
		Ledger:     ledger,
		DB:         outcomeDB,
	}, cfg.Topic, cfg.Quiet)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}

	log.Info().Str("queue_url", cfg.QueueURL).Str("bucket", cfg.Bucket).Msg("Starting polling cycle")
	queue.LogStats(ctx)

	startTime := time.Now()
	outcomes, err := processor.RunCycle(ctx)
	if err != nil {
		return fmt.Errorf("polling cycle failed: %w", err)
	}
	took := time.Since(startTime)

	if cfg.PushgatewayURL != "" {
		metrics := NewCycleMetrics()
		metrics.Observe(outcomes, took, time.Now())
		if err := metrics.Push(cfg.PushgatewayURL); err != nil {
			log.Error().Err(err).Msg("Failed to push cycle metrics")
		}
	}

	return reportCycle(outcomes, took)
}

// logs the cycle summary and turns any failed message into exit status 1
func reportCycle(outcomes []ProcessingOutcome, took time.Duration) error {
	failed := 0
	for _, o := range outcomes {
		if !o.Success {
			failed++
			log.Error().
				Str("message_id", o.MessageID).
				Str("stage", string(o.FailureStage)).
				Err(o.Err).
				Msg("There was a problem processing message")
		}
	}

	log.Info().
		Int("received", len(outcomes)).
		Int("succeeded", len(outcomes)-failed).
		Int("failed", failed).
		Dur("duration", took).
		Msg("Polling cycle complete")

	if !succeeded(outcomes) {
		return cli.Exit(fmt.Sprintf("%d of %d messages failed", failed, len(outcomes)), 1)
	}
	return nil
}

func newPageLedger(dedupType string, db *Database) (PageLedger, error) {
	switch dedupType {
	case DedupNone, "":
		return nil, nil
	case DedupPostgres:
		if db == nil {
			return nil, fmt.Errorf("dedup-type postgres requires db-url")
		}
		return NewPostgresLedger(db.db), nil
	default:
		return nil, fmt.Errorf("invalid dedup-type: %s", dedupType)
	}
}

func newPublisher(cfg Config, awsCFG aws.Config) (NotificationPublisher, io.Closer, error) {
	switch cfg.NotifyBackend {
	case NotifyAMQP:
		p, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case NotifySNS, "":
		return NewSNSPublisher(sns.NewFromConfig(awsCFG)), nil, nil
	default:
		return nil, nil, fmt.Errorf("invalid notify-backend: %s", cfg.NotifyBackend)
	}
}
