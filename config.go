package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

const (
	CredentialSourceDefault = "default"
	CredentialSourceEnv     = "env"
	CredentialSourceProfile = "profile"

	DedupNone     = "none"
	DedupPostgres = "postgres"

	NotifySNS  = "sns"
	NotifyAMQP = "amqp"
)

// everything a deployment supplies. Flag defaults come first, keys present in
// the optional YAML file replace them (zero values included), and flags or
// their environment variables given explicitly win over both.
type Config struct {
	QueueURL         string        `yaml:"queue_url"`
	Bucket           string        `yaml:"bucket"`
	Topic            string        `yaml:"topic"`
	Region           string        `yaml:"region"`
	CredentialSource string        `yaml:"credential_source"`
	Profile          string        `yaml:"profile"`
	Visibility       string        `yaml:"visibility"`
	KeyOffset        int           `yaml:"key_offset"`
	MaxMessages      int           `yaml:"max_messages"`
	WaitSeconds      int           `yaml:"wait_seconds"`
	LogLevel         string        `yaml:"log_level"`
	Quiet            bool          `yaml:"quiet"`
	DedupType        string        `yaml:"dedup_type"`
	DedupRetention   time.Duration `yaml:"dedup_retention"`
	DatabaseURL      string        `yaml:"db_url"`
	NotifyBackend    string        `yaml:"notify_backend"`
	AMQPURL          string        `yaml:"amqp_url"`
	AMQPExchange     string        `yaml:"amqp_exchange"`
	PushgatewayURL   string        `yaml:"pushgateway_url"`
}

func LoadConfigFile(path string) (Config, error) {
	var cfg Config
	err := overlayConfigFile(path, &cfg)
	return cfg, err
}

// only keys present in the file are written into cfg
func overlayConfigFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error

	if c.QueueURL == "" {
		errs = append(errs, errors.New("queue url is required"))
	}
	if c.Bucket == "" {
		errs = append(errs, errors.New("artifact bucket is required"))
	}
	if c.Topic == "" {
		errs = append(errs, errors.New("notification topic is required"))
	}

	switch Visibility(c.Visibility) {
	case VisibilityPublic, VisibilityPrivate:
	default:
		errs = append(errs, fmt.Errorf("invalid visibility %q (public, private)", c.Visibility))
	}

	switch c.CredentialSource {
	case CredentialSourceDefault, CredentialSourceEnv:
	case CredentialSourceProfile:
		if c.Profile == "" {
			errs = append(errs, errors.New("credential source profile needs a profile name"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid credential source %q (default, env, profile)", c.CredentialSource))
	}

	if c.KeyOffset < 0 {
		errs = append(errs, fmt.Errorf("key offset must not be negative, got %d", c.KeyOffset))
	}
	if c.MaxMessages < 1 || c.MaxMessages > 10 {
		errs = append(errs, fmt.Errorf("max messages must be between 1 and 10, got %d", c.MaxMessages))
	}
	if c.WaitSeconds < 0 || c.WaitSeconds > 20 {
		errs = append(errs, fmt.Errorf("wait seconds must be between 0 and 20, got %d", c.WaitSeconds))
	}

	switch c.DedupType {
	case DedupNone:
	case DedupPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("dedup type postgres needs a database url"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid dedup type %q (none, postgres)", c.DedupType))
	}

	switch c.NotifyBackend {
	case NotifySNS:
	case NotifyAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("notify backend amqp needs an amqp url"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid notify backend %q (sns, amqp)", c.NotifyBackend))
	}

	return errors.Join(errs...)
}

// fileVal already holds the flag default unless the file set the key
func pick[T any](c *cli.Context, name string, fileVal, flagVal T) T {
	if c.IsSet(name) {
		return flagVal
	}
	return fileVal
}

func flagDefaults(c *cli.Context) Config {
	return Config{
		QueueURL:         c.String("queue-url"),
		Bucket:           c.String("bucket"),
		Topic:            c.String("topic"),
		Region:           c.String("region"),
		CredentialSource: c.String("credential-source"),
		Profile:          c.String("profile"),
		Visibility:       c.String("visibility"),
		KeyOffset:        c.Int("key-offset"),
		MaxMessages:      c.Int("max-messages"),
		WaitSeconds:      c.Int("wait-seconds"),
		LogLevel:         c.String("log-level"),
		Quiet:            c.Bool("quiet"),
		DedupType:        c.String("dedup-type"),
		DedupRetention:   c.Duration("dedup-retention"),
		DatabaseURL:      c.String("db-url"),
		NotifyBackend:    c.String("notify-backend"),
		AMQPURL:          c.String("amqp-url"),
		AMQPExchange:     c.String("amqp-exchange"),
		PushgatewayURL:   c.String("pushgateway-url"),
	}
}

func loadConfig(c *cli.Context) (Config, error) {
	cfg := flagDefaults(c)
	if path := c.String("config"); path != "" {
		if err := overlayConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	cfg.QueueURL = pick(c, "queue-url", cfg.QueueURL, c.String("queue-url"))
	cfg.Bucket = pick(c, "bucket", cfg.Bucket, c.String("bucket"))
	cfg.Topic = pick(c, "topic", cfg.Topic, c.String("topic"))
	cfg.Region = pick(c, "region", cfg.Region, c.String("region"))
	cfg.CredentialSource = pick(c, "credential-source", cfg.CredentialSource, c.String("credential-source"))
	cfg.Profile = pick(c, "profile", cfg.Profile, c.String("profile"))
	cfg.Visibility = strings.ToLower(pick(c, "visibility", cfg.Visibility, c.String("visibility")))
	cfg.KeyOffset = pick(c, "key-offset", cfg.KeyOffset, c.Int("key-offset"))
	cfg.MaxMessages = pick(c, "max-messages", cfg.MaxMessages, c.Int("max-messages"))
	cfg.WaitSeconds = pick(c, "wait-seconds", cfg.WaitSeconds, c.Int("wait-seconds"))
	cfg.LogLevel = pick(c, "log-level", cfg.LogLevel, c.String("log-level"))
	cfg.Quiet = pick(c, "quiet", cfg.Quiet, c.Bool("quiet"))
	cfg.DedupType = pick(c, "dedup-type", cfg.DedupType, c.String("dedup-type"))
	cfg.DedupRetention = pick(c, "dedup-retention", cfg.DedupRetention, c.Duration("dedup-retention"))
	cfg.DatabaseURL = pick(c, "db-url", cfg.DatabaseURL, c.String("db-url"))
	cfg.NotifyBackend = pick(c, "notify-backend", cfg.NotifyBackend, c.String("notify-backend"))
	cfg.AMQPURL = pick(c, "amqp-url", cfg.AMQPURL, c.String("amqp-url"))
	cfg.AMQPExchange = pick(c, "amqp-exchange", cfg.AMQPExchange, c.String("amqp-exchange"))
	cfg.PushgatewayURL = pick(c, "pushgateway-url", cfg.PushgatewayURL, c.String("pushgateway-url"))

	return cfg, nil
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// resolves credentials up front so a bad source fails before the queue is touched
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	switch cfg.CredentialSource {
	case CredentialSourceEnv:
		provider, err := envCredentials(os.Getenv)
		if err != nil {
			return aws.Config{}, err
		}
		opts = append(opts, awsconfig.WithCredentialsProvider(provider))
	case CredentialSourceProfile:
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}

	awsCFG, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	if awsCFG.Credentials == nil {
		return aws.Config{}, errors.New("no AWS credentials provider configured")
	}
	if _, err := awsCFG.Credentials.Retrieve(ctx); err != nil {
		return aws.Config{}, fmt.Errorf("retrieve AWS credentials: %w", err)
	}

	return awsCFG, nil
}

func envCredentials(getenv func(string) string) (aws.CredentialsProvider, error) {
	id, secret := getenv("AWS_ACCESS_KEY_ID"), getenv("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return nil, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set for credential source env")
	}
	return credentials.NewStaticCredentialsProvider(id, secret, getenv("AWS_SESSION_TOKEN")), nil
}
