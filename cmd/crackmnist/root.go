package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dlr-wf/go-crackmnist/crackmnist"
	"github.com/dlr-wf/go-crackmnist/fetch"
	"github.com/dlr-wf/go-crackmnist/internal/logging"
	"github.com/dlr-wf/go-crackmnist/registry"
)

const envPrefix = "CRACKMNIST"

// app carries the global flags and the objects derived from them.
type app struct {
	stdin          io.Reader
	stdout, stderr io.Writer

	root      string
	config    string
	logLevel  string
	logFormat string
	manifest  string

	retries   int
	rateLimit int

	s3Endpoint  string
	s3Region    string
	s3AccessKey string
	s3SecretKey string
	s3Insecure  bool

	log *logging.Logger
	man *registry.Manifest
}

// NewRootCommand builds the crackmnist command tree.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	rc := &cobra.Command{
		Use:   "crackmnist",
		Short: "Download, inspect and sample the CrackMNIST dataset.",
		Long: `crackmnist manages local copies of CrackMNIST, a dataset of digital image
correlation displacement fields from fatigue crack growth experiments.

Flags may also be given as environment variables (CRACKMNIST_ROOT,
CRACKMNIST_LOG_LEVEL, ...) or in a TOML file named by --config.
`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := setAllConfig(viper.New(), cmd.Flags(), validKeys(cmd.Root())); err != nil {
				return err
			}
			return a.setup()
		},
	}
	flags := rc.PersistentFlags()
	flags.StringVarP(&a.config, "config", "c", "", "TOML configuration file")
	flags.StringVar(&a.root, "root", crackmnist.DefaultRoot(), "data directory")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "text", "log format: text or json")
	flags.StringVar(&a.manifest, "manifest", "", "TOML manifest override, e.g. for a mirror")
	flags.IntVar(&a.retries, "retries", 0, "retries for failed HTTP downloads")
	flags.IntVar(&a.rateLimit, "rate-limit", 0, "download bandwidth limit in bytes per second, 0 for none")
	flags.StringVar(&a.s3Endpoint, "s3-endpoint", "", "host:port of an S3-compatible mirror serving s3:// URLs")
	flags.StringVar(&a.s3Region, "s3-region", "us-east-1", "region of the S3 mirror")
	flags.StringVar(&a.s3AccessKey, "s3-access-key", "", "S3 access key")
	flags.StringVar(&a.s3SecretKey, "s3-secret-key", "", "S3 secret key")
	flags.BoolVar(&a.s3Insecure, "s3-insecure", false, "use plain HTTP for the S3 mirror")

	rc.AddCommand(newFetchCommand(a))
	rc.AddCommand(newInfoCommand(a))
	rc.AddCommand(newInspectCommand(a))
	rc.AddCommand(newSampleCommand(a))
	rc.AddCommand(newStatsCommand(a))
	rc.AddCommand(newSynthCommand(a))

	rc.SetIn(stdin)
	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

func (a *app) setup() error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return errors.Wrap(err, "log level")
	}
	switch a.logFormat {
	case "text":
		a.log = logging.NewTextLogger(a.stderr, level)
	case "json":
		a.log = logging.NewJSONLogger(a.stderr, level)
	default:
		return errors.Errorf("unknown log format %q", a.logFormat)
	}

	a.man = registry.CrackMNIST
	if a.manifest != "" {
		if a.man, err = registry.Load(a.manifest); err != nil {
			return errors.Wrap(err, "loading manifest")
		}
	}
	return nil
}

func (a *app) fetcher() (fetch.Fetcher, error) {
	opts := []fetch.Option{
		fetch.WithLogger(a.log),
		fetch.WithRetries(a.retries),
		fetch.WithRateLimit(a.rateLimit),
	}
	var s3 *fetch.S3Fetcher
	if a.s3Endpoint != "" {
		c, err := minio.New(a.s3Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(a.s3AccessKey, a.s3SecretKey, ""),
			Secure: !a.s3Insecure,
			Region: a.s3Region,
		})
		if err != nil {
			return nil, errors.Wrap(err, "s3 client")
		}
		s3 = fetch.NewS3(c, opts...)
	}
	return fetch.NewMux(fetch.NewHTTP(opts...), s3), nil
}

// validKeys collects every flag name of the command tree. A config file
// may set any of them, whichever command runs.
func validKeys(root *cobra.Command) map[string]bool {
	keys := map[string]bool{}
	var walk func(*cobra.Command)
	walk = func(c *cobra.Command) {
		add := func(f *pflag.Flag) { keys[f.Name] = true }
		c.PersistentFlags().VisitAll(add)
		c.LocalFlags().VisitAll(add)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(root)
	return keys
}

// setAllConfig fills every flag that was not given on the command line from
// the environment (CRACKMNIST_ plus the upper-cased flag name with dashes
// as underscores) or the config file, in that order of priority.
func setAllConfig(v *viper.Viper, flags *pflag.FlagSet, valid map[string]bool) error {
	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if c := v.GetString("config"); c != "" {
		v.SetConfigFile(c)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading configuration file '%s': %v", c, err)
		}
		for _, key := range v.AllKeys() {
			if !valid[key] && flags.Lookup(key) == nil {
				return fmt.Errorf("invalid option in configuration file: %v", key)
			}
		}
	}

	var flagErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		var value string
		switch f.Value.Type() {
		case "stringSlice", "intSlice":
			value = strings.Join(v.GetStringSlice(f.Name), ",")
		default:
			value = v.GetString(f.Name)
		}
		if value == "" && f.Value.Type() != "string" {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			flagErr = sv.Replace(strings.Split(value, ","))
			return
		}
		flagErr = f.Value.Set(value)
	})
	return flagErr
}
