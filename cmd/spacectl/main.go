// Command spacectl puts and reads tuples from the command line.
//
//	spacectl --server 127.0.0.1:7400 --space jobs put job 1 '"payload"'
//	spacectl --space jobs get job ?int ?string
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"tuplespace/client"
	"tuplespace/codec"
	"tuplespace/config"
	"tuplespace/logging"
	"tuplespace/tuple"
)

type options struct {
	configPath string
	servers    []string
	space      string
	codec      string
	session    string
	timeout    time.Duration
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "spacectl",
		Short:        "Put and read tuples in a tuple space",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a TOML client config file")
	flags.StringSliceVar(&opts.servers, "server", nil, "Server address, repeatable (can also use the config file)")
	flags.StringVar(&opts.space, "space", "", "Target space")
	flags.StringVar(&opts.codec, "codec", "", "json or binary")
	flags.StringVar(&opts.session, "session", "", "Session id, generated when empty")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Give up after this long, 0 waits forever")
	flags.StringVar(&opts.logLevel, "log-level", "off", "debug, info, warn, error or off")

	rootCmd.AddCommand(putCmd(opts))
	for _, rc := range []struct {
		name, short string
		call        func(context.Context, *client.Client, tuple.Template) ([]tuple.Tuple, error)
	}{
		{"get", "Remove a matching tuple, waiting for one", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return one(c.Get(ctx, tmpl))
		}},
		{"getp", "Remove a matching tuple if one exists", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return maybe(c.GetP(ctx, tmpl))
		}},
		{"getall", "Remove every matching tuple", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return c.GetAll(ctx, tmpl)
		}},
		{"query", "Read a matching tuple, waiting for one", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return one(c.Query(ctx, tmpl))
		}},
		{"queryp", "Read a matching tuple if one exists", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return maybe(c.QueryP(ctx, tmpl))
		}},
		{"queryall", "Read every matching tuple", func(ctx context.Context, c *client.Client, tmpl tuple.Template) ([]tuple.Tuple, error) {
			return c.QueryAll(ctx, tmpl)
		}},
	} {
		rootCmd.AddCommand(readCmd(opts, rc.name, rc.short, rc.call))
	}
	return rootCmd
}

func putCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put FIELD...",
		Short: "Store a tuple",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTuple(args)
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				if err := c.Put(ctx, t); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "ok")
				return nil
			})
		},
	}
}

func readCmd(opts *options, name, short string, call func(context.Context, *client.Client, tuple.Template) ([]tuple.Tuple, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " PATTERN...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl, err := parseTemplate(args)
			if err != nil {
				return err
			}
			return withClient(cmd, opts, func(ctx context.Context, c *client.Client) error {
				ts, err := call(ctx, c, tmpl)
				if err != nil {
					return err
				}
				printTuples(cmd.OutOrStdout(), ts)
				return nil
			})
		},
	}
}

func withClient(cmd *cobra.Command, opts *options, fn func(context.Context, *client.Client) error) error {
	cfg, err := opts.clientConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.ProfileDev, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	var extra []client.Option
	if opts.session != "" {
		extra = append(extra, client.WithSession(opts.session))
	}
	c, err := client.FromConfig(cfg, logger, extra...)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	return fn(ctx, c)
}

// clientConfig loads the config file, if any, and applies the flags that were set.
func (o *options) clientConfig(cmd *cobra.Command) (config.Client, error) {
	cfg := config.DefaultClient()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadClient(o.configPath); err != nil {
			return config.Client{}, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("server") {
		cfg.Servers = o.servers
		cfg.EtcdEndpoints = nil
	}
	if flags.Changed("space") {
		cfg.Space = o.space
	}
	if flags.Changed("codec") {
		ct, err := codec.ParseCodecType(o.codec)
		if err != nil {
			return config.Client{}, err
		}
		cfg.Codec = ct
	}
	if flags.Changed("log-level") || o.configPath == "" {
		cfg.LogLevel = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Client{}, err
	}
	return cfg, nil
}

func one(t tuple.Tuple, err error) ([]tuple.Tuple, error) {
	if err != nil {
		return nil, err
	}
	return []tuple.Tuple{t}, nil
}

func maybe(t tuple.Tuple, found bool, err error) ([]tuple.Tuple, error) {
	if err != nil || !found {
		return nil, err
	}
	return []tuple.Tuple{t}, nil
}

func printTuples(w io.Writer, ts []tuple.Tuple) {
	if len(ts) == 0 {
		fmt.Fprintln(w, "no match")
		return
	}
	for _, t := range ts {
		fmt.Fprintln(w, t)
	}
}
