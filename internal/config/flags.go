package config

import (
	"github.com/spf13/pflag"
)

// Flags binds command-line overrides. Only flags the user actually set are
// applied, so file and environment values survive unset flags.
type Flags struct {
	fs     *pflag.FlagSet
	path   string
	values Config
	apply  map[string]func(*Config)
}

// BindFlags registers the shared flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs, apply: map[string]func(*Config){}}
	d := Default()
	v := &f.values

	fs.StringVarP(&f.path, "config", "c", "", "path to a YAML config file")

	fs.StringVar(&v.Temporal.HostPort, "temporal-address", d.Temporal.HostPort, "Temporal frontend host:port")
	f.on("temporal-address", func(c *Config) { c.Temporal.HostPort = v.Temporal.HostPort })
	fs.StringVar(&v.Temporal.Namespace, "temporal-namespace", d.Temporal.Namespace, "Temporal namespace")
	f.on("temporal-namespace", func(c *Config) { c.Temporal.Namespace = v.Temporal.Namespace })

	fs.StringVar(&v.RabbitMQ.URL, "rabbitmq-url", d.RabbitMQ.URL, "RabbitMQ connection URL")
	f.on("rabbitmq-url", func(c *Config) { c.RabbitMQ.URL = v.RabbitMQ.URL })
	fs.StringVar(&v.RabbitMQ.Queue, "queue", d.RabbitMQ.Queue, "checkout-completed queue name")
	f.on("queue", func(c *Config) { c.RabbitMQ.Queue = v.RabbitMQ.Queue })

	fs.DurationVar(&v.Activity.StartToCloseTimeout, "activity-timeout", d.Activity.StartToCloseTimeout, "max duration of one activity attempt")
	f.on("activity-timeout", func(c *Config) { c.Activity.StartToCloseTimeout = v.Activity.StartToCloseTimeout })
	fs.DurationVar(&v.Activity.HeartbeatTimeout, "activity-heartbeat-timeout", d.Activity.HeartbeatTimeout, "max gap between activity heartbeats")
	f.on("activity-heartbeat-timeout", func(c *Config) { c.Activity.HeartbeatTimeout = v.Activity.HeartbeatTimeout })
	fs.DurationVar(&v.Activity.InitialInterval, "retry-initial-interval", d.Activity.InitialInterval, "delay before the first retry")
	f.on("retry-initial-interval", func(c *Config) { c.Activity.InitialInterval = v.Activity.InitialInterval })
	fs.DurationVar(&v.Activity.MaximumInterval, "retry-maximum-interval", d.Activity.MaximumInterval, "cap on the retry delay")
	f.on("retry-maximum-interval", func(c *Config) { c.Activity.MaximumInterval = v.Activity.MaximumInterval })
	fs.Float64Var(&v.Activity.BackoffCoefficient, "retry-backoff", d.Activity.BackoffCoefficient, "retry delay multiplier")
	f.on("retry-backoff", func(c *Config) { c.Activity.BackoffCoefficient = v.Activity.BackoffCoefficient })
	fs.Int32Var(&v.Activity.MaximumAttempts, "retry-maximum-attempts", d.Activity.MaximumAttempts, "attempts per step, 0 for unlimited")
	f.on("retry-maximum-attempts", func(c *Config) { c.Activity.MaximumAttempts = v.Activity.MaximumAttempts })

	fs.StringVar(&v.HTTP.Addr, "http-addr", d.HTTP.Addr, "HTTP listen address")
	f.on("http-addr", func(c *Config) { c.HTTP.Addr = v.HTTP.Addr })
	fs.StringVar(&v.Log.Level, "log-level", d.Log.Level, "debug, info, warn or error")
	f.on("log-level", func(c *Config) { c.Log.Level = v.Log.Level })
	fs.StringVar(&v.Log.Format, "log-format", d.Log.Format, "text or json")
	f.on("log-format", func(c *Config) { c.Log.Format = v.Log.Format })

	return f
}

func (f *Flags) on(name string, fn func(*Config)) {
	f.apply[name] = fn
}

// Load reads the configured file and environment, applies the set flags and
// validates the result.
func (f *Flags) Load() (Config, error) {
	cfg, err := Load(f.path)
	if err != nil {
		return Config{}, err
	}
	f.fs.Visit(func(fl *pflag.Flag) {
		if fn, ok := f.apply[fl.Name]; ok {
			fn(&cfg)
		}
	})
	return cfg, cfg.Validate()
}
