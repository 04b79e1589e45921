package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shadowshop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "checkout", cfg.Temporal.TaskQueue)
	assert.Equal(t, "checkout.session.completed", cfg.RabbitMQ.Queue)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
temporal:
  host_port: temporal:7233
activity:
  start_to_close_timeout: 30s
  initial_interval: 500ms
  maximum_interval: 1m
  backoff_coefficient: 1.5
  maximum_attempts: 3
fulfillment:
  deterministic_ids: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "temporal:7233", cfg.Temporal.HostPort)
	assert.Equal(t, 30*time.Second, cfg.Activity.StartToCloseTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Activity.InitialInterval)
	assert.Equal(t, time.Minute, cfg.Activity.MaximumInterval)
	assert.Equal(t, 1.5, cfg.Activity.BackoffCoefficient)
	assert.Equal(t, int32(3), cfg.Activity.MaximumAttempts)
	assert.True(t, cfg.Fulfillment.DeterministicIDs)
	// untouched keys keep their defaults
	assert.Equal(t, "default", cfg.Temporal.Namespace)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "temporal:\n  host_port: from-file:7233\n")
	t.Setenv("TEMPORAL_ADDRESS", "from-env:7233")
	t.Setenv("REDIS_DB", "4")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env:7233", cfg.Temporal.HostPort)
	assert.Equal(t, 4, cfg.Redis.DB)
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("REDIS_DB", "four")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate_RetryPolicy(t *testing.T) {
	cfg := Default()
	cfg.Activity.InitialInterval = 10 * time.Second
	cfg.Activity.MaximumInterval = time.Second
	cfg.Activity.BackoffCoefficient = 0.5
	cfg.Database.Driver = "mysql"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum_interval")
	assert.Contains(t, err.Error(), "backoff_coefficient")
	assert.Contains(t, err.Error(), "database.driver")
}

func TestValidate_HeartbeatTimeout(t *testing.T) {
	cfg := Default()
	cfg.Activity.HeartbeatTimeout = 10 * time.Millisecond
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat_timeout")

	cfg.Activity.HeartbeatTimeout = -time.Second
	assert.Error(t, cfg.Validate())

	cfg.Activity.HeartbeatTimeout = 0
	assert.NoError(t, cfg.Validate(), "0 disables heartbeat timeouts")

	cfg.Activity.HeartbeatTimeout = 500 * time.Millisecond
	assert.NoError(t, cfg.Validate(), "sub-second timeouts heartbeat faster")
}

func TestFlags_OnlySetFlagsOverride(t *testing.T) {
	path := writeConfig(t, "activity:\n  maximum_attempts: 7\n  start_to_close_timeout: 20s\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{
		"--config", path,
		"--retry-initial-interval", "250ms",
		"--retry-backoff", "3",
	}))

	cfg, err := flags.Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Activity.InitialInterval)
	assert.Equal(t, 3.0, cfg.Activity.BackoffCoefficient)
	assert.Equal(t, int32(7), cfg.Activity.MaximumAttempts, "file value must survive an unset flag")
	assert.Equal(t, 20*time.Second, cfg.Activity.StartToCloseTimeout)
}

func TestFlags_InvalidResult(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags := BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"--retry-maximum-attempts", "-1"}))

	_, err := flags.Load()
	assert.Error(t, err)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 168*time.Hour, cfg.Fulfillment.ConfirmationTTL)
	assert.Equal(t, "json", cfg.Log.Format)
}
