package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kenta2/cryptsetup/internal/channel"
	"github.com/kenta2/cryptsetup/internal/config"
	"github.com/kenta2/cryptsetup/internal/console"
	"github.com/kenta2/cryptsetup/internal/telemetry"
	"github.com/kenta2/cryptsetup/internal/transcript"
	"github.com/kenta2/cryptsetup/internal/triage"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var (
	// Global flags.
	flagChannels  []string
	flagConsole   string
	flagMirror    string
	flagPTY       string
	flagNoRecord  bool
	flagProvider  string
	flagModel     string
	flagBaseURL   string
	flagAPIKey    string
	flagMaxTokens int64
)

var rootCmd = &cobra.Command{
	Use:   "consoledrive",
	Short: "Drive a guest machine through its console sockets",
	Long: `consoledrive connects to the unix-socket channels a virtual machine
exposes (console, serial, monitor) and drives an interactive session over
them: answer the disk-unlock prompt of an encrypted root, log in, run shell
commands with exit-status assertions, power off or hibernate.

Every byte moved in either direction is recorded to a transcript, which can
be replayed (transcript), watched live (watch), or handed to an LLM for
failure analysis (triage).`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringArrayVar(&flagChannels, "channel", nil, "channel endpoint as name=socket-path (repeatable; overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagConsole, "console", "", "name of the channel carrying the root shell (default: console)")
	rootCmd.PersistentFlags().StringVar(&flagMirror, "mirror", "", "mirror raw channel output: stdout, stderr, off, or a file path")
	rootCmd.PersistentFlags().StringVar(&flagPTY, "pty", "", "instead of dialing sockets, spawn this command on a local pty as the console channel")
	rootCmd.PersistentFlags().BoolVar(&flagNoRecord, "no-record", false, "do not write a transcript for this run")
	rootCmd.PersistentFlags().StringVar(&flagProvider, "provider", "", "LLM provider for triage: anthropic, openai")
	rootCmd.PersistentFlags().StringVar(&flagModel, "model", "", "LLM model name for triage")
	rootCmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", "", "override LLM API base URL")
	rootCmd.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "override LLM API key")
	rootCmd.PersistentFlags().Int64Var(&flagMaxTokens, "max-tokens", 0, "max completion tokens for triage (default: 4096)")
}

// loadConfig merges the config file and environment with command-line flags.
// Flags win.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	for _, spec := range flagChannels {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return nil, fmt.Errorf("invalid --channel %q (want name=socket-path)", spec)
		}
		if cfg.Channels == nil {
			cfg.Channels = map[string]string{}
		}
		cfg.Channels[name] = path
	}
	if flagConsole != "" {
		cfg.Console = flagConsole
	}
	if flagMirror != "" {
		cfg.Mirror = flagMirror
	}
	if flagProvider != "" {
		cfg.Provider = flagProvider
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}
	if flagAPIKey != "" {
		cfg.APIKey = flagAPIKey
	}
	if flagMaxTokens != 0 {
		cfg.MaxTokens = flagMaxTokens
	}
	return cfg, nil
}

// driver bundles everything a subcommand needs to run a session: the
// connected channel set wrapped in a Session, the transcript recorder,
// and the telemetry handle.
type driver struct {
	Run     string
	Config  *config.Config
	Session *console.Session
	LogPath string

	recorder *transcript.Recorder
	mirror   io.Closer // only set when mirroring to a file
	tel      *telemetry.Telemetry
	ptyCmd   *exec.Cmd
}

// openDriver loads configuration, connects (or spawns) the channels, and
// builds the session. Callers must Close the returned driver.
func openDriver(cmd *cobra.Command) (*driver, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	telemetry.Version = Version
	tel, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint: cfg.OTELEndpoint,
		Headers:  cfg.OTELHeaders,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
	}

	d := &driver{Config: cfg, Run: uuid.NewString()[:8], tel: tel}

	if !flagNoRecord {
		d.LogPath = cfg.TranscriptPath
		if d.LogPath == "" {
			d.LogPath = transcript.DefaultLogPath(d.Run)
		}
		log, err := transcript.CreateLog(d.LogPath)
		if err != nil {
			d.Close(ctx)
			return nil, fmt.Errorf("transcript: %w", err)
		}
		socket := cfg.EventSocket
		if socket == "" {
			socket = transcript.DefaultSocketPath()
		}
		d.recorder = transcript.NewRecorder(d.Run, log, socket)
		fmt.Fprintf(os.Stderr, "run %s: recording to %s\n", d.Run, d.LogPath)
	}

	mirror, err := d.openMirror(cfg.Mirror)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	channels, err := d.openChannels(cfg)
	if err != nil {
		d.Close(ctx)
		return nil, err
	}

	var metrics *telemetry.Metrics
	if tel != nil {
		metrics = tel.Metrics
	}
	opts := channel.Options{Mirror: mirror, Metrics: metrics}
	if d.recorder != nil {
		opts.Observer = d.recorder
	}
	set, err := channel.NewSet(channels, opts)
	if err != nil {
		for _, c := range channels {
			c.Close()
		}
		d.Close(ctx)
		return nil, err
	}

	consoleName := cfg.Console
	if flagPTY != "" {
		consoleName = "pty"
	}
	sess, err := console.NewSession(set, consoleName)
	if err != nil {
		set.Close()
		d.Close(ctx)
		return nil, err
	}
	d.Session = sess
	return d, nil
}

// openChannels dials the configured endpoints, or spawns --pty on a local
// pseudo-terminal as the sole channel.
func (d *driver) openChannels(cfg *config.Config) ([]*channel.Channel, error) {
	if flagPTY != "" {
		cmd := exec.Command("/bin/sh", "-c", flagPTY)
		c, err := channel.StartPTY("pty", cmd)
		if err != nil {
			return nil, fmt.Errorf("pty: %w", err)
		}
		d.ptyCmd = cmd
		return []*channel.Channel{c}, nil
	}
	eps := cfg.Endpoints()
	if len(eps) == 0 {
		return nil, fmt.Errorf("no channels configured; use --channel name=socket-path or a config file")
	}
	endpoints := make([]channel.Endpoint, len(eps))
	for i, ep := range eps {
		endpoints[i] = channel.Endpoint{Name: ep.Name, Path: ep.Path}
	}
	return channel.Dial(endpoints, channel.DialOptions{
		Deadline: cfg.ConnectDeadlineDuration,
		Interval: cfg.ConnectIntervalDuration,
	})
}

func (d *driver) openMirror(target string) (io.Writer, error) {
	switch target {
	case "", "off":
		return nil, nil
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("mirror: %w", err)
		}
		d.mirror = f
		return f, nil
	}
}

// Secrets returns the configured passphrase table, or nil when none is set.
func (d *driver) Secrets() console.SecretSource {
	if len(d.Config.Passphrases) == 0 {
		return nil
	}
	return console.Table(d.Config.Passphrases)
}

func (d *driver) Close(ctx context.Context) {
	if d.Session != nil {
		d.Session.Set().Close()
	}
	if d.ptyCmd != nil && d.ptyCmd.Process != nil {
		d.ptyCmd.Process.Kill()
		d.ptyCmd.Wait()
	}
	if d.recorder != nil {
		if err := d.recorder.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: transcript %s: %v\n", d.LogPath, err)
		}
	}
	if d.mirror != nil {
		d.mirror.Close()
	}
	if d.tel != nil {
		d.tel.Shutdown(ctx)
	}
}

// getTriager returns the configured LLM triager.
func getTriager(cfg *config.Config) (triage.Triager, error) {
	switch cfg.Provider {
	case "anthropic":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no API key found. Set CONSOLEDRIVE_API_KEY or ANTHROPIC_API_KEY")
		}
		return triage.NewAnthropicTriager(triage.AnthropicConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    apiKey,
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
		}), nil
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no API key found. Set CONSOLEDRIVE_API_KEY or OPENAI_API_KEY")
		}
		model := cfg.Model
		if model == "" || strings.HasPrefix(model, "claude") {
			model = "gpt-4o-mini"
		}
		return triage.NewOpenAITriager(triage.OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    apiKey,
			Model:     model,
			MaxTokens: cfg.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (supported: anthropic, openai)", cfg.Provider)
	}
}
