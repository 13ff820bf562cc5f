package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"BundleGen/Config"
	"BundleGen/Node"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

var (
	ConfigFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	HTTPAddrFlag = &cli.StringFlag{
		Name:  "http.addr",
		Usage: "Listen address of the API server",
	}
	RPCURLFlag = &cli.StringFlag{
		Name:  "rpc.url",
		Usage: "Node endpoint signed transactions are submitted to (disabled when empty)",
	}
	AccountFlag = &cli.StringFlag{
		Name:  "account",
		Usage: "Account file holding the signing mnemonic",
	}
	KeyFlag = &cli.StringFlag{
		Name:    "key",
		Usage:   "Hex encoded signing key, overrides --account",
		EnvVars: []string{"BUNDLEGEN_KEY"},
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log.level",
		Usage: "Log level (trace, debug, info, warn, error, crit)",
	}
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "bundlegen",
		Usage: "Build, sign and submit set-code transactions over HTTP",
		Flags: []cli.Flag{
			ConfigFileFlag,
			HTTPAddrFlag,
			RPCURLFlag,
			AccountFlag,
			KeyFlag,
			LogLevelFlag,
		},
		Action: run,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers command line flags over the config file over defaults.
func loadConfig(ctx *cli.Context) (Config.Config, error) {
	cfg := Config.Default()
	if path := ctx.String(ConfigFileFlag.Name); path != "" {
		var err error
		if cfg, err = Config.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if ctx.IsSet(HTTPAddrFlag.Name) {
		cfg.HTTPAddr = ctx.String(HTTPAddrFlag.Name)
	}
	if ctx.IsSet(RPCURLFlag.Name) {
		cfg.RPCURL = ctx.String(RPCURLFlag.Name)
	}
	if ctx.IsSet(AccountFlag.Name) {
		cfg.AccountPath = ctx.String(AccountFlag.Name)
	}
	if ctx.IsSet(KeyFlag.Name) {
		cfg.PrivateKey = ctx.String(KeyFlag.Name)
	}
	if ctx.IsSet(LogLevelFlag.Name) {
		cfg.LogLevel = ctx.String(LogLevelFlag.Name)
	}
	return cfg, cfg.Validate()
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "info", "":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	}
	return 0, fmt.Errorf("invalid log level %q", level)
}

func setupLogging(w io.Writer, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false)))
	return nil
}

func run(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	if err := setupLogging(os.Stderr, cfg.LogLevel); err != nil {
		return err
	}
	log.Info("Loaded configuration", "config", cfg.String())

	var node backend
	if cfg.RPCURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx.Context, 10*time.Second)
		client, err := Node.Dial(dialCtx, cfg.RPCURL)
		cancel()
		if err != nil {
			return err
		}
		defer client.Close()
		node = client
	} else {
		log.Warn("No node configured, transaction submission disabled")
	}

	router := newServer(cfg, node).routes()

	log.Info("Starting transaction generator API", "addr", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
