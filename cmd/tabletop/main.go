// Command tabletop runs a life-total table in the terminal, optionally
// synchronized with other devices through the session server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"lifesync/cardcatalog"
	"lifesync/config"
	"lifesync/localstore"
	"lifesync/services"
	"lifesync/store"
	"lifesync/table"
	"lifesync/utils"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger().Level(zerolog.WarnLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level > zerolog.InfoLevel {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	local, err := localstore.Open(cfg.LocalDBPath, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.LocalDBPath).Msg("failed to open local storage")
	}
	defer local.Close()

	cardCache, err := cardcatalog.NewGormCache(local.DB)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare card cache")
	}
	catalog := cardcatalog.NewClient(cfg.CardCatalogURL, cardCache, logger)
	catalog.HTTP = utils.HTTPClient

	remote := store.NewHTTPStore(cfg.ServerURL, cfg.ServiceToken, logger)
	tb := table.New(remote, local, table.Config{
		CoalesceWindow: cfg.CoalesceWindow,
		PushDebounce:   cfg.PushDebounce,
		HoldInterval:   cfg.HoldInterval,
		Logger:         logger,
	})

	sh := newShell(tb, catalog, os.Stdout)
	sh.remote = remote
	if cfg.AuthServiceURL != "" {
		sh.auth = services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.ServiceToken, utils.HTTPClient, logger)
	}

	if tb.Restore(ctx) {
		fmt.Fprintln(sh.out, "Restored your last game.")
	} else {
		fmt.Fprintln(sh.out, "Welcome to LifeSync. Type 'help' for commands.")
	}
	sh.show()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

loop:
	for {
		fmt.Fprint(sh.out, "> ")
		select {
		case <-ctx.Done():
			break loop
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			quit, err := sh.exec(ctx, line)
			if err != nil {
				fmt.Fprintf(sh.out, "error: %v\n", err)
			}
			if quit {
				break loop
			}
		}
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	tb.Close(closeCtx)
}
