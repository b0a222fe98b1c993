// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command gameserver is a runnable demonstration of gameconn: it listens on
// one TCP port, throttles repeated failed logins per client IP, and echoes
// every frame it receives once login succeeds. It is glue, not a reference
// protocol implementation.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"code.hybscloud.com/gameconn"
	"code.hybscloud.com/gameconn/internal/dispatcher"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var development bool

	cmd := &cobra.Command{
		Use:   "gameserver",
		Short: "Run a gameconn-backed TCP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, development)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().BoolVar(&development, "development", false, "use a human-readable development logger")
	return cmd
}

func run(configPath string, development bool) error {
	log, err := newLogger(development)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	fc, err := loadFileConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ln, err := net.Listen("tcp", fc.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", fc.Listen, err)
	}
	defer ln.Close()

	d := dispatcher.New(256)
	defer d.Stop()

	manager := gameconn.NewConnectionManager(fc.toGameconnConfig(), d, log)
	defer manager.Stop()

	port := newLoginGatedPort(manager, log)
	listener := gameconn.NewListener(ln, manager, port, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", ln.Addr().String()))
		return listener.Serve(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		drainAndClose(manager, log)
		return nil
	})
	return g.Wait()
}

// drainAndClose gives connections already in flight a chance to finish on
// their own before forcing every remaining one closed.
func drainAndClose(manager *gameconn.ConnectionManager, log *zap.Logger) {
	const drainTimeout = 5 * time.Second
	deadline := time.Now().Add(drainTimeout)
	for manager.Count() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if n := manager.Count(); n > 0 {
		log.Warn("forcing shutdown with connections still open", zap.Int("count", n))
	}
	manager.CloseAll()
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
