package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"

	"github.com/Tyrowin/roomrelay/internal/server"
)

func main() {
	// Local .env is optional
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	logger := server.NewLogger(config.Env)

	relay := server.New(*config, logger)
	relay.StartHub()

	httpServer := server.CreateServer(config.Port, relay.SetupRoutes())

	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Error("server.crash", "err", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				return server.ShutdownServer(ctx, httpServer, logger)
			},
			"hub": func(_ context.Context) error {
				return relay.Hub().Shutdown(config.ShutdownTimeout)
			},
		},
	)

	exitCode := <-wait
	logger.Info("server.exit", "code", exitCode)
	os.Exit(exitCode)
}
