package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/cmd/inspect"
	"github.com/chirino/student-memory-service/internal/cmd/mcp"
	"github.com/chirino/student-memory-service/internal/cmd/migrate"
	"github.com/chirino/student-memory-service/internal/cmd/serve"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "student-memory-service",
		Usage: "Remembers facts about students and turns them into tutor prompt context",
		Commands: []*cli.Command{
			serve.Command(),
			migrate.Command(),
			inspect.Command(),
			mcp.Command(),
		},
	}
	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
