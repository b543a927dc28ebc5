// Package inspect prints what the tutor would remember about one student.
package inspect

import (
	"context"
	"fmt"
	"io"

	"github.com/chirino/student-memory-service/internal/cmd/common"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/urfave/cli/v3"
)

// FactPreviewLength is how much of each fact is shown in the listing.
const FactPreviewLength = 60

// Command returns the inspect sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	var topic string
	var budget int
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show a student's active facts and the prompt fragment built from them",
		ArgsUsage: "<student-id>",
		Flags: common.Join(
			common.DatastoreFlags(&cfg),
			common.EncryptionFlags(&cfg),
			common.ContextFlags(&cfg),
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "topic",
					Usage:       "Topic hint used to rank facts",
					Destination: &topic,
				},
				&cli.IntFlag{
					Name:        "budget",
					Usage:       "Character budget of the prompt fragment; overrides --context-budget",
					Destination: &budget,
				},
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			studentID := cmd.Args().First()
			if studentID == "" {
				return fmt.Errorf("student id is required")
			}
			if cmd.IsSet("budget") {
				cfg.ContextBudget = budget
			}
			ctx = config.WithContext(ctx, &cfg)
			rt, err := common.Open(ctx, &cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			return run(ctx, cmd.Root().Writer, rt, studentID, topic)
		},
	}
}

func run(ctx context.Context, out io.Writer, rt *common.Runtime, studentID, topic string) error {
	facts, err := rt.Service.ListFacts(ctx, studentID, false)
	if err != nil {
		return err
	}
	mc, err := rt.Service.GetStudentMemoryContext(ctx, studentID, topic)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Active facts for %s: %d\n", studentID, len(facts))
	for _, f := range facts {
		fmt.Fprintf(out, "  %s  %-13s %-8s %s\n", f.ID, f.FactType, f.Source, memory.Abbreviate(f.FactText, FactPreviewLength))
	}
	fmt.Fprintf(out, "\nSelected for context: %d", len(mc.Facts))
	if topic != "" {
		fmt.Fprintf(out, " (topic %q)", topic)
	}
	if mc.Degraded {
		fmt.Fprint(out, " [degraded]")
	}
	fmt.Fprintln(out)

	r := rt.Service.Formatter().Render(*mc)
	fmt.Fprintf(out, "\n%s\n", r.Text)
	if r.FactsDropped > 0 {
		fmt.Fprintf(out, "\n(%d facts dropped by the %d character budget)\n", r.FactsDropped, rt.Service.Formatter().Budget)
	}
	return nil
}
