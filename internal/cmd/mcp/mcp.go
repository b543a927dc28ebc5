// Package mcp exposes the memory service to tool-calling agents over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/chirino/student-memory-service/internal/cmd/common"
	"github.com/chirino/student-memory-service/internal/config"
	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/chirino/student-memory-service/internal/model"
	registrystore "github.com/chirino/student-memory-service/internal/registry/store"
	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"
)

const serverVersion = "1.0.0"

// Command returns the mcp sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve student memory tools over the Model Context Protocol (stdio)",
		Flags: common.Join(
			common.DatastoreFlags(&cfg),
			common.CacheFlags(&cfg),
			common.EncryptionFlags(&cfg),
			common.ContextFlags(&cfg),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			// stdout carries the protocol.
			log.SetOutput(os.Stderr)
			ctx = config.WithContext(ctx, &cfg)
			rt, err := common.Open(ctx, &cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			stdio := server.NewStdioServer(NewServer(rt.Service))
			return stdio.Listen(ctx, os.Stdin, os.Stdout)
		},
	}
}

// NewServer builds an MCP server exposing the memory tools backed by svc.
func NewServer(svc *memory.Service) *server.MCPServer {
	s := server.NewMCPServer("student-memory", serverVersion, server.WithToolCapabilities(false))
	t := &tools{svc: svc}

	s.AddTool(mcpgo.NewTool("get_student_memory_context",
		mcpgo.WithDescription("Returns what the tutor remembers about a student, formatted for a system prompt."),
		mcpgo.WithString("student_id", mcpgo.Required(), mcpgo.Description("Student identifier")),
		mcpgo.WithString("topic", mcpgo.Description("Optional topic of the current question, used to rank facts")),
	), t.getMemoryContext)

	s.AddTool(mcpgo.NewTool("record_student_fact",
		mcpgo.WithDescription("Remembers a new fact about a student."),
		mcpgo.WithString("student_id", mcpgo.Required(), mcpgo.Description("Student identifier")),
		mcpgo.WithString("fact_type", mcpgo.Required(),
			mcpgo.Description("Kind of fact"),
			mcpgo.Enum(factTypeNames()...),
		),
		mcpgo.WithString("fact_text", mcpgo.Required(), mcpgo.Description("The fact, in one sentence")),
		mcpgo.WithString("source", mcpgo.Description("Who stated the fact: student, parent or inferred (default)")),
	), t.recordFact)

	s.AddTool(mcpgo.NewTool("deactivate_student_fact",
		mcpgo.WithDescription("Stops a fact from being used in future memory contexts."),
		mcpgo.WithString("fact_id", mcpgo.Required(), mcpgo.Description("Fact UUID")),
	), t.deactivateFact)

	return s
}

func factTypeNames() []string {
	names := make([]string, len(model.FactTypes))
	for i, ft := range model.FactTypes {
		names[i] = string(ft)
	}
	return names
}

type tools struct {
	svc *memory.Service
}

func (t *tools) getMemoryContext(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	studentID, err := req.RequireString("student_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	mc, err := t.svc.GetStudentMemoryContext(ctx, studentID, req.GetString("topic", ""))
	if err != nil {
		return toolError(err)
	}
	return mcpgo.NewToolResultText(t.svc.FormatMemoryForPrompt(mc, nil)), nil
}

func (t *tools) recordFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	studentID, err := req.RequireString("student_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	factType, err := req.RequireString("fact_type")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	factText, err := req.RequireString("fact_text")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	fact, err := t.svc.RecordFact(ctx, model.RecordFactRequest{
		StudentID: studentID,
		FactType:  model.FactType(factType),
		FactText:  factText,
		Source:    model.FactSource(req.GetString("source", "")),
	})
	if err != nil {
		return toolError(err)
	}
	body, err := json.Marshal(fact)
	if err != nil {
		return nil, err
	}
	return mcpgo.NewToolResultText(string(body)), nil
}

func (t *tools) deactivateFact(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	raw, err := req.RequireString("fact_id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	factID, err := uuid.Parse(raw)
	if err != nil {
		return mcpgo.NewToolResultError("fact_id must be a UUID"), nil
	}
	if err := t.svc.DeactivateFact(ctx, factID); err != nil {
		return toolError(err)
	}
	return mcpgo.NewToolResultText(fmt.Sprintf("fact %s deactivated", factID)), nil
}

// toolError reports caller mistakes as tool results; anything else fails the call.
func toolError(err error) (*mcpgo.CallToolResult, error) {
	var notFound *registrystore.NotFoundError
	var validation *registrystore.ValidationError
	if errors.As(err, &notFound) || errors.As(err, &validation) {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	log.Error("MCP tool failed", "err", err)
	return nil, err
}
