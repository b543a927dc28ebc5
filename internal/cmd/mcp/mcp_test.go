package mcp

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/chirino/student-memory-service/internal/memory"
	"github.com/chirino/student-memory-service/internal/model"
	"github.com/chirino/student-memory-service/internal/plugin/store/sqlite"
	"github.com/google/uuid"
	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTools(t *testing.T) *tools {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(ctx, "file:"+filepath.Join(t.TempDir(), "mcp.db")+"?_foreign_keys=on", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, sqlite.AutoMigrate(ctx, s.DB()))
	_, err = s.UpsertStudent(ctx, model.StudentProfile{StudentID: "s1", DisplayName: "Lena"})
	require.NoError(t, err)
	return &tools{svc: memory.NewService(s, memory.Options{Budget: 2000})}
}

func call(args map[string]any) mcpgo.CallToolRequest {
	var req mcpgo.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, res *mcpgo.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcpgo.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestRecordAndRecallFact(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	res, err := tl.recordFact(ctx, call(map[string]any{
		"student_id": "s1",
		"fact_type":  "accommodation",
		"fact_text":  "Prefers written steps over spoken hints",
		"source":     "parent",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError, text(t, res))
	var fact model.MemoryFact
	require.NoError(t, json.Unmarshal([]byte(text(t, res)), &fact))
	assert.Equal(t, model.SourceParent, fact.Source)

	res, err = tl.getMemoryContext(ctx, call(map[string]any{"student_id": "s1"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "Student: Lena\n- [accommodation] Prefers written steps over spoken hints", text(t, res))

	res, err = tl.deactivateFact(ctx, call(map[string]any{"fact_id": fact.ID.String()}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	res, err = tl.getMemoryContext(ctx, call(map[string]any{"student_id": "s1"}))
	require.NoError(t, err)
	assert.Equal(t, "Student: Lena", text(t, res))
}

func TestToolErrors(t *testing.T) {
	tl := newTools(t)
	ctx := context.Background()

	res, err := tl.getMemoryContext(ctx, call(map[string]any{"student_id": "ghost"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tl.getMemoryContext(ctx, call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tl.recordFact(ctx, call(map[string]any{"student_id": "s1", "fact_type": "hobby", "fact_text": "chess"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, text(t, res), "factType")

	res, err = tl.deactivateFact(ctx, call(map[string]any{"fact_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = tl.deactivateFact(ctx, call(map[string]any{"fact_id": uuid.NewString()}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestNewServerBuilds(t *testing.T) {
	tl := newTools(t)
	require.NotNil(t, NewServer(tl.svc))
	assert.Len(t, factTypeNames(), len(model.FactTypes))
}
