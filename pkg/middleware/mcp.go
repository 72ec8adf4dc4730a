// Package middleware provides MCP protocol-level middleware.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const methodToolsCall = "tools/call"

// Tool call outcomes.
const (
	outcomeOK        = "ok"
	outcomeToolError = "tool_error"
	outcomeError     = "error"
)

// ToolMetrics records MCP tool call counts and latencies.
type ToolMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewToolMetrics registers the tool call metrics with reg.
func NewToolMetrics(reg prometheus.Registerer) *ToolMetrics {
	f := promauto.With(reg)
	return &ToolMetrics{
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "element_config_mcp_tool_calls_total",
			Help: "MCP tool calls by tool and outcome.",
		}, []string{"tool", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "element_config_mcp_tool_call_duration_seconds",
			Help:    "MCP tool call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),
	}
}

// MCPToolCallMiddleware logs every tools/call request and records it in m.
// A nil m only logs.
func MCPToolCallMiddleware(m *ToolMetrics) mcp.Middleware {
	return func(next mcp.MethodHandler) mcp.MethodHandler {
		return func(ctx context.Context, method string, req mcp.Request) (mcp.Result, error) {
			if method != methodToolsCall {
				return next(ctx, method, req)
			}

			toolName, err := extractToolName(req)
			if err != nil {
				return createErrorResult("invalid request: " + err.Error()), nil
			}

			start := time.Now()
			result, err := next(ctx, method, req)
			elapsed := time.Since(start)

			outcome := callOutcome(result, err)
			slog.Debug("tool call",
				"tool", toolName,
				"outcome", outcome,
				"duration_ms", elapsed.Milliseconds())
			if err != nil {
				slog.Warn("tool call failed", "tool", toolName, "error", err)
			}
			if m != nil {
				m.calls.WithLabelValues(toolName, outcome).Inc()
				m.duration.WithLabelValues(toolName).Observe(elapsed.Seconds())
			}
			return result, err
		}
	}
}

func callOutcome(result mcp.Result, err error) string {
	if err != nil {
		return outcomeError
	}
	if r, ok := result.(*mcp.CallToolResult); ok && r != nil && r.IsError {
		return outcomeToolError
	}
	return outcomeOK
}

// extractToolName extracts the tool name from a tools/call request.
func extractToolName(req mcp.Request) (string, error) {
	if req == nil {
		return "", errors.New("missing request")
	}
	callParams, ok := req.GetParams().(*mcp.CallToolParamsRaw)
	if !ok {
		return "", errors.New("unexpected params type")
	}
	// The type assertion succeeds for a typed nil pointer.
	if callParams == nil {
		return "", errors.New("missing params")
	}
	if callParams.Name == "" {
		return "", errors.New("missing tool name")
	}
	return callParams.Name, nil
}

func createErrorResult(errMsg string) mcp.Result {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: errMsg},
		},
	}
}
