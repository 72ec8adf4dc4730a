// Package tools exposes the configuration store as MCP tools.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-element-config/pkg/configstore"
	"github.com/txn2/mcp-element-config/pkg/element"
)

// Tool names.
const (
	ToolGetConfig       = "config_get"
	ToolGetActiveConfig = "config_get_active"
	ToolGetRevision     = "config_get_revision"
	ToolHistory         = "config_history"
	ToolFindConfigs     = "config_find"
	ToolStoreConfig     = "config_store"
	ToolActivateConfig  = "config_activate"
	ToolRemoveConfig    = "config_remove"
	ToolRemoveRevisions = "config_remove_revisions"
	ToolRestoreConfig   = "config_restore"
	ToolSetComment      = "config_set_comment"
	ToolPurgeOutdated   = "config_purge"
)

const readOnlySuffix = " Read-only."

// Toolkit registers configuration store tools on an MCP server.
type Toolkit struct {
	service *configstore.Service
}

// NewToolkit creates a toolkit over service.
func NewToolkit(service *configstore.Service) *Toolkit {
	return &Toolkit{service: service}
}

// Tools returns the names of the tools provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{
		ToolGetConfig, ToolGetActiveConfig, ToolGetRevision, ToolHistory, ToolFindConfigs,
		ToolStoreConfig, ToolActivateConfig, ToolRemoveConfig, ToolRemoveRevisions,
		ToolRestoreConfig, ToolSetComment, ToolPurgeOutdated,
	}
}

type seriesInput struct {
	Element string `json:"element" jsonschema:"Element id (UUID) or name"`
	Series  string `json:"series" jsonschema:"Configuration series name, e.g. startup-config"`
}

type revisionInput struct {
	Element    string `json:"element" jsonschema:"Element id (UUID) or name"`
	RevisionID string `json:"revision_id" jsonschema:"Revision id (UUID)"`
}

type historyInput struct {
	Element        string `json:"element" jsonschema:"Element id (UUID) or name"`
	Series         string `json:"series" jsonschema:"Configuration series name, e.g. startup-config"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"Include the content of every revision"`
}

type findInput struct {
	Element string `json:"element" jsonschema:"Element id (UUID) or name"`
	Filter  string `json:"filter,omitempty" jsonschema:"Regular expression matched against series names; empty matches all"`
}

type storeInput struct {
	Element     string `json:"element" jsonschema:"Element id (UUID) or name"`
	Series      string `json:"series" jsonschema:"Configuration series name, e.g. startup-config"`
	State       string `json:"state" jsonschema:"Target state: CANDIDATE or ACTIVE"`
	Content     string `json:"content" jsonschema:"Raw configuration content"`
	ContentType string `json:"content_type,omitempty" jsonschema:"Content type, default text/plain"`
	Comment     string `json:"comment,omitempty" jsonschema:"Free-text comment"`
}

type restoreInput struct {
	Element    string `json:"element" jsonschema:"Element id (UUID) or name"`
	RevisionID string `json:"revision_id" jsonschema:"Revision id (UUID) whose content is restored"`
	Comment    string `json:"comment,omitempty" jsonschema:"Comment of the restored candidate"`
}

type commentInput struct {
	Element    string `json:"element" jsonschema:"Element id (UUID) or name"`
	RevisionID string `json:"revision_id" jsonschema:"Revision id (UUID)"`
	Comment    string `json:"comment" jsonschema:"New comment"`
}

type countOutput struct {
	Count int `json:"count"`
}

// RegisterTools registers all tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	readOnly := &mcp.ToolAnnotations{ReadOnlyHint: true}

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolGetConfig,
		Description: "Returns the most recently modified revision of a configuration series, with content." + readOnlySuffix,
		Annotations: readOnly,
	}, t.handleGetConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolGetActiveConfig,
		Description: "Returns the ACTIVE (deployed) revision of a configuration series, with content." + readOnlySuffix,
		Annotations: readOnly,
	}, t.handleGetActiveConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolGetRevision,
		Description: "Returns a configuration revision of an element by id, with content." + readOnlySuffix,
		Annotations: readOnly,
	}, t.handleGetRevision)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolHistory,
		Description: "Lists every revision of a configuration series, most recent first." + readOnlySuffix,
		Annotations: readOnly,
	}, t.handleHistory)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolFindConfigs,
		Description: "Lists the latest revision of every configuration series of an element whose name matches a regular expression." + readOnlySuffix,
		Annotations: readOnly,
	}, t.handleFindConfigs)

	mcp.AddTool(s, &mcp.Tool{
		Name: ToolStoreConfig,
		Description: "Stores configuration content as CANDIDATE or ACTIVE. Storing content identical to the live revision " +
			"in the target state updates it in place; storing ACTIVE content identical to the CANDIDATE activates the candidate.",
	}, t.handleStoreConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolActivateConfig,
		Description: "Activates a CANDIDATE revision. The previous ACTIVE revision becomes SUPERSEDED.",
	}, t.handleActivateConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolRemoveConfig,
		Description: "Removes a revision that is not ACTIVE.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, t.handleRemoveConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolRemoveRevisions,
		Description: "Removes every revision of a series except the ACTIVE one and returns how many were removed.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true)},
	}, t.handleRemoveRevisions)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolRestoreConfig,
		Description: "Copies the content of a revision into a new CANDIDATE revision of its series.",
	}, t.handleRestoreConfig)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolSetComment,
		Description: "Replaces the comment of a revision in any state.",
		Annotations: &mcp.ToolAnnotations{IdempotentHint: true},
	}, t.handleSetComment)
	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolPurgeOutdated,
		Description: "Removes revisions beyond the configured history limit of the series. The ACTIVE revision is never removed.",
		Annotations: &mcp.ToolAnnotations{DestructiveHint: boolPtr(true), IdempotentHint: true},
	}, t.handlePurge)
}

func boolPtr(b bool) *bool { return &b }

func (t *Toolkit) handleGetConfig(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	rev, err := t.service.GetConfig(ctx, ref, name)
	return respond(configstore.NewView(rev, true), err)
}

func (t *Toolkit) handleGetActiveConfig(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	rev, err := t.service.GetActiveConfig(ctx, ref, name)
	return respond(configstore.NewView(rev, true), err)
}

func (t *Toolkit) handleGetRevision(ctx context.Context, _ *mcp.CallToolRequest, in revisionInput) (*mcp.CallToolResult, any, error) {
	ref, id, err := parseRevision(in.Element, in.RevisionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	rev, err := t.service.GetConfigByID(ctx, ref, id)
	return respond(configstore.NewView(rev, true), err)
}

func (t *Toolkit) handleHistory(ctx context.Context, _ *mcp.CallToolRequest, in historyInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	revs, err := t.service.GetConfigRevisions(ctx, ref, name)
	return respond(configstore.NewViews(revs, in.IncludeContent), err)
}

func (t *Toolkit) handleFindConfigs(ctx context.Context, _ *mcp.CallToolRequest, in findInput) (*mcp.CallToolResult, any, error) {
	ref, err := element.ParseRef(in.Element)
	if err != nil {
		return errorResult(err), nil, nil
	}
	revs, err := t.service.FindConfigs(ctx, ref, in.Filter)
	return respond(configstore.NewViews(revs, false), err)
}

func (t *Toolkit) handleStoreConfig(ctx context.Context, _ *mcp.CallToolRequest, in storeInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	state, err := configstore.ParseState(in.State)
	if err != nil {
		return errorResult(err), nil, nil
	}
	res, err := t.service.StoreConfig(ctx, ref, configstore.StoreRequest{
		Series:      name,
		ContentType: in.ContentType,
		State:       state,
		Content:     []byte(in.Content),
		Comment:     in.Comment,
	})
	return respond(configstore.NewStoreResultView(res), err)
}

func (t *Toolkit) handleActivateConfig(ctx context.Context, _ *mcp.CallToolRequest, in revisionInput) (*mcp.CallToolResult, any, error) {
	ref, id, err := parseRevision(in.Element, in.RevisionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	rev, err := t.service.ActivateConfig(ctx, ref, id)
	return respond(configstore.NewView(rev, false), err)
}

func (t *Toolkit) handleRemoveConfig(ctx context.Context, _ *mcp.CallToolRequest, in revisionInput) (*mcp.CallToolResult, any, error) {
	ref, id, err := parseRevision(in.Element, in.RevisionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	err = t.service.RemoveConfig(ctx, ref, id)
	return respond(map[string]string{"removed": id.String()}, err)
}

func (t *Toolkit) handleRemoveRevisions(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	n, err := t.service.RemoveConfigRevisions(ctx, ref, name)
	return respond(countOutput{Count: n}, err)
}

func (t *Toolkit) handleRestoreConfig(ctx context.Context, _ *mcp.CallToolRequest, in restoreInput) (*mcp.CallToolResult, any, error) {
	ref, id, err := parseRevision(in.Element, in.RevisionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	res, err := t.service.RestoreConfig(ctx, ref, id, in.Comment)
	return respond(configstore.NewStoreResultView(res), err)
}

func (t *Toolkit) handleSetComment(ctx context.Context, _ *mcp.CallToolRequest, in commentInput) (*mcp.CallToolResult, any, error) {
	ref, id, err := parseRevision(in.Element, in.RevisionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	rev, err := t.service.SetComment(ctx, ref, id, in.Comment)
	return respond(configstore.NewView(rev, false), err)
}

func (t *Toolkit) handlePurge(ctx context.Context, _ *mcp.CallToolRequest, in seriesInput) (*mcp.CallToolResult, any, error) {
	ref, name, err := parseSeries(in.Element, in.Series)
	if err != nil {
		return errorResult(err), nil, nil
	}
	n, err := t.service.PurgeOutdatedConfigs(ctx, ref, name)
	return respond(countOutput{Count: n}, err)
}

func parseSeries(elem, series string) (element.Ref, configstore.SeriesName, error) {
	ref, err := element.ParseRef(elem)
	if err != nil {
		return element.Ref{}, "", fmt.Errorf("%w: %v", configstore.ErrInvalidArgument, err)
	}
	name, err := configstore.ParseSeriesName(series)
	if err != nil {
		return element.Ref{}, "", err
	}
	return ref, name, nil
}

func parseRevision(elem, revision string) (element.Ref, configstore.RevisionID, error) {
	ref, err := element.ParseRef(elem)
	if err != nil {
		return element.Ref{}, "", fmt.Errorf("%w: %v", configstore.ErrInvalidArgument, err)
	}
	id, err := configstore.ParseRevisionID(revision)
	if err != nil {
		return element.Ref{}, "", err
	}
	return ref, id, nil
}

// toolError is the JSON body of a failed tool call.
type toolError struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respond renders v, or err as a tool error.
func respond(v any, err error) (*mcp.CallToolResult, any, error) {
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil //nolint:nilerr // MCP protocol: tool errors are returned in CallToolResult.IsError
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult creates an error CallToolResult.
func errorResult(err error) *mcp.CallToolResult {
	data, _ := json.Marshal(toolError{Error: err.Error(), Retryable: configstore.IsRetryable(err)})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}
