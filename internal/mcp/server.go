package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/academykb/internal/async"
	"github.com/Aman-CERP/academykb/internal/config"
	"github.com/Aman-CERP/academykb/internal/embed"
	"github.com/Aman-CERP/academykb/internal/index"
	"github.com/Aman-CERP/academykb/internal/metadata"
	"github.com/Aman-CERP/academykb/internal/query"
	"github.com/Aman-CERP/academykb/internal/store"
	"github.com/Aman-CERP/academykb/pkg/version"
)

// recentMissLimit bounds the misses reported by index_status.
const recentMissLimit = 5

// Dependencies contains the collaborators a Server drives.
type Dependencies struct {
	Query     *query.Service
	Indexer   *index.Indexer
	Reindexer *async.Reindexer
	Config    *config.Config

	// Tracker backs resources and run history. Optional.
	Tracker store.Tracker

	// Extractor renders documents for resource reads. Optional; without it
	// no resources are registered.
	Extractor index.Extractor

	// Embedder is reported by index_status. Optional.
	Embedder embed.Embedder

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server is the MCP server for academykb. It answers questions from the
// knowledge base and lets clients trigger indexing.
type Server struct {
	mcp       *mcp.Server
	query     *query.Service
	indexer   *index.Indexer
	reindexer *async.Reindexer
	tracker   store.Tracker
	extractor index.Extractor
	embedder  embed.Embedder
	config    *config.Config
	logger    *slog.Logger

	// resources holds the doc ids registered as MCP resources.
	resources map[string]string

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var toolDescriptions = []ToolInfo{
	{
		Name:        ToolQuery,
		Description: "Answer a photography question from the academy knowledge base. Returns matching lesson chunks with citations, or suggestions when nothing is similar enough.",
	},
	{
		Name:        ToolReindex,
		Description: "Start a full rebuild of the knowledge base in the background. Returns already_running if a rebuild is in progress.",
	},
	{
		Name:        ToolIndexFile,
		Description: "Index or re-index one file under the raw content root and report what happened to it.",
	},
	{
		Name:        ToolDeleteDocument,
		Description: "Remove a document and all of its chunks by document id or by path.",
	},
	{
		Name:        ToolIndexStatus,
		Description: "Report collection size, the active embedder, background rebuild progress, the last index run and recent unanswered questions.",
	},
}

// NewServer creates a new MCP server.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Query == nil {
		return nil, errors.New("query service is required")
	}
	if deps.Indexer == nil {
		return nil, errors.New("indexer is required")
	}
	if deps.Reindexer == nil {
		return nil, errors.New("reindexer is required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = deps.Indexer.Config()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		query:     deps.Query,
		indexer:   deps.Indexer,
		reindexer: deps.Reindexer,
		tracker:   deps.Tracker,
		extractor: deps.Extractor,
		embedder:  deps.Embedder,
		config:    cfg,
		logger:    logger,
		resources: make(map[string]string),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "academykb",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)
	s.registerTools()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return "academykb", version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	out := make([]ToolInfo, len(toolDescriptions))
	copy(out, toolDescriptions)
	return out
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolQuery:
		var in QueryInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleQuery(ctx, in)
	case ToolReindex:
		return s.handleReindex(ctx)
	case ToolIndexFile:
		var in IndexFileInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleIndexFile(ctx, in)
	case ToolDeleteDocument:
		var in DeleteDocumentInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		return s.handleDeleteDocument(ctx, in)
	case ToolIndexStatus:
		return s.handleIndexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, dst any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return NewInvalidParamsError(err.Error())
	}
	return nil
}

func (s *Server) handleQuery(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	if strings.TrimSpace(in.Question) == "" {
		return nil, NewInvalidParamsError("question parameter is required")
	}
	if in.TopK < 0 {
		return nil, NewInvalidParamsError("top_k must not be negative")
	}

	req := query.Request{Question: in.Question, TopK: in.TopK, Strict: in.Strict}
	if in.Source != "" {
		req.Filter = store.Filter{metadata.KeySource: in.Source}
	}
	resp, err := s.query.Query(ctx, req)
	if err != nil {
		return nil, MapError(err)
	}
	return ToQueryOutput(resp), nil
}

func (s *Server) handleReindex(ctx context.Context) (*ReindexOutput, error) {
	status, err := s.reindexer.Start(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &ReindexOutput{Status: string(status)}
	switch status {
	case async.StartStarted:
		out.Message = "Rebuild started. Poll index_status for progress."
	case async.StartAlreadyRunning:
		out.Message = "A rebuild is already running."
	}
	s.logger.Info("mcp_reindex", slog.String("status", out.Status))
	return out, nil
}

func (s *Server) handleIndexFile(ctx context.Context, in IndexFileInput) (*IndexFileOutput, error) {
	abs, err := s.resolvePath(in.Path)
	if err != nil {
		return nil, err
	}
	res := s.indexer.IndexFile(ctx, abs)
	return ToIndexFileOutput(res), nil
}

func (s *Server) handleDeleteDocument(ctx context.Context, in DeleteDocumentInput) (*DeleteDocumentOutput, error) {
	var (
		res index.DeleteResult
		err error
	)
	switch {
	case in.DocID != "":
		res, err = s.indexer.DeleteDocument(ctx, in.DocID)
	case in.Path != "":
		abs, perr := s.resolvePath(in.Path)
		if perr != nil {
			return nil, perr
		}
		res, err = s.indexer.DeletePath(ctx, abs)
	default:
		return nil, NewInvalidParamsError("doc_id or path is required")
	}
	if err != nil {
		return nil, MapError(err)
	}
	return &DeleteDocumentOutput{DocID: res.DocID, Chunks: res.Chunks, Tracked: res.Tracked}, nil
}

func (s *Server) handleIndexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	stats, err := s.query.Stats(ctx)
	if err != nil {
		return nil, MapError(err)
	}
	out := &IndexStatusOutput{
		Collection: CollectionInfo{
			Chunks:      stats.Count,
			Documents:   stats.Documents,
			LastIndexed: formatTime(stats.LastIndexed),
			Threshold:   stats.Threshold,
		},
		Reindex: toReindexInfo(s.reindexer.Progress().Snapshot()),
	}
	if s.embedder != nil {
		out.Embeddings = EmbeddingInfo{Model: s.embedder.ModelName(), Dimensions: s.embedder.Dimensions()}
	} else {
		out.Embeddings = EmbeddingInfo{Model: s.config.Embeddings.Model, Dimensions: s.config.Embeddings.Dimensions}
	}

	if s.tracker != nil {
		run, err := s.tracker.LastRun(ctx)
		if err != nil {
			s.logger.Warn("last_run_lookup_failed", slog.String("error", err.Error()))
		}
		out.LastRun = toRunInfo(run)

		misses, err := s.tracker.RecentMisses(ctx, recentMissLimit)
		if err != nil {
			s.logger.Warn("recent_misses_lookup_failed", slog.String("error", err.Error()))
		}
		for _, m := range misses {
			out.RecentMisses = append(out.RecentMisses, MissInfo{
				Question:  m.Question,
				BestScore: m.BestScore,
				AskedAt:   formatTime(m.AskedAt),
			})
		}
	}
	return out, nil
}

// resolvePath turns a root-relative path into an absolute path under the
// raw root, rejecting traversal and absolute input.
func (s *Server) resolvePath(rel string) (string, error) {
	if !isValidPath(rel) {
		return "", NewInvalidParamsError(fmt.Sprintf("invalid path: %q (must be relative to the raw root)", rel))
	}
	abs := filepath.Join(s.config.Paths.RawRoot, filepath.Clean(rel))
	if !s.withinRoot(abs) {
		return "", NewInvalidParamsError(fmt.Sprintf("invalid path: %q (resolves outside the raw root)", rel))
	}
	return abs, nil
}

// withinRoot reports whether abs, with symlinks resolved, stays under the
// raw root. Paths that do not exist yet are checked lexically only.
func (s *Server) withinRoot(abs string) bool {
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return true
	}
	root, err := filepath.EvalSymlinks(s.config.Paths.RawRoot)
	if err != nil {
		root = s.config.Paths.RawRoot
	}
	rel, err := filepath.Rel(root, resolved)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	s.logger.Debug("Registering MCP tools")

	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolQuery, Description: toolDescriptions[0].Description}, s.mcpQueryHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolReindex, Description: toolDescriptions[1].Description}, s.mcpReindexHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexFile, Description: toolDescriptions[2].Description}, s.mcpIndexFileHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolDeleteDocument, Description: toolDescriptions[3].Description}, s.mcpDeleteDocumentHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: ToolIndexStatus, Description: toolDescriptions[4].Description}, s.mcpIndexStatusHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", len(toolDescriptions)))
}

func (s *Server) mcpQueryHandler(ctx context.Context, _ *mcp.CallToolRequest, input QueryInput) (
	*mcp.CallToolResult,
	*QueryOutput,
	error,
) {
	out, err := s.handleQuery(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpReindexHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ReindexInput) (
	*mcp.CallToolResult,
	*ReindexOutput,
	error,
) {
	out, err := s.handleReindex(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func (s *Server) mcpIndexFileHandler(ctx context.Context, _ *mcp.CallToolRequest, input IndexFileInput) (
	*mcp.CallToolResult,
	*IndexFileOutput,
	error,
) {
	out, err := s.handleIndexFile(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	if out.Status == string(index.StatusIndexed) {
		s.registerDocument(out.DocID, out.Path)
	}
	return nil, out, nil
}

func (s *Server) mcpDeleteDocumentHandler(ctx context.Context, _ *mcp.CallToolRequest, input DeleteDocumentInput) (
	*mcp.CallToolResult,
	*DeleteDocumentOutput,
	error,
) {
	out, err := s.handleDeleteDocument(ctx, input)
	if err != nil {
		return nil, nil, err
	}
	s.unregisterDocument(out.DocID)
	return nil, out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.handleIndexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	// The SDK server stops when its context is canceled.
	return nil
}
