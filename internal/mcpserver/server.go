// Package mcpserver exposes test generation as MCP tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const version = "0.1.0"

// TestGen is the part of the service the tools call.
type TestGen interface {
	GenerateTest(ctx context.Context, req service.GenerateRequest) (*model.Result, error)
	GetStatistics() model.Statistics
	ResolveType(ctx context.Context, project, name, contextPackage string) (*service.TypeResolution, error)
}

// Server wraps the MCP server and connects it to the generation service.
type Server struct {
	mcp    *mcp.Server
	svc    TestGen
	logger *zap.Logger
}

func New(svc TestGen, logger *zap.Logger) *Server {
	s := &Server{
		mcp:    mcp.NewServer(&mcp.Implementation{Name: "testgen", Version: version}, nil),
		svc:    svc,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Run serves on stdin/stdout until the client disconnects or ctx ends.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("Starting MCP server on stdio transport")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

type generateTestArgs struct {
	Project            string `json:"project,omitempty" jsonschema:"Configured project name. May be omitted when only one project is configured."`
	ClassName          string `json:"class_name" jsonschema:"Fully-qualified name of the class under test, or pkg.Class#method"`
	MethodName         string `json:"method_name,omitempty" jsonschema:"Name of the method under test, unless class_name carries it"`
	Description        string `json:"description,omitempty" jsonschema:"Optional description of what the method does"`
	TestStyle          string `json:"test_style,omitempty" jsonschema:"comprehensive, minimal, bdd, performance or security"`
	FixStrategy        string `json:"fix_strategy,omitempty" jsonschema:"compile-only, runtime-only or both"`
	ContextMode        string `json:"context_mode,omitempty" jsonschema:"rag, context-aware or none"`
	MaxCompileAttempts int    `json:"max_compile_attempts,omitempty" jsonschema:"Upper bound on failed compilations"`
	MaxRuntimeAttempts int    `json:"max_runtime_attempts,omitempty" jsonschema:"Upper bound on failed test runs"`
	ForceReindex       bool   `json:"force_reindex,omitempty" jsonschema:"Rebuild the project index before generating"`
}

type resolveTypeArgs struct {
	Project        string `json:"project,omitempty" jsonschema:"Configured project name"`
	Name           string `json:"name" jsonschema:"Simple type name to resolve"`
	ContextPackage string `json:"context_package,omitempty" jsonschema:"Package of the code that refers to the type"`
}

type getStatisticsArgs struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "generate_test",
		Description: "Generate a JUnit 5 test for one Java method, then compile and run it, feeding failures back to the model until the test passes or the attempt budgets run out. Returns the final test code and the attempt log.",
	}, s.generateTest)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_statistics",
		Description: "Return the counters of this server: sessions analyzed, generated, failed, context retrievals and fix attempts.",
	}, s.getStatistics)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "resolve_type",
		Description: "Resolve a simple Java type name to its fully-qualified declaration in a project and return the import statement to use.",
	}, s.resolveType)
}

func (s *Server) generateTest(ctx context.Context, req *mcp.CallToolRequest, args generateTestArgs) (*mcp.CallToolResult, any, error) {
	result, err := s.svc.GenerateTest(ctx, service.GenerateRequest{
		Project:            args.Project,
		ClassName:          args.ClassName,
		MethodName:         args.MethodName,
		Description:        args.Description,
		TestStyle:          args.TestStyle,
		FixStrategy:        args.FixStrategy,
		ContextMode:        args.ContextMode,
		MaxCompileAttempts: args.MaxCompileAttempts,
		MaxRuntimeAttempts: args.MaxRuntimeAttempts,
		ForceReindex:       args.ForceReindex,
	})
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	res := textResult(summarize(result))
	res.IsError = !result.Success
	return res, nil, nil
}

func (s *Server) getStatistics(ctx context.Context, req *mcp.CallToolRequest, args getStatisticsArgs) (*mcp.CallToolResult, any, error) {
	return jsonResult(s.svc.GetStatistics())
}

func (s *Server) resolveType(ctx context.Context, req *mcp.CallToolRequest, args resolveTypeArgs) (*mcp.CallToolResult, any, error) {
	res, err := s.svc.ResolveType(ctx, args.Project, args.Name, args.ContextPackage)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}
	return jsonResult(res)
}

// summarize renders a session result as markdown: outcome, attempt trail, then code.
func summarize(r *model.Result) string {
	var sb strings.Builder
	if r.Success {
		sb.WriteString("Test generated and passing.\n\n")
	} else {
		fmt.Fprintf(&sb, "Test generation failed: %s\n\n", r.Error)
	}
	fmt.Fprintf(&sb, "- Session: %s\n", r.SessionID)
	fmt.Fprintf(&sb, "- Context mode: %s (%d items)\n", r.ModeUsed, r.ContextsUsed)
	if len(r.Phases) > 0 {
		fmt.Fprintf(&sb, "- Phases: %s\n", strings.Join(r.Phases, ", "))
	}
	fmt.Fprintf(&sb, "- Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.TestFilePath != "" {
		fmt.Fprintf(&sb, "- Written to: %s\n", r.TestFilePath)
	}
	if len(r.Attempts) > 0 {
		sb.WriteString("\nAttempts:\n")
		for _, a := range r.Attempts {
			fmt.Fprintf(&sb, "%d. %s error, fix requested: %t, fixed: %t\n", a.Index, a.ErrorClass, a.FixRequested, a.Success)
		}
	}
	if r.FinalCode != "" {
		sb.WriteString("\n```java\n")
		sb.WriteString(r.FinalCode)
		sb.WriteString("\n```\n")
	}
	return sb.String()
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err)), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func errorResult(msg string) *mcp.CallToolResult {
	res := textResult(msg)
	res.IsError = true
	return res
}
