package mcpserver

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/armchr/testgen/internal/model"
	"github.com/armchr/testgen/internal/service"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

type fakeService struct {
	result *model.Result
	err    error
	got    service.GenerateRequest
}

func (f *fakeService) GenerateTest(ctx context.Context, req service.GenerateRequest) (*model.Result, error) {
	f.got = req
	return f.result, f.err
}

func (f *fakeService) GetStatistics() model.Statistics {
	return model.Statistics{Analyzed: 3, Generated: 2, Failed: 1, FixAttempts: 4}
}

func (f *fakeService) ResolveType(ctx context.Context, project, name, contextPackage string) (*service.TypeResolution, error) {
	if name == "" {
		return nil, service.ErrInvalidRequest
	}
	return &service.TypeResolution{Name: name, Found: true, FQN: "com.acme.geo." + name, Import: "import com.acme.geo." + name + ";"}, nil
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content block, got %d", len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content is %T, want *mcp.TextContent", res.Content[0])
	}
	return tc.Text
}

func TestGenerateTestTool(t *testing.T) {
	svc := &fakeService{result: &model.Result{
		SessionID: "s-1",
		Success:   true,
		FinalCode: "package a;\npublic class PointTest {}",
		ModeUsed:  model.ModeRAG,
		Phases:    []string{"compile", "runtime"},
		Attempts:  []model.FixAttempt{{Index: 1, ErrorClass: model.ErrorCompile, FixRequested: true, Success: true}},
		Duration:  1500 * time.Millisecond,
	}}
	s := New(svc, zap.NewNop())

	res, _, err := s.generateTest(context.Background(), nil, generateTestArgs{ClassName: "a.Point", MethodName: "distance", TestStyle: "bdd"})
	if err != nil {
		t.Fatalf("generateTest: %v", err)
	}
	if res.IsError {
		t.Errorf("successful session reported as error")
	}
	out := text(t, res)
	for _, want := range []string{"Test generated and passing", "Phases: compile, runtime", "1. compile error, fix requested: true, fixed: true", "```java\npackage a;"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if svc.got.ClassName != "a.Point" || svc.got.TestStyle != "bdd" {
		t.Errorf("request not forwarded: %+v", svc.got)
	}
}

func TestGenerateTestTool_Failures(t *testing.T) {
	s := New(&fakeService{result: &model.Result{Error: "compile fix attempts exhausted after 2 failed compilations"}}, zap.NewNop())
	res, _, _ := s.generateTest(context.Background(), nil, generateTestArgs{ClassName: "a.Point", MethodName: "m"})
	if !res.IsError || !strings.Contains(text(t, res), "compile fix attempts exhausted") {
		t.Errorf("failed session not reported: %+v", res)
	}

	s = New(&fakeService{err: errors.New("invalid request: method name is required")}, zap.NewNop())
	res, _, _ = s.generateTest(context.Background(), nil, generateTestArgs{ClassName: "a.Point"})
	if !res.IsError || !strings.Contains(text(t, res), "method name is required") {
		t.Errorf("request error not reported: %+v", res)
	}
}

func TestStatisticsAndResolveTools(t *testing.T) {
	s := New(&fakeService{}, zap.NewNop())

	res, _, err := s.getStatistics(context.Background(), nil, getStatisticsArgs{})
	if err != nil || res.IsError {
		t.Fatalf("getStatistics: %v %+v", err, res)
	}
	if out := text(t, res); !strings.Contains(out, `"analyzed": 3`) || !strings.Contains(out, `"fix_attempts": 4`) {
		t.Errorf("statistics = %s", out)
	}

	res, _, _ = s.resolveType(context.Background(), nil, resolveTypeArgs{Name: "Point"})
	if out := text(t, res); !strings.Contains(out, `"import": "import com.acme.geo.Point;"`) {
		t.Errorf("resolve = %s", out)
	}

	res, _, _ = s.resolveType(context.Background(), nil, resolveTypeArgs{})
	if !res.IsError {
		t.Errorf("empty name should be an error result")
	}
}
