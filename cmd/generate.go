package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/armchr/testgen/internal/bootstrap"
	"github.com/armchr/testgen/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	genReq          service.GenerateRequest
	genInitialCode  string
	genOutputJSON   bool
	genSkipEmbedder bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a test for one method",
	Long: `Run one generation session: gather context, ask the model for a test, then
compile and run it, repairing failures within the attempt budgets.

The passing test is written to the configured output directory and printed to
stdout. A failed session exits with status 1.

Example:
  testgen generate --project shop --class com.shop.cart.Cart --method total
  testgen generate --class com.shop.cart.Cart#total
  testgen generate --class com.shop.cart.Cart --method total --mode context-aware --json`,
	RunE: runGenerate,
}

func init() {
	f := generateCmd.Flags()
	f.StringVar(&genReq.Project, "project", "", "Configured project name, may be omitted with a single project")
	f.StringVar(&genReq.ClassName, "class", "", "Fully-qualified name of the class under test, or Class#method")
	f.StringVar(&genReq.MethodName, "method", "", "Name of the method under test, unless given with --class")
	f.StringVar(&genReq.Description, "description", "", "What the method does")
	f.StringVar(&genReq.Signature, "signature", "", "Method signature, when the class is not indexed")
	f.StringVar(&genReq.TestStyle, "style", "", "comprehensive, minimal, bdd, performance or security")
	f.StringVar(&genReq.FixStrategy, "strategy", "", "compile-only, runtime-only or both")
	f.StringVar(&genReq.ContextMode, "mode", "", "rag, context-aware or none")
	f.IntVar(&genReq.MaxCompileAttempts, "max-compile", 0, "Upper bound on failed compilations")
	f.IntVar(&genReq.MaxRuntimeAttempts, "max-runtime", 0, "Upper bound on failed test runs")
	f.IntVar(&genReq.TopK, "top-k", 0, "Context items to retrieve")
	f.BoolVar(&genReq.ForceReindex, "force-reindex", false, "Rebuild the project index first")
	f.StringVar(&genInitialCode, "initial-code-file", "", "Start repairing from this test file instead of generating")
	f.BoolVar(&genOutputJSON, "json", false, "Print the full session result as JSON")
	f.BoolVar(&genSkipEmbedder, "no-vector-store", false, "Do not connect to the embedding model or Qdrant")
	_ = generateCmd.MarkFlagRequired("class")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if genInitialCode != "" {
		data, err := os.ReadFile(genInitialCode)
		if err != nil {
			return fmt.Errorf("failed to read initial code: %w", err)
		}
		genReq.InitialCode = string(data)
	}

	ctx := cmd.Context()
	return withContainer(ctx, "stdout", bootstrap.Options{WithoutVectorStore: genSkipEmbedder}, func(sc *bootstrap.ServiceContainer, logger *zap.Logger) error {
		result, err := sc.Service.GenerateTest(ctx, genReq)
		if err != nil {
			return err
		}

		if genOutputJSON {
			data, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode result: %w", err)
			}
			fmt.Println(string(data))
		} else {
			if result.FinalCode != "" {
				fmt.Println(result.FinalCode)
			}
			fmt.Fprintf(os.Stderr, "\nsession %s: mode %s, %d context items, %d attempts, %s\n",
				result.SessionID, result.ModeUsed, result.ContextsUsed, len(result.Attempts), result.Duration.Round(time.Millisecond))
			if result.TestFilePath != "" {
				fmt.Fprintf(os.Stderr, "written to %s\n", result.TestFilePath)
			}
		}

		if !result.Success {
			return fmt.Errorf("generation failed: %s", result.Error)
		}
		return nil
	})
}
