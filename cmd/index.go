package main

import (
	"fmt"
	"time"

	"github.com/armchr/testgen/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var indexForce bool

var indexCmd = &cobra.Command{
	Use:   "index [project...]",
	Short: "Parse and index Java projects",
	Long: `Parse every Java source of the named projects into the class store and, when a
vector store is reachable, embed classes and methods for retrieval.

With no arguments every enabled project is indexed. A project that is already
indexed is skipped unless --force is given.

Example:
  testgen index              # index all enabled projects
  testgen index shop --force # rebuild one project`,
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexForce, "force", false, "Clear and rebuild existing index data")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return withContainer(ctx, "stdout", bootstrap.Options{WithoutLLM: true}, func(sc *bootstrap.ServiceContainer, logger *zap.Logger) error {
		names := args
		if len(names) == 0 {
			for _, p := range sc.Config.Source.Projects {
				if !p.Disabled {
					names = append(names, p.Name)
				}
			}
		}
		if len(names) == 0 {
			return fmt.Errorf("no projects configured")
		}

		failed := 0
		for _, name := range names {
			res, err := sc.Service.IndexProject(ctx, name, indexForce)
			if err != nil {
				logger.Error("Failed to index project", zap.String("project", name), zap.Error(err))
				failed++
				continue
			}
			if res.AlreadyIndexed {
				fmt.Printf("%s: already indexed (use --force to rebuild)\n", name)
				continue
			}
			fmt.Printf("%s: %d files, %d classes, %d methods, %d errors in %s\n",
				name, res.Files, res.Classes, res.Methods, res.Errors, res.Duration.Round(time.Millisecond))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d projects failed to index", failed, len(names))
		}
		return nil
	})
}
