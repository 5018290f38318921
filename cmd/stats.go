package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/armchr/testgen/internal/bootstrap"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	statsSessions int
	statsSession  string
)

var statsCmd = &cobra.Command{
	Use:   "stats [project...]",
	Short: "Show index and session statistics",
	Long: `Print the class store and type index statistics of each project together with
its most recent generation sessions. With --session, print one stored session in
full instead.`,
	RunE: runStats,
}

func init() {
	statsCmd.Flags().IntVar(&statsSessions, "sessions", 10, "Recent sessions to list per project")
	statsCmd.Flags().StringVar(&statsSession, "session", "", "Print the stored session with this ID")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts := bootstrap.Options{WithoutVectorStore: true, WithoutLLM: true}
	return withContainer(ctx, "stderr", opts, func(sc *bootstrap.ServiceContainer, logger *zap.Logger) error {
		if statsSession != "" {
			session, err := sc.SessionStore.GetSession(ctx, statsSession)
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(session, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		names := args
		if len(names) == 0 {
			for _, p := range sc.Config.Source.Projects {
				names = append(names, p.Name)
			}
		}

		for _, name := range names {
			fmt.Printf("%s\n", name)
			rows, err := sc.ClassStore.Stats(ctx, name)
			if err != nil {
				logger.Warn("Failed to read class store statistics", zap.String("project", name), zap.Error(err))
			} else {
				fmt.Printf("  classes %d, methods %d, constructors %d, fields %d\n",
					rows.Classes, rows.Methods, rows.Constructors, rows.Fields)
			}
			if types, err := sc.Service.TypeStatistics(ctx, name); err == nil {
				fmt.Printf("  types %d, unique names %d, ambiguous %d, packages %d\n",
					types.TotalTypes, types.UniqueNames, types.AmbiguousNames, types.Packages)
			}

			sessions, err := sc.SessionStore.ListSessions(ctx, name, statsSessions)
			if err != nil {
				logger.Warn("Failed to list sessions", zap.String("project", name), zap.Error(err))
				continue
			}
			for _, s := range sessions {
				status := "ok"
				if !s.Success {
					status = "failed"
				}
				fmt.Printf("  %s  %s  %s#%s  %s, %d attempts, %s\n",
					time.UnixMilli(s.StartedAt).Format(time.DateTime), s.ID, s.ClassFQN, s.MethodName,
					status, s.Attempts, time.Duration(s.DurationMS)*time.Millisecond)
			}
		}
		return nil
	})
}
