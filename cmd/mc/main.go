package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Fguedes90/opencode-mission-control/internal/app"
	"github.com/Fguedes90/opencode-mission-control/internal/config"
	"github.com/Fguedes90/opencode-mission-control/internal/db"
	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
	"github.com/Fguedes90/opencode-mission-control/internal/logging"
	"github.com/Fguedes90/opencode-mission-control/internal/migrate"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
	"github.com/Fguedes90/opencode-mission-control/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "mc",
	Short: "Mission Control CLI",
	Long: `Mission Control coordinates agents working through a task graph.
- Mission: a workspace-scoped container of tasks. By default its id is derived from the workspace directory.
- Task: a unit of work with a priority (0 highest, 4 lowest) and a status.
- Dependency: "A blocks B" means B cannot start until A is completed. Links that would form a cycle are refused.
- Ready: a pending task whose blockers are all completed. 'mc task ready' lists them best first.
- Claim: an agent takes a ready task atomically; only one of several competing agents wins.
- Event log: every change is recorded, view with 'mc log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(db.Config{Workspace: viper.GetString("workspace")})
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("MISSION_CONTROL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/"+config.FileName+")")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().StringP("mission", "m", "", "mission id (default derived from the workspace directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	for _, name := range []string{"workspace", "config", "json", "actor-id", "mission", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(missionCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func missionCmd() *cobra.Command {
	m := &cobra.Command{Use: "mission", Short: "Manage missions"}
	m.AddCommand(missionCreateCmd())
	m.AddCommand(missionListCmd())
	m.AddCommand(missionShowCmd())
	m.AddCommand(missionArchiveCmd())
	m.AddCommand(missionStatusCmd())
	m.AddCommand(missionIDCmd())
	return m
}

func missionCreateCmd() *cobra.Command {
	var id, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if id == "" {
					derived, err := app.MissionID(workspaceDir(), viper.GetString("mission"))
					if err != nil {
						return err
					}
					id = derived
				}
				if title == "" {
					title = filepath.Base(workspaceDir())
				}
				m, err := e.CreateMission(ctx, id, title, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "mission id (default derived from the workspace)")
	cmd.Flags().StringVar(&title, "title", "", "mission title (default workspace directory name)")
	return cmd
}

func missionListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListMissions(ctx, domain.MissionStatus(status))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Title", "Status", "Created")
				for _, m := range items {
					tw.AppendRow(table.Row{m.ID, m.Title, m.Status, m.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter (active, archived)")
	return cmd
}

func missionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				return printJSONOrTable(m)
			})
		},
	}
}

func missionArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Archive the active mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				archived, err := e.ArchiveMission(ctx, m.ID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(archived)
			})
		},
	}
}

func missionStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Task counts for the active mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				s, err := e.MissionStatus(ctx, m.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Printf("Mission %s (%s) %s\n", s.Mission.ID, s.Mission.Title, s.Mission.Status)
				tw := newTable("Status", "Tasks")
				for _, st := range domain.TaskStatuses {
					tw.AppendRow(table.Row{st, s.Counts[st]})
				}
				tw.AppendFooter(table.Row{"total", s.Total})
				tw.Render()
				fmt.Printf("Ready to claim: %d\n", s.Ready)
				return nil
			})
		},
	}
}

func missionIDCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print the mission id for the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.MissionID(workspaceDir(), viper.GetString("mission"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"mission_id": id})
			}
			fmt.Println(id)
			return nil
		},
	}
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage tasks"}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskGetCmd())
	t.AddCommand(taskListCmd())
	t.AddCommand(taskReadyCmd())
	t.AddCommand(taskActiveCmd())
	t.AddCommand(taskLinkCmd())
	t.AddCommand(taskUnlinkCmd())
	t.AddCommand(taskClaimCmd())
	t.AddCommand(taskReleaseCmd())
	t.AddCommand(taskStatusCmd())
	t.AddCommand(taskDepsCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var title, desc, acceptance string
	var priority int
	var meta map[string]string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				in := engine.CreateTaskInput{
					MissionID:   m.ID,
					Title:       title,
					Description: desc,
					ActorID:     viper.GetString("actor-id"),
				}
				if cmd.Flags().Changed("priority") {
					in.Priority = &priority
				}
				if cmd.Flags().Changed("acceptance") {
					in.AcceptanceCriteria = &acceptance
				}
				if len(meta) > 0 {
					in.Metadata = domain.Metadata{}
					for k, v := range meta {
						in.Metadata[k] = v
					}
				}
				t, err := e.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().IntVarP(&priority, "priority", "p", domain.DefaultPriority, "priority 0 (highest) to 4")
	cmd.Flags().StringVar(&acceptance, "acceptance", "", "acceptance criteria")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "metadata key=value pairs")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func taskGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.GetTask(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
}

func taskListCmd() *cobra.Command {
	var statuses []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the mission's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				filter := make([]domain.TaskStatus, 0, len(statuses))
				for _, s := range statuses {
					filter = append(filter, domain.TaskStatus(strings.TrimSpace(s)))
				}
				tasks, err := e.GetAllTasks(ctx, m.ID, filter...)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "status filter, comma separated")
	return cmd
}

func taskReadyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "ready",
		Short: "List tasks ready to claim, best first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				tasks, err := e.GetReadyTasks(ctx, m.ID, limit)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum tasks (0 for all)")
	return cmd
}

func taskActiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "active",
		Short: "List tasks in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				tasks, err := e.GetActiveTasks(ctx, m.ID)
				if err != nil {
					return err
				}
				return printTasks(tasks)
			})
		},
	}
}

func taskLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <blocker-id> <blocked-id>",
		Short: "Make one task block another",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.LinkTasks(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func taskUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <blocker-id> <blocked-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.UnlinkTasks(ctx, args[0], args[1], viper.GetString("actor-id"))
			})
		},
	}
}

func taskClaimCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "claim <id>",
		Short: "Claim a ready task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ClaimTask(ctx, args[0], agentOrActor(agent))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id (default --actor-id)")
	return cmd
}

func taskReleaseCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "release <id>",
		Short: "Release a claimed task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				t, err := e.ReleaseTask(ctx, args[0], agentOrActor(agent))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id (default --actor-id)")
	return cmd
}

func taskStatusCmd() *cobra.Command {
	var summary string
	cmd := &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Set a task's status",
		Long:  "Statuses: pending, ready, in_progress, review, completed, failed, blocked. Any status other than in_progress clears the assignee.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var result *string
				if cmd.Flags().Changed("summary") {
					result = &summary
				}
				t, err := e.UpdateTaskStatus(ctx, args[0], domain.TaskStatus(args[1]), result, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&summary, "summary", "", "result summary stored in metadata")
	return cmd
}

func taskDepsCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "deps [id]",
		Short: "Show a task's blockers and dependents, or every edge with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all {
				return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
					deps, err := e.ListDependencies(ctx, m.ID)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(deps)
					}
					tw := newTable("Blocker", "Blocked", "Created")
					for _, d := range deps {
						tw.AppendRow(table.Row{d.BlockerID, d.BlockedID, d.CreatedAt})
					}
					tw.Render()
					return nil
				})
			}
			if len(args) != 1 {
				return fmt.Errorf("task id required (or use --all)")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, err := e.GetDependencies(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "list every dependency in the mission")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMission(cmd.Context(), func(ctx context.Context, e engine.Engine, m domain.Mission) error {
				events, err := e.LatestEvents(ctx, repo.EventFilter{
					MissionID:  m.ID,
					Type:       evtType,
					EntityKind: entityKind,
					EntityID:   entityID,
				}, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + ":" + evt.EntityID, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind (mission, task, dependency)")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Configuration lives in " + config.FileName + " in the workspace; every key has a built-in default.",
	}
	c.AddCommand(configInitCmd())
	c.AddCommand(configShowCmd())
	c.AddCommand(configValidateCmd())
	return c
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.FromFile(configPath())
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if addr == "" {
					addr = e.Config.Server.Addr
				}
				if basePath == "" {
					basePath = e.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
				if err != nil {
					return err
				}
				go server.NewDispatcher(e, e.Config.Webhooks).Run(ctx)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				e.Log.Info("serving", "addr", addr, "base_path", basePath, "webhooks", len(e.Config.Webhooks))
				fmt.Printf("Serving Mission Control API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default server.base_path)")
	return cmd
}

// --- helpers ---

func workspaceDir() string {
	ws := viper.GetString("workspace")
	if abs, err := filepath.Abs(ws); err == nil {
		return abs
	}
	return ws
}

func configPath() string {
	if p := viper.GetString("config"); p != "" {
		return p
	}
	return config.Path(viper.GetString("workspace"))
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if p := viper.GetString("config"); p != "" {
		cfg, err = config.FromFile(p)
	} else {
		cfg, err = config.LoadOptional(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if lvl := viper.GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	return cfg, nil
}

func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	dbCfg := db.Config{
		Workspace:     viper.GetString("workspace"),
		Path:          cfg.Database.Path,
		BusyTimeoutMS: cfg.Database.BusyTimeoutMS,
	}
	if dbCfg.Path != "" && !filepath.IsAbs(dbCfg.Path) {
		dbCfg.Path = filepath.Join(dbCfg.Workspace, dbCfg.Path)
	}
	conn, err := db.Open(dbCfg)
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	conn, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	log := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	e := engine.New(conn, cfg, engine.WithLogger(log))
	return fn(ctx, e)
}

// withMission resolves the active mission from --mission or the workspace
// directory; a derived mission is created on first use.
func withMission(ctx context.Context, fn func(context.Context, engine.Engine, domain.Mission) error) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		m, err := app.ResolveMission(ctx, e, workspaceDir(), viper.GetString("mission"), viper.GetString("actor-id"))
		if err != nil {
			return err
		}
		return fn(ctx, e, m)
	})
}

func agentOrActor(agent string) string {
	if agent != "" {
		return agent
	}
	return viper.GetString("actor-id")
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

func printTasks(tasks []domain.Task) error {
	if viper.GetBool("json") {
		return printJSON(tasks)
	}
	tw := newTable("ID", "Title", "Status", "Priority", "Assignee")
	for _, t := range tasks {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.AssigneeOr("")})
	}
	tw.Render()
	return nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
