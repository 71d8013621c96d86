package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Fguedes90/opencode-mission-control/internal/config"
	"github.com/Fguedes90/opencode-mission-control/internal/db"
	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
	"github.com/Fguedes90/opencode-mission-control/internal/events"
	"github.com/Fguedes90/opencode-mission-control/internal/graph"
	"github.com/Fguedes90/opencode-mission-control/internal/ids"
	"github.com/Fguedes90/opencode-mission-control/internal/logging"
	"github.com/Fguedes90/opencode-mission-control/internal/migrate"
	"github.com/Fguedes90/opencode-mission-control/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
	Path   string
}

// tickingClock advances one second per reading so creation order is visible
// in timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	cur := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func openEngine(t *testing.T, path string, cfg *config.Config) engine.Engine {
	t.Helper()
	conn, err := db.Open(db.Config{Path: path})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return engine.New(conn, cfg,
		engine.WithLogger(logging.Discard()),
		engine.WithIDs(&ids.Sequence{}),
		engine.WithClock(tickingClock()),
	)
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mc.db")
	eng := openEngine(t, path, config.Default())
	ctx := context.Background()
	if _, err := eng.CreateMission(ctx, "mission-1", "Launch Rocket", "tester"); err != nil {
		t.Fatalf("create mission: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx, Path: path}
}

func (env testEnv) task(t *testing.T, title string, priority int) domain.Task {
	t.Helper()
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{
		MissionID: "mission-1", Title: title, Priority: &priority, ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create task %s: %v", title, err)
	}
	return task
}

func (env testEnv) link(t *testing.T, blocker, blocked domain.Task) {
	t.Helper()
	if _, err := env.Engine.LinkTasks(env.Ctx, blocker.ID, blocked.ID, "tester"); err != nil {
		t.Fatalf("link %s -> %s: %v", blocker.Title, blocked.Title, err)
	}
}

func taskIDs(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func TestCreateMissionRejectsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateMission(env.Ctx, "mission-1", "again", "tester")
	if !errors.Is(err, engine.ErrInvalidOperation) || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected already exists, got %v", err)
	}
	if _, err := env.Engine.CreateMission(env.Ctx, "  ", "blank", "tester"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("blank id accepted: %v", err)
	}
	m, err := env.Engine.GetMission(env.Ctx, "mission-1")
	if err != nil || m.Title != "Launch Rocket" || m.Status != domain.MissionActive {
		t.Fatalf("mission changed: %+v %v", m, err)
	}
	if _, err := env.Engine.GetMission(env.Ctx, "nope"); !errors.Is(err, engine.ErrMissionNotFound) {
		t.Fatalf("expected mission not found, got %v", err)
	}
}

func TestCreateTaskDefaults(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{MissionID: "mission-1", Title: "  Build stage  "})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Priority != domain.DefaultPriority || task.Status != domain.StatusPending || task.Assignee != nil {
		t.Fatalf("unexpected defaults %+v", task)
	}
	if task.Title != "Build stage" || len(task.Metadata) != 0 {
		t.Fatalf("unexpected title/metadata %+v", task)
	}
	if !strings.HasPrefix(task.ID, "launch-rocket-") {
		t.Fatalf("id not seeded with mission title: %s", task.ID)
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil || got.CreatedAt != task.CreatedAt {
		t.Fatalf("read back: %+v %v", got, err)
	}
}

func TestCreateTaskConfiguredDefaultPriority(t *testing.T) {
	cfg := config.Default()
	cfg.Tasks.DefaultPriority = 4
	eng := openEngine(t, filepath.Join(t.TempDir(), "mc.db"), cfg)
	ctx := context.Background()
	if _, err := eng.CreateMission(ctx, "m", "M", "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := eng.CreateTask(ctx, engine.CreateTaskInput{MissionID: "m", Title: "x"})
	if err != nil || task.Priority != 4 {
		t.Fatalf("expected priority 4, got %+v %v", task, err)
	}
}

func TestUnvalidatedConfigFallsBackToDefaults(t *testing.T) {
	eng := openEngine(t, filepath.Join(t.TempDir(), "mc.db"), &config.Config{})
	ctx := context.Background()
	if _, err := eng.CreateMission(ctx, "m", "M", "tester"); err != nil {
		t.Fatal(err)
	}
	task, err := eng.CreateTask(ctx, engine.CreateTaskInput{MissionID: "m", Title: "x"})
	if err != nil || task.Priority != domain.DefaultPriority {
		t.Fatalf("expected priority %d, got %+v %v", domain.DefaultPriority, task, err)
	}
	if eng.Config.Tasks.MetadataPolicy != "lenient" {
		t.Fatalf("metadata policy not defaulted: %q", eng.Config.Tasks.MetadataPolicy)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	bad := 5
	neg := -1
	cases := []engine.CreateTaskInput{
		{MissionID: "mission-1", Title: "x", Priority: &bad},
		{MissionID: "mission-1", Title: "x", Priority: &neg},
		{MissionID: "mission-1", Title: "   "},
		{Title: "x"},
	}
	for i, in := range cases {
		if _, err := env.Engine.CreateTask(env.Ctx, in); !errors.Is(err, engine.ErrInvalidOperation) {
			t.Fatalf("case %d: expected invalid operation, got %v", i, err)
		}
	}
	_, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{MissionID: "ghost", Title: "x"})
	if !errors.Is(err, engine.ErrMissionNotFound) {
		t.Fatalf("expected mission not found, got %v", err)
	}
}

func TestLinkChainRejectsClosingEdge(t *testing.T) {
	env := newTestEnv(t)
	a, b, c, d := env.task(t, "A", 2), env.task(t, "B", 2), env.task(t, "C", 2), env.task(t, "D", 2)
	env.link(t, a, b)
	env.link(t, b, c)
	env.link(t, c, d)

	_, err := env.Engine.LinkTasks(env.Ctx, d.ID, a.ID, "tester")
	if !errors.Is(err, engine.ErrCycleDetected) {
		t.Fatalf("expected cycle, got %v", err)
	}
	var ce *graph.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *graph.CycleError, got %T", err)
	}
	want := []string{a.ID, b.ID, c.ID, d.ID, a.ID}
	if fmt.Sprint(ce.Path) != fmt.Sprint(want) {
		t.Fatalf("path %v, want %v", ce.Path, want)
	}
	deps, err := env.Engine.GetDependencies(env.Ctx, a.ID)
	if err != nil || len(deps.Blockers) != 0 {
		t.Fatalf("rejected edge was stored: %+v %v", deps, err)
	}
}

func TestLinkSelfLoop(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", 2)
	_, err := env.Engine.LinkTasks(env.Ctx, a.ID, a.ID, "tester")
	var ce *graph.CycleError
	if !errors.As(err, &ce) || !ce.SelfLoop {
		t.Fatalf("expected self-loop cycle error, got %v", err)
	}
}

func TestLinkValidation(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", 2)
	if _, err := env.Engine.CreateMission(env.Ctx, "mission-2", "Other", "tester"); err != nil {
		t.Fatal(err)
	}
	other, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{MissionID: "mission-2", Title: "elsewhere"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LinkTasks(env.Ctx, a.ID, other.ID, "tester"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("cross-mission link: %v", err)
	}
	_, err = env.Engine.LinkTasks(env.Ctx, "ghost-blocker", "ghost-blocked", "tester")
	if !errors.Is(err, engine.ErrTaskNotFound) || !strings.Contains(err.Error(), "ghost-blocker") {
		t.Fatalf("expected blocker not found first, got %v", err)
	}
	if _, err := env.Engine.LinkTasks(env.Ctx, a.ID, "ghost", "tester"); !errors.Is(err, engine.ErrTaskNotFound) {
		t.Fatalf("missing blocked: %v", err)
	}
}

func TestLinkIsIdempotentAndUnlink(t *testing.T) {
	env := newTestEnv(t)
	a, b := env.task(t, "A", 2), env.task(t, "B", 2)
	first, err := env.Engine.LinkTasks(env.Ctx, a.ID, b.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.Engine.LinkTasks(env.Ctx, a.ID, b.ID, "tester")
	if err != nil || second != first {
		t.Fatalf("relink: %+v vs %+v (%v)", second, first, err)
	}
	all, err := env.Engine.ListDependencies(env.Ctx, "mission-1")
	if err != nil || len(all) != 1 {
		t.Fatalf("expected one edge, got %v %v", all, err)
	}
	if err := env.Engine.UnlinkTasks(env.Ctx, a.ID, b.ID, "tester"); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	if err := env.Engine.UnlinkTasks(env.Ctx, a.ID, b.ID, "tester"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("second unlink: %v", err)
	}
	if err := env.Engine.UnlinkTasks(env.Ctx, "ghost", b.ID, "tester"); !errors.Is(err, engine.ErrTaskNotFound) {
		t.Fatalf("unlink unknown: %v", err)
	}
}

func TestReadyTasksScenario(t *testing.T) {
	env := newTestEnv(t)
	t1 := env.task(t, "T1", 2)
	t2 := env.task(t, "T2", 2)
	t3 := env.task(t, "T3", 2)
	t4 := env.task(t, "T4", 2)
	t5 := env.task(t, "T5", 2)
	env.link(t, t3, t2)
	env.link(t, t5, t4)
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, t5.ID, domain.StatusCompleted, nil, "tester"); err != nil {
		t.Fatal(err)
	}
	ready, err := env.Engine.GetReadyTasks(env.Ctx, "mission-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{t1.ID, t3.ID, t4.ID}
	if fmt.Sprint(taskIDs(ready)) != fmt.Sprint(want) {
		t.Fatalf("ready %v, want %v", taskIDs(ready), want)
	}
	if _, err := env.Engine.GetReadyTasks(env.Ctx, "ghost", 0); !errors.Is(err, engine.ErrMissionNotFound) {
		t.Fatalf("expected mission not found, got %v", err)
	}
}

func TestReadyTasksPriorityOrder(t *testing.T) {
	env := newTestEnv(t)
	low := env.task(t, "low", 4)
	urgent := env.task(t, "urgent", 0)
	normal := env.task(t, "normal", 2)
	ready, err := env.Engine.GetReadyTasks(env.Ctx, "mission-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{urgent.ID, normal.ID}
	if fmt.Sprint(taskIDs(ready)) != fmt.Sprint(want) {
		t.Fatalf("ready %v, want %v (low=%s)", taskIDs(ready), want, low.ID)
	}
}

func TestClaimScenario(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "work", 2)

	claimed, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-a")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != domain.StatusInProgress || claimed.AssigneeOr("") != "agent-a" {
		t.Fatalf("unexpected claim result %+v", claimed)
	}

	_, err = env.Engine.ClaimTask(env.Ctx, task.ID, "agent-b")
	var locked *engine.TaskLockedError
	if !errors.As(err, &locked) || locked.Owner != "agent-a" || locked.TaskID != task.ID {
		t.Fatalf("expected lock by agent-a, got %v", err)
	}
	if !errors.Is(err, engine.ErrTaskLocked) {
		t.Fatalf("TaskLockedError should match ErrTaskLocked")
	}

	again, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-a")
	if err != nil || again.UpdatedAt != claimed.UpdatedAt {
		t.Fatalf("reclaim should be a no-op: %+v %v", again, err)
	}

	if _, err := env.Engine.ClaimTask(env.Ctx, "ghost", "agent-a"); !errors.Is(err, engine.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, task.ID, " "); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("blank agent: %v", err)
	}
}

func TestClaimBlockedAndCompleted(t *testing.T) {
	env := newTestEnv(t)
	blocker := env.task(t, "blocker", 2)
	blocked := env.task(t, "blocked", 2)
	env.link(t, blocker, blocked)

	_, err := env.Engine.ClaimTask(env.Ctx, blocked.ID, "agent-a")
	if !errors.Is(err, engine.ErrInvalidOperation) || !strings.Contains(err.Error(), blocker.ID) {
		t.Fatalf("expected blocked by %s, got %v", blocker.ID, err)
	}

	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, blocker.ID, domain.StatusCompleted, nil, "tester"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, blocked.ID, "agent-a"); err != nil {
		t.Fatalf("claim after blocker completed: %v", err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, blocker.ID, "agent-a"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("claiming completed task: %v", err)
	}
}

func checkSingleWinner(t *testing.T, task domain.Task, agents []string, results []error, winner domain.Task) {
	t.Helper()
	if winner.AssigneeOr("") == "" || winner.Status != domain.StatusInProgress {
		t.Fatalf("no winner recorded: %+v", winner)
	}
	wins := 0
	for i, err := range results {
		if err == nil {
			wins++
			if agents[i] != winner.AssigneeOr("") {
				t.Fatalf("agent %s succeeded but %s holds the task", agents[i], winner.AssigneeOr(""))
			}
			continue
		}
		var locked *engine.TaskLockedError
		if !errors.As(err, &locked) || locked.Owner != winner.AssigneeOr("") || locked.TaskID != task.ID {
			t.Fatalf("agent %s: expected TaskLocked naming %s, got %v", agents[i], winner.AssigneeOr(""), err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestConcurrentClaimExactlyOneWinner(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "contended", 2)

	const n = 16
	agents := make([]string, n)
	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		agents[i] = fmt.Sprintf("agent-%02d", i)
		g.Go(func() error {
			_, results[i] = env.Engine.ClaimTask(env.Ctx, task.ID, agents[i])
			return nil
		})
	}
	_ = g.Wait()

	winner, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	checkSingleWinner(t, task, agents, results, winner)
}

// Separate pools model separate processes sharing one database file.
func TestConcurrentClaimAcrossConnections(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "contended", 2)
	engines := []engine.Engine{env.Engine, openEngine(t, env.Path, nil), openEngine(t, env.Path, nil)}

	const n = 12
	agents := make([]string, n)
	results := make([]error, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		agents[i] = fmt.Sprintf("proc-%d-agent-%d", i%len(engines), i)
		eng := engines[i%len(engines)]
		g.Go(func() error {
			_, results[i] = eng.ClaimTask(env.Ctx, task.ID, agents[i])
			return nil
		})
	}
	_ = g.Wait()

	winner, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	checkSingleWinner(t, task, agents, results, winner)
}

func TestUpdateTaskStatusMergesSummaryAndClearsAssignee(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{
		MissionID: "mission-1", Title: "report", Metadata: domain.Metadata{"owner": "ops", "attempt": 1, "trace": int64(9007199254740993)},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-a"); err != nil {
		t.Fatal(err)
	}

	summary := "all green"
	done, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusCompleted, &summary, "agent-a")
	if err != nil {
		t.Fatal(err)
	}
	if done.Assignee != nil {
		t.Fatalf("assignee kept after completion: %v", *done.Assignee)
	}
	stored, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Metadata["owner"] != "ops" || stored.Metadata["attempt"] != json.Number("1") || stored.Metadata[domain.ResultSummaryKey] != summary {
		t.Fatalf("metadata not merged: %v", stored.Metadata)
	}

	// reopening is allowed and keeps metadata when no summary is passed
	reopened, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusPending, nil, "tester")
	if err != nil || reopened.Status != domain.StatusPending {
		t.Fatalf("reopen: %+v %v", reopened, err)
	}
	stored, _ = env.Engine.GetTask(env.Ctx, task.ID)
	if stored.Metadata[domain.ResultSummaryKey] != summary {
		t.Fatalf("metadata lost on reopen: %v", stored.Metadata)
	}
	if stored.Metadata["trace"] != json.Number("9007199254740993") {
		t.Fatalf("integer metadata lost precision: %#v", stored.Metadata["trace"])
	}

	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, "finished", nil, "tester"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("unknown status accepted: %v", err)
	}
	if _, err := env.Engine.UpdateTaskStatus(env.Ctx, "ghost", domain.StatusReview, nil, "tester"); !errors.Is(err, engine.ErrTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReadyStatusReturnsTaskToPool(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "work", 2)
	if _, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-a"); err != nil {
		t.Fatal(err)
	}
	back, err := env.Engine.UpdateTaskStatus(env.Ctx, task.ID, domain.StatusReady, nil, "agent-a")
	if err != nil || back.Assignee != nil {
		t.Fatalf("ready should clear assignee: %+v %v", back, err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-b"); err != nil {
		t.Fatalf("agent-b should claim a released task: %v", err)
	}
}

func TestReleaseTask(t *testing.T) {
	env := newTestEnv(t)
	task := env.task(t, "work", 2)
	if _, err := env.Engine.ReleaseTask(env.Ctx, task.ID, "agent-a"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("release unclaimed: %v", err)
	}
	if _, err := env.Engine.ClaimTask(env.Ctx, task.ID, "agent-a"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ReleaseTask(env.Ctx, task.ID, "agent-b"); !errors.Is(err, engine.ErrTaskLocked) {
		t.Fatalf("release by non-owner: %v", err)
	}
	released, err := env.Engine.ReleaseTask(env.Ctx, task.ID, "agent-a")
	if err != nil || released.Status != domain.StatusPending || released.Assignee != nil {
		t.Fatalf("release: %+v %v", released, err)
	}
	active, err := env.Engine.GetActiveTasks(env.Ctx, "mission-1")
	if err != nil || len(active) != 0 {
		t.Fatalf("active after release: %v %v", active, err)
	}
}

func TestActiveAndAllTasks(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", 1)
	env.task(t, "B", 2)
	if _, err := env.Engine.ClaimTask(env.Ctx, a.ID, "agent-a"); err != nil {
		t.Fatal(err)
	}
	active, err := env.Engine.GetActiveTasks(env.Ctx, "mission-1")
	if err != nil || len(active) != 1 || active[0].ID != a.ID {
		t.Fatalf("active: %v %v", active, err)
	}
	all, err := env.Engine.GetAllTasks(env.Ctx, "mission-1")
	if err != nil || len(all) != 2 {
		t.Fatalf("all: %v %v", all, err)
	}
	if _, err := env.Engine.GetAllTasks(env.Ctx, "mission-1", "bogus"); !errors.Is(err, engine.ErrInvalidOperation) {
		t.Fatalf("bogus status filter: %v", err)
	}
}

func TestMissionIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.task(t, "mine", 2)
	if _, err := env.Engine.CreateMission(env.Ctx, "mission-2", "Other", "tester"); err != nil {
		t.Fatal(err)
	}
	theirs, err := env.Engine.CreateTask(env.Ctx, engine.CreateTaskInput{MissionID: "mission-2", Title: "theirs"})
	if err != nil {
		t.Fatal(err)
	}
	ready, err := env.Engine.GetReadyTasks(env.Ctx, "mission-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	for _, task := range ready {
		if task.ID == theirs.ID || task.MissionID != "mission-1" {
			t.Fatalf("task %s leaked into mission-1", task.ID)
		}
	}
}

func TestMissionStatusArchiveAndEvents(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", 2)
	b := env.task(t, "B", 2)
	env.link(t, a, b)
	if _, err := env.Engine.ClaimTask(env.Ctx, a.ID, "agent-a"); err != nil {
		t.Fatal(err)
	}

	summary, err := env.Engine.MissionStatus(env.Ctx, "mission-1")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Total != 2 || summary.Counts[domain.StatusInProgress] != 1 || summary.Ready != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	archived, err := env.Engine.ArchiveMission(env.Ctx, "mission-1", "tester")
	if err != nil || archived.Status != domain.MissionArchived {
		t.Fatalf("archive: %+v %v", archived, err)
	}
	if _, err := env.Engine.ArchiveMission(env.Ctx, "mission-1", "tester"); err != nil {
		t.Fatalf("second archive: %v", err)
	}
	list, err := env.Engine.ListMissions(env.Ctx, domain.MissionArchived)
	if err != nil || len(list) != 1 {
		t.Fatalf("archived list: %v %v", list, err)
	}

	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilter{MissionID: "mission-1"}, 50)
	if err != nil {
		t.Fatal(err)
	}
	var types []string
	for _, e := range evts {
		types = append(types, e.Type)
	}
	want := []string{events.MissionArchived, events.TaskClaimed, events.TaskLinked, events.TaskCreated, events.TaskCreated, events.MissionCreated}
	if fmt.Sprint(types) != fmt.Sprint(want) {
		t.Fatalf("events %v, want %v", types, want)
	}
	claim := evts[1]
	payload, err := events.Decode(claim)
	if err != nil || payload["agent_id"] != "agent-a" || claim.ActorID != "agent-a" {
		t.Fatalf("claim event %+v %v", claim, err)
	}
}

func TestRejectedLinkLeavesNoEvent(t *testing.T) {
	env := newTestEnv(t)
	a := env.task(t, "A", 2)
	before, err := env.Engine.Repo.LatestEventID(env.Ctx, "mission-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.LinkTasks(env.Ctx, a.ID, a.ID, "tester"); err == nil {
		t.Fatal("self link accepted")
	}
	after, err := env.Engine.Repo.LatestEventID(env.Ctx, "mission-1")
	if err != nil || after != before {
		t.Fatalf("event id moved from %d to %d (%v)", before, after, err)
	}
}

// Random link attempts must never leave a cycle behind, and every rejection
// must be a cycle error.
func TestRandomLinksStayAcyclic(t *testing.T) {
	env := newTestEnv(t)
	var tasks []domain.Task
	for i := 0; i < 12; i++ {
		tasks = append(tasks, env.task(t, fmt.Sprintf("t%d", i), 2))
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 120; i++ {
		a := tasks[rng.Intn(len(tasks))]
		b := tasks[rng.Intn(len(tasks))]
		_, err := env.Engine.LinkTasks(env.Ctx, a.ID, b.ID, "tester")
		if err != nil && !errors.Is(err, engine.ErrCycleDetected) {
			t.Fatalf("unexpected link error: %v", err)
		}
	}
	edges, err := env.Engine.ListDependencies(env.Ctx, "mission-1")
	if err != nil {
		t.Fatal(err)
	}
	blockers := map[string][]string{}
	for _, d := range edges {
		blockers[d.BlockedID] = append(blockers[d.BlockedID], d.BlockerID)
	}
	lookup := graph.MapBlockers(blockers)
	for _, d := range edges {
		back, err := graph.Reachable(env.Ctx, lookup, d.BlockerID, d.BlockedID)
		if err != nil {
			t.Fatal(err)
		}
		if back {
			t.Fatalf("cycle through %s -> %s", d.BlockerID, d.BlockedID)
		}
	}
	if len(edges) == 0 {
		t.Fatal("no edges were accepted")
	}
}
