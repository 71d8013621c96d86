package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Fguedes90/opencode-mission-control/internal/domain"
	"github.com/Fguedes90/opencode-mission-control/internal/engine"
	"github.com/Fguedes90/opencode-mission-control/internal/ids"
)

// missionNamespace scopes directory-derived mission ids.
var missionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("mission-control/mission"))

// DeriveMissionID maps a working directory to a stable mission id. The same
// absolute path always yields the same id.
func DeriveMissionID(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	abs = filepath.Clean(abs)
	sum := uuid.NewSHA1(missionNamespace, []byte(abs)).String()
	return ids.Slug(filepath.Base(abs)) + "-" + strings.ReplaceAll(sum, "-", "")[:12], nil
}

// MissionID returns override when set, otherwise the id derived from dir.
// An empty dir means the process working directory.
func MissionID(dir, override string) (string, error) {
	if id := strings.TrimSpace(override); id != "" {
		return id, nil
	}
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("working directory: %w", err)
		}
		dir = wd
	}
	return DeriveMissionID(dir)
}

// ResolveMission picks the active mission and creates it on the fly when the
// id was derived from a directory. An explicit override must already exist.
func ResolveMission(ctx context.Context, e engine.Engine, dir, override, actorID string) (domain.Mission, error) {
	id, err := MissionID(dir, override)
	if err != nil {
		return domain.Mission{}, err
	}
	m, err := e.GetMission(ctx, id)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, engine.ErrMissionNotFound) || strings.TrimSpace(override) != "" {
		return domain.Mission{}, err
	}
	title := dir
	if title == "" {
		title, _ = os.Getwd()
	}
	m, err = e.CreateMission(ctx, id, filepath.Base(title), actorID)
	if errors.Is(err, engine.ErrInvalidOperation) {
		// lost a creation race with another process
		return e.GetMission(ctx, id)
	}
	return m, err
}
