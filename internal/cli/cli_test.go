package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI executes the root command and decodes its JSON output into v.
func runCLI(t *testing.T, v any, args ...string) {
	t.Helper()
	var buf bytes.Buffer
	out = &buf
	t.Cleanup(func() { out = os.Stdout })

	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute(), "commanddeck %v", args)
	if v != nil {
		require.NoError(t, json.Unmarshal(buf.Bytes(), v), buf.String())
	}
}

func TestCommandFlow(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	color.NoColor = true

	dir := t.TempDir()
	t.Setenv("COMMANDDECK_STORAGE_PATH", filepath.Join(dir, "deck.db"))
	t.Setenv("COMMANDDECK_MEMORY_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("COMMANDDECK_LOG_FILE", filepath.Join(dir, "deck.log"))

	var board struct{ ID string }
	runCLI(t, &board, "board", "create", "Launch", "--json")
	require.NotEmpty(t, board.ID)

	var other, activated struct{ ID string }
	runCLI(t, &other, "board", "create", "Side", "--json")
	runCLI(t, &activated, "board", "activate", board.ID, "--json")
	assert.Equal(t, board.ID, activated.ID)
	assert.NotEqual(t, other.ID, activated.ID)

	var list struct{ Key, BoardID string }
	runCLI(t, &list, "list", "create", "Needs", "Design", "--json")
	assert.Equal(t, "needs-design", list.Key)
	assert.Equal(t, board.ID, list.BoardID)

	var milestone struct{ ID, Kind string }
	runCLI(t, &milestone, "milestone", "create", "Preflight", "--json")
	assert.Equal(t, "preflight", milestone.Kind)

	var card struct {
		ID     string
		IsEval bool
	}
	runCLI(t, &card, "card", "create", "EVAL:", "audit", "--milestone", milestone.ID, "--description", "check X", "--json")
	assert.True(t, card.IsEval)

	var moved struct {
		Findings *struct {
			Revision int
			Body     string
		}
	}
	runCLI(t, &moved, "card", "move", card.ID, "qa", "--json")
	require.NotNil(t, moved.Findings)
	assert.Equal(t, 1, moved.Findings.Revision)
	assert.Contains(t, moved.Findings.Body, "check X")

	var artifacts []struct{ ArtifactType string }
	runCLI(t, &artifacts, "artifact", "list", "--milestone", milestone.ID, "--type", "findings", "--json")
	assert.Len(t, artifacts, 1)

	var appended struct{ Applied bool }
	runCLI(t, &appended, "memory", "append", "risk1", "--source", "user", "--bucket", "trb",
		"--value", `{"summary":"Token refresh races"}`, "--json")
	assert.True(t, appended.Applied)

	var exported struct {
		Path  string
		Count int
	}
	runCLI(t, &exported, "memory", "export", "--json")
	assert.Equal(t, 1, exported.Count)
	assert.Equal(t, filepath.Join(dir, "exports", board.ID+".json"), exported.Path)

	data, err := os.ReadFile(exported.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Token refresh races")

	var status struct {
		Memory struct {
			Stats struct{ ObjectCount int }
		}
	}
	runCLI(t, &status, "status", "--json")
	assert.Equal(t, 1, status.Memory.Stats.ObjectCount)

	_, err = os.Stat(filepath.Join(dir, "deck.log"))
	assert.NoError(t, err)
}
