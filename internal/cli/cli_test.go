package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"opsdesk/internal/config"
	"opsdesk/internal/orchestrator"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testConfig writes a keyless config with its own database and returns
// its path.
func testConfig(t *testing.T) string {
	t.Helper()
	for _, env := range []string{"OPENROUTER_API_KEY", "GEMINI_API_KEY", "OPSDESK_PROVIDER", "OPSDESK_MODEL", "OPSDESK_DB", "OPSDESK_LOG_LEVEL"} {
		t.Setenv(env, "")
	}
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(dir, "opsdesk.db")
	cfg.Logging.Level = "error"
	cfg.Knowledge.Enabled = false
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, cfg.Save(path))
	return path
}

func execute(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func field(text, key string) string {
	for _, line := range strings.Split(text, "\n") {
		if v, ok := strings.CutPrefix(line, key+": "); ok {
			return v
		}
	}
	return ""
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"ask", "choose", "undo", "sessions", "team", "docs", "mcp"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}

	ask, _, err := root.Find([]string{"ask"})
	require.NoError(t, err)
	agent := ask.Flags().Lookup("agent")
	require.NotNil(t, agent)
	assert.Equal(t, "true", agent.DefValue)
	assert.NotNil(t, ask.Flags().Lookup("audio"))
	assert.Equal(t, "s", ask.Flags().Lookup("session").Shorthand)

	choose, _, err := root.Find([]string{"choose"})
	require.NoError(t, err)
	assert.Error(t, cobra.ExactArgs(2)(choose, []string{"only-one"}))
}

func TestAskWithoutKeyRepliesWithFailure(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "ask", "add", "a", "task")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, orchestrator.EngineFailureMessage))
	sessionID := field(out, "session")
	require.NotEmpty(t, sessionID)
	assert.NotContains(t, out, "undo with")

	out, err = execute(t, cfg, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, sessionID)
	assert.Contains(t, out, "add a task")
	assert.Contains(t, out, "1 of 1 sessions")

	out, err = execute(t, cfg, "sessions", "--show", sessionID)
	require.NoError(t, err)
	assert.Contains(t, out, "user: add a task")

	_, err = execute(t, cfg, "sessions", "--delete", sessionID)
	require.NoError(t, err)
	out, err = execute(t, cfg, "sessions")
	require.NoError(t, err)
	assert.Equal(t, "No sessions yet.\n", out)
}

func TestAskNeedsInput(t *testing.T) {
	_, err := execute(t, testConfig(t), "ask", "  ")
	assert.ErrorContains(t, err, "nothing to ask")
}

func TestChooseValidatesOption(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "choose", "m1", "zero")
	assert.ErrorContains(t, err, "positive number")

	_, err = execute(t, cfg, "choose", "missing", "1")
	assert.Error(t, err)
}

func TestUndoUnknownMessage(t *testing.T) {
	_, err := execute(t, testConfig(t), "undo", "missing")
	assert.ErrorContains(t, err, "undo missing")
}

func TestTeamAndDocs(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "team", "list")
	require.NoError(t, err)
	assert.Equal(t, "No team_member records yet.\n", out)

	out, err = execute(t, cfg, "team", "add", "--name", "Ana", "--role", "designer")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Added team member Ana ("))

	out, err = execute(t, cfg, "team", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Ana")
	assert.Contains(t, out, "designer")

	_, err = execute(t, cfg, "team", "add")
	assert.Error(t, err)

	_, err = execute(t, cfg, "docs", "add", "--title", "Empty")
	assert.ErrorContains(t, err, "document is empty")

	docPath := filepath.Join(t.TempDir(), "policy.md")
	require.NoError(t, os.WriteFile(docPath, []byte("Refunds within 30 days."), 0o600))
	out, err = execute(t, cfg, "docs", "add", "--title", "Refund policy", "--file", docPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Added document Refund policy")

	out, err = execute(t, cfg, "docs", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Refund policy")
}

func TestAudioMime(t *testing.T) {
	assert.Equal(t, "audio/wav", audioMime("note.WAV"))
	assert.Equal(t, "audio/mp3", audioMime("note.mp3"))
	assert.Equal(t, "application/octet-stream", audioMime("note.unknownext"))
}
