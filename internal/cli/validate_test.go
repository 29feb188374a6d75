package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runValidateCommand(t *testing.T, format string, args ...string) (*bytes.Buffer, error) {
	t.Helper()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	return buf, cmd.Execute()
}

func TestValidateValidTree(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	buf, err := runValidateCommand(t, "text", treeDir)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓ 4 serialized file(s) valid")
}

func TestValidateValidTreeJSON(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	buf, err := runValidateCommand(t, "json", treeDir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 4, resp.Data.Files)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	buf, err := runValidateCommand(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error")
}

func TestValidateBrokenFile(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	broken := `id: not-a-uuid
partition: master
path: /content/broken
name: broken
template: 11111111-1111-1111-1111-111111111111
`
	require.NoError(t, os.WriteFile(
		filepath.Join(treeDir, "broken.yaml"), []byte(broken), 0o644))

	buf, err := runValidateCommand(t, "text", treeDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed")
	assert.Contains(t, buf.String(), "✗ Validation failed")
	assert.Contains(t, buf.String(), "invalid id")
}

func TestValidateDuplicateIdentity(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	// Same identity as content/home.yaml, different path.
	dup := `id: 20000000-0000-0000-0000-000000000001
partition: master
path: /content/copy
name: copy
template: 11111111-1111-1111-1111-111111111111
`
	require.NoError(t, os.WriteFile(
		filepath.Join(treeDir, "content", "copy.yaml"), []byte(dup), 0o644))

	buf, err := runValidateCommand(t, "text", treeDir)
	require.Error(t, err)
	assert.Contains(t, buf.String(), "duplicate id")
	assert.Contains(t, buf.String(), "copy.yaml")
}

func TestValidateBrokenFileJSON(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	require.NoError(t, os.WriteFile(
		filepath.Join(treeDir, "broken.yaml"), []byte("id: nope\npartition: master\npath: /broken\n"), 0o644))

	buf, err := runValidateCommand(t, "json", treeDir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E001", resp.Error.Code)
}

func TestValidateScopeFile(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	scopeFile := filepath.Join(t.TempDir(), "scope.cue")
	require.NoError(t, os.WriteFile(scopeFile, []byte(`scope: {
	partitions: {
		master: {include: ["/content"]}
	}
}
`), 0o644))

	buf, err := runValidateCommand(t, "text", "--scope", scopeFile, treeDir)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "✓")
}

func TestValidateBadScopeFile(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	scopeFile := filepath.Join(t.TempDir(), "scope.cue")
	require.NoError(t, os.WriteFile(scopeFile,
		[]byte("scope: {partitions: {master: {}}}\n"), 0o644))

	buf, err := runValidateCommand(t, "text", "--scope", scopeFile, treeDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "include path is required")
}

func TestValidateVerboseOutput(t *testing.T) {
	treeDir := t.TempDir()
	writeTestTree(t, treeDir)

	stdoutBuf := &bytes.Buffer{}
	stderrBuf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(stdoutBuf)
	cmd.SetErr(stderrBuf) // Verbose output goes to stderr
	cmd.SetArgs([]string{treeDir})

	require.NoError(t, cmd.Execute())

	verboseOutput := stderrBuf.String()
	assert.Contains(t, verboseOutput, "Validating")
	assert.Contains(t, verboseOutput, "home.yaml")
}
