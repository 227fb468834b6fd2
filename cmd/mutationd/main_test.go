package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainwf "github.com/garyjia/mutation-workflow/internal/domain/workflow"
	httpapi "github.com/garyjia/mutation-workflow/internal/interfaces/http"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeTestConfig(t *testing.T) (path, dir string) {
	t.Helper()
	dir = t.TempDir()
	path = filepath.Join(dir, "config.yaml")
	body := `
database:
  path: ` + filepath.Join(dir, "mutations.db") + `
auth:
  jwt_secret: "` + testSecret + `"
  issuer: mutation-test
mail:
  host: smtp.example.org
  from: mutations@example.org
storage:
  documents_dir: ` + filepath.Join(dir, "documents") + `
referential:
  path: ../../configs/referential.yaml
logger:
  level: error
  output_path: stderr
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path, dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCmd(t *testing.T) {
	path, _ := writeTestConfig(t)

	out, err := run(t, "--config", path, "token", "--sub", "u-42", "--role", "dgr", "--name", "Inès Koné")
	require.NoError(t, err)

	auth, err := httpapi.NewAuthenticator(httpapi.AuthConfig{Secret: testSecret, Issuer: "mutation-test"})
	require.NoError(t, err)
	actor, err := auth.Parse(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "u-42", actor.ID)
	assert.Equal(t, domainwf.RoleDGR, actor.Role)
	assert.Equal(t, "Inès Koné", actor.Name)
}

func TestTokenCmd_Errors(t *testing.T) {
	path, _ := writeTestConfig(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing role", args: []string{"--config", path, "token", "--sub", "u-1"}},
		{name: "unknown role", args: []string{"--config", path, "token", "--sub", "u-1", "--role", "MAYOR"}},
		{name: "reserved subject", args: []string{"--config", path, "token", "--sub", "public", "--role", "AGENT"}},
		{name: "missing config", args: []string{"--config", filepath.Join(t.TempDir(), "none.yaml"), "token", "--sub", "u-1", "--role", "AGENT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestMigrateCmd(t *testing.T) {
	path, dir := writeTestConfig(t)

	out, err := run(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.NotContains(t, out, "0 migration(s)")
	assert.FileExists(t, filepath.Join(dir, "mutations.db"))

	out, err = run(t, "--config", path, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "0 migration(s) applied")
}

func TestEffectsCmd_NothingDue(t *testing.T) {
	path, _ := writeTestConfig(t)

	out, err := run(t, "--config", path, "effects")
	require.NoError(t, err)
	assert.Contains(t, out, "0 stale task(s) released, 0 task(s) attempted")
}

func TestExportCmd_RejectsUnknownStatus(t *testing.T) {
	path, dir := writeTestConfig(t)
	output := filepath.Join(dir, "register.xlsx")

	_, err := run(t, "--config", path, "export", "--output", output, "--status", "PERDUE")
	require.Error(t, err)
	assert.NoFileExists(t, output)
}
