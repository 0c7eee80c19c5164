package protocol

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateInitScript(t *testing.T) {
	script := GenerateInitScript(InitOptions{SandboxPath: "/tmp/sb"})

	for _, want := range []string{
		"export HOME=/tmp/sb\n",
		`export PATH="/usr/local/bin:/usr/bin:/bin"`,
		`export TERM="xterm-256color"`,
		`student@clitutor`,
		`PS0=$'\x1f__CLITUTOR_CMD_START__\x1f'`,
		`printf '\x1f__CLITUTOR_CMD_END__:%d:%s\x1f' "$rc" "$PWD"`,
		`PROMPT_COMMAND="__clitutor_prompt_cmd"`,
		`sudo() { echo "sudo: not allowed in the sandbox"; return 1; }`,
		`parted() { echo "parted: not allowed in the sandbox"; return 1; }`,
		"set -o ignoreeof",
		"unset HISTFILE",
	} {
		assert.Contains(t, script, want)
	}
	assert.True(t, strings.HasSuffix(script, "cd /tmp/sb\n"))
}

func TestGenerateInitScriptCustomIdentity(t *testing.T) {
	script := GenerateInitScript(InitOptions{SandboxPath: "/x y", User: "ada", Hostname: "lab"})
	assert.Contains(t, script, "ada@lab")
	assert.NotContains(t, script, "cd /x y\n")
}

func TestWriteInitScript(t *testing.T) {
	path, cleanup, err := WriteInitScript(InitOptions{SandboxPath: t.TempDir()})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.Contains(t, path, "clitutor-bashrc-")

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestInitScriptParses(t *testing.T) {
	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}
	path, cleanup, err := WriteInitScript(InitOptions{SandboxPath: t.TempDir()})
	require.NoError(t, err)
	defer cleanup()

	out, err := exec.Command(bash, "-n", path).CombinedOutput()
	assert.NoError(t, err, string(out))
}
