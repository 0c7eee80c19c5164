package protocol

import (
	"fmt"
	"os"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/spencer-dollahite/clitutor/internal/safety"
)

// Marker bodies. The framing byte is SentinelChar.
const (
	SentinelChar   = "\x1f"
	CmdStartMarker = "__CLITUTOR_CMD_START__"
	CmdEndMarker   = "__CLITUTOR_CMD_END__"
)

// InitOptions parameterizes the init script.
type InitOptions struct {
	SandboxPath string
	User        string
	Hostname    string
}

func (o *InitOptions) setDefaults() {
	if o.User == "" {
		o.User = "student"
	}
	if o.Hostname == "" {
		o.Hostname = "clitutor"
	}
}

// GenerateInitScript returns an rcfile that instruments bash with the
// boundary markers and the sandbox environment.
func GenerateInitScript(opts InitOptions) string {
	opts.setDefaults()
	home := shellquote.Join(opts.SandboxPath)

	var b strings.Builder
	b.WriteString("# clitutor sandbox rcfile, generated\n")
	fmt.Fprintf(&b, "export HOME=%s\n", home)
	b.WriteString("export PATH=\"/usr/local/bin:/usr/bin:/bin\"\n")
	b.WriteString("export TERM=\"xterm-256color\"\n\n")

	fmt.Fprintf(&b, "export PS1='\\[\\033[01;32m\\]%s@%s\\[\\033[00m\\]:\\[\\033[01;34m\\]\\w\\[\\033[00m\\]\\$ '\n\n",
		opts.User, opts.Hostname)

	b.WriteString(`alias ls='ls --color=auto'
alias grep='grep --color=auto'
alias fgrep='fgrep --color=auto'
alias egrep='egrep --color=auto'
alias ll='ls -alF'
alias la='ls -A'
alias l='ls -CF'

export GCC_COLORS='error=01;31:warning=01;35:note=01;36:caret=01;32:locus=01:quote=01'

HISTCONTROL=ignoreboth
HISTSIZE=1000
shopt -s histappend
shopt -s checkwinsize

[ -x /usr/bin/lesspipe ] && eval "$(SHELL=/bin/sh lesspipe)"

if [ -f /etc/bash_completion ] && ! shopt -oq posix; then
    . /etc/bash_completion
fi

`)

	fmt.Fprintf(&b, "PS0=$'\\x1f%s\\x1f'\n", CmdStartMarker)
	b.WriteString("__clitutor_prompt_cmd() {\n")
	b.WriteString("    local rc=$?\n")
	fmt.Fprintf(&b, "    printf '\\x1f%s:%%d:%%s\\x1f' \"$rc\" \"$PWD\"\n", CmdEndMarker)
	b.WriteString("}\n")
	b.WriteString("PROMPT_COMMAND=\"__clitutor_prompt_cmd\"\n\n")

	b.WriteString("_msg() { printf '\\033[1;36m%b\\033[0m\\n' \"$*\"; }\n\n")

	for _, cmd := range safety.BlockedCommands {
		fmt.Fprintf(&b, "%s() { echo \"%s: not allowed in the sandbox\"; return 1; }\n", cmd, cmd)
	}

	b.WriteString("\nset -o ignoreeof\n")
	b.WriteString("unset HISTFILE\n\n")
	fmt.Fprintf(&b, "cd %s\n", home)
	return b.String()
}

// WriteInitScript writes the init script to a private temp file. The
// returned cleanup removes it.
func WriteInitScript(opts InitOptions) (string, func(), error) {
	f, err := os.CreateTemp("", "clitutor-bashrc-*.sh")
	if err != nil {
		return "", nil, fmt.Errorf("creating init script: %w", err)
	}
	name := f.Name()
	cleanup := func() { _ = os.Remove(name) }

	if _, err := f.WriteString(GenerateInitScript(opts)); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("writing init script: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("chmod init script: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing init script: %w", err)
	}
	return name, cleanup, nil
}
