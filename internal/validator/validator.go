// Package validator decides whether a command's result satisfies an
// exercise's expectation.
//
// The engine only produces executor.CommandResult values; a Validator
// grades them and a Recorder is told about passes. Checker is the
// built-in Validator that inspects command output and the sandbox.
package validator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/spencer-dollahite/clitutor/internal/executor"
	"github.com/spencer-dollahite/clitutor/internal/sandbox"
)

// Kind names a check.
type Kind string

const (
	OutputEquals    Kind = "output_equals"
	OutputContains  Kind = "output_contains"
	OutputRegex     Kind = "output_regex"
	ExitCode        Kind = "exit_code"
	FileExists      Kind = "file_exists"
	FileContains    Kind = "file_contains"
	DirWithFile     Kind = "dir_with_file"
	AnyFileContains Kind = "any_file_contains"
)

// Kinds lists every supported check.
var Kinds = []Kind{
	OutputEquals, OutputContains, OutputRegex, ExitCode,
	FileExists, FileContains, DirWithFile, AnyFileContains,
}

// fileContentSep separates file name and content in a FileContains
// expectation.
const fileContentSep = "::"

// Expectation describes what an exercise expects.
type Expectation struct {
	Kind     Kind
	Expected string
}

// Result is a grading outcome.
type Result struct {
	Passed  bool
	Message string
}

func pass(msg string) Result { return Result{Passed: true, Message: msg} }
func fail(msg string) Result { return Result{Message: msg} }

// Validator grades a command result.
type Validator interface {
	Validate(ctx context.Context, exp Expectation, res executor.CommandResult) Result
}

// Recorder is notified when an exercise is passed.
type Recorder interface {
	RecordPass(ctx context.Context, exerciseID string) error
}

// CwdSource reports the learner's working directory. Executors and
// surfaces implement it.
type CwdSource interface {
	Cwd() string
}

// Grade validates res and records a pass. A nil recorder is allowed.
func Grade(ctx context.Context, v Validator, rec Recorder, exerciseID string, exp Expectation, res executor.CommandResult) (Result, error) {
	r := v.Validate(ctx, exp, res)
	if !r.Passed || rec == nil {
		return r, nil
	}
	if err := rec.RecordPass(ctx, exerciseID); err != nil {
		return r, fmt.Errorf("recording pass for %s: %w", exerciseID, err)
	}
	return r, nil
}

// Checker validates against command output and sandbox state.
type Checker struct {
	provider sandbox.Provider
	cwd      CwdSource
	log      *zap.Logger

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

// NewChecker creates a Checker. cwd may be nil; when set, file checks that
// miss at the sandbox root are retried relative to the learner's
// directory.
func NewChecker(provider sandbox.Provider, cwd CwdSource, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		provider: provider,
		cwd:      cwd,
		log:      logger,
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate implements Validator.
func (c *Checker) Validate(ctx context.Context, exp Expectation, res executor.CommandResult) Result {
	var r Result
	switch exp.Kind {
	case OutputEquals:
		r = c.outputEquals(res, exp.Expected)
	case OutputContains:
		r = c.outputContains(res, exp.Expected)
	case OutputRegex:
		r = c.outputRegex(res, exp.Expected)
	case ExitCode:
		r = c.exitCode(res, exp.Expected)
	case FileExists:
		r = c.fileExists(ctx, exp.Expected)
	case FileContains:
		r = c.fileContains(ctx, exp.Expected)
	case DirWithFile:
		r = c.dirWithFile(ctx)
	case AnyFileContains:
		r = c.anyFileContains(ctx, exp.Expected)
	default:
		r = fail(fmt.Sprintf("Unknown validation type: %s", exp.Kind))
	}

	c.log.Debug("validated",
		zap.String("kind", string(exp.Kind)),
		zap.Bool("passed", r.Passed),
	)
	return r
}

func (c *Checker) outputEquals(res executor.CommandResult, expected string) Result {
	if strings.TrimSpace(res.Stdout) == strings.TrimSpace(expected) {
		return pass("Correct!")
	}
	return fail("Output doesn't match expected result.")
}

func (c *Checker) outputContains(res executor.CommandResult, expected string) Result {
	if strings.Contains(res.Stdout+res.Stderr, strings.TrimSpace(expected)) {
		return pass("Correct!")
	}
	return fail("Output doesn't contain expected text.")
}

func (c *Checker) outputRegex(res executor.CommandResult, expected string) Result {
	re, err := c.pattern(expected)
	if err != nil {
		return fail("Invalid expected pattern.")
	}
	if re.MatchString(res.Stdout + res.Stderr) {
		return pass("Correct!")
	}
	return fail("Output doesn't match expected pattern.")
}

func (c *Checker) pattern(expr string) (*regexp.Regexp, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if re, ok := c.patterns[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	c.patterns[expr] = re
	return re, nil
}

func (c *Checker) exitCode(res executor.CommandResult, expected string) Result {
	want, err := strconv.Atoi(strings.TrimSpace(expected))
	if err != nil {
		return fail("Invalid expected exit code.")
	}
	if res.ExitCode == want {
		return pass("Correct!")
	}
	return fail(fmt.Sprintf("Expected exit code %d, got %d.", want, res.ExitCode))
}

// cwdRelative joins name onto the learner's directory relative to the
// sandbox root. It reports false when the learner is at the root or
// outside the sandbox.
func (c *Checker) cwdRelative(name string) (string, bool) {
	if c.cwd == nil {
		return "", false
	}
	root := c.provider.Root()
	cwd := c.cwd.Cwd()
	if root == "" || cwd == "" || cwd == root {
		return "", false
	}
	rel, ok := strings.CutPrefix(cwd, strings.TrimSuffix(root, "/")+"/")
	if !ok {
		return "", false
	}
	return rel + "/" + name, true
}

// locate returns the sandbox-relative path of name, trying the root first
// and then the learner's directory.
func (c *Checker) locate(ctx context.Context, name string) (string, bool) {
	if c.provider.FileExists(ctx, name) {
		return name, true
	}
	if alt, ok := c.cwdRelative(name); ok && c.provider.FileExists(ctx, alt) {
		return alt, true
	}
	return "", false
}

func (c *Checker) fileExists(ctx context.Context, expected string) Result {
	name := strings.TrimSpace(expected)
	if _, ok := c.locate(ctx, name); ok {
		return pass("Correct! File created.")
	}
	return fail(fmt.Sprintf("File '%s' not found.", name))
}

func (c *Checker) fileContains(ctx context.Context, expected string) Result {
	name, content, ok := strings.Cut(expected, fileContentSep)
	if !ok {
		return fail("Invalid file_contains spec.")
	}
	name = strings.TrimSpace(name)

	found, ok := c.locate(ctx, name)
	if !ok {
		return fail(fmt.Sprintf("File '%s' not found.", name))
	}
	data, err := c.provider.ReadFile(ctx, found)
	if err != nil {
		c.log.Warn("reading file for validation", zap.String("file", found), zap.Error(err))
		return fail(fmt.Sprintf("File '%s' not found.", name))
	}
	if strings.Contains(string(data), strings.TrimSpace(content)) {
		return pass("Correct! File contains expected content.")
	}
	return fail("File doesn't contain expected content.")
}

func (c *Checker) dirWithFile(ctx context.Context) Result {
	if c.provider.HasDirWithFile(ctx) {
		return pass("Correct! Directory with file created.")
	}
	return fail("No directory containing a file was found. " +
		"Create a directory and then create a file inside it.")
}

func (c *Checker) anyFileContains(ctx context.Context, expected string) Result {
	text := strings.TrimSpace(expected)
	if c.provider.FindFileContaining(ctx, text) {
		return pass("Correct! File contains expected content.")
	}
	return fail(fmt.Sprintf("No file found containing '%s'.", text))
}

// ParseKind converts a name to a Kind.
func ParseKind(name string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == name {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown validation type %q", name)
}
