// Package protocol instruments an interactive bash so the engine can see
// where each command starts and ends.
//
// The generated init script prints a start marker through PS0 just before
// a command runs and an end marker carrying the exit status and working
// directory from PROMPT_COMMAND once it finishes. Both are framed by the
// ASCII unit separator (0x1F), which ordinary programs do not print.
//
//	\x1f__CLITUTOR_CMD_START__\x1f
//	\x1f__CLITUTOR_CMD_END__:<rc>:<cwd>\x1f
//
// Demuxer consumes the raw PTY stream, strips the markers from what is
// displayed and assembles the bytes between them into command results.
package protocol
