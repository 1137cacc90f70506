package sandbox

import (
	"regexp"
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"
)

// Error is a patch failure with its source location, when one could be
// recovered. Line 0 means no location was found in the failure text.
type Error struct {
	Message string
	Line    int
	Stack   string
}

func (e *Error) Error() string { return e.Message }

var (
	chunkLineRe = regexp.MustCompile(ChunkName + `:(\d+):`)
	bareLineRe  = regexp.MustCompile(`(?i)line:?\s*(\d+)`)
)

// wrapLuaError converts a gopher-lua failure into an Error, pulling the
// patch source line out of the message. Compile errors report the
// offending line directly; runtime errors carry it in the traceback.
func wrapLuaError(err error) *Error {
	msg := err.Error()
	stack := ""

	if apiErr, ok := err.(*lua.ApiError); ok {
		msg = apiErr.Object.String()
		stack = apiErr.StackTrace
	}

	line := extractLine(msg)
	if line == 0 {
		line = extractLine(stack)
	}

	// Keep the first line of multi-line messages; the rest is stack.
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		if stack == "" {
			stack = msg[i+1:]
		}
		msg = msg[:i]
	}

	return &Error{Message: msg, Line: line, Stack: stack}
}

func extractLine(s string) int {
	if m := chunkLineRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := bareLineRe.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}
