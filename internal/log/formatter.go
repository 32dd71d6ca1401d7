package log

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// leading fields are printed first, in this order; the rest follow sorted by key.
var leadingFields = []string{"component", "op"}

type formatter struct {
	pattern string
	time    string
}

// Format supports %time, %level, %field, %msg, %caller, %func and %n.
// The pattern is expanded in one pass, so placeholders inside the message or
// field values are printed verbatim.
func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	tokens := []string{
		"%time", entry.Time.Format(f.time),
		"%level", strings.ToUpper(entry.Level.String()),
		"%field", buildFields(entry),
		"%msg", entry.Message,
		"%n", "\n",
	}
	if strings.Contains(f.pattern, "%caller") || strings.Contains(f.pattern, "%func") {
		file, line, fn := findCaller()
		tokens = append(tokens, "%caller", fmt.Sprintf("%s:%d", file, line), "%func", fn)
	}
	output := strings.NewReplacer(tokens...).Replace(f.pattern)
	if !strings.HasSuffix(output, "\n") {
		output += "\n"
	}
	return []byte(output), nil
}

// findCaller walks the stack past logrus and the adapter.
func findCaller() (file string, line int, fn string) {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.Function, "sirupsen/logrus") &&
			!strings.Contains(frame.Function, ".(*logrusAdapter).") {
			file = frame.File
			if idx := strings.LastIndex(file, "/"); idx != -1 {
				file = file[idx+1:]
			}
			fn = frame.Function
			if idx := strings.LastIndex(fn, "."); idx != -1 {
				fn = fn[idx+1:]
			}
			return file, frame.Line, fn
		}
		if !more {
			return "unknown", 0, "unknown"
		}
	}
}

func buildFields(entry *logrus.Entry) string {
	if len(entry.Data) == 0 {
		return ""
	}
	fields := make([]string, 0, len(entry.Data))
	for _, key := range leadingFields {
		if val, ok := entry.Data[key]; ok {
			fields = append(fields, key+"="+fmt.Sprint(val))
		}
	}

	rest := make([]string, 0, len(entry.Data))
	for key := range entry.Data {
		if key == "component" || key == "op" {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	for _, key := range rest {
		fields = append(fields, key+"="+fmt.Sprint(entry.Data[key]))
	}
	return strings.Join(fields, " ")
}
