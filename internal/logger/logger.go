package logger

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const timeFormat = "02-01-2006 15:04:05.000"

// ParseLevel maps DEBUG|INFO|WARN|ERROR|DISABLED to a zerolog level
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return zerolog.DebugLevel, nil
	case "", "INFO":
		return zerolog.InfoLevel, nil
	case "WARN":
		return zerolog.WarnLevel, nil
	case "ERROR":
		return zerolog.ErrorLevel, nil
	case "DISABLED":
		return zerolog.Disabled, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("incorrect log level %q", level)
	}
}

// New builds a console logger writing to out at the given level
func New(level string, out io.Writer) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    true,
		TimeFormat: timeFormat,
		FormatLevel: func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("%-6s", i))
		},
		FormatCaller: func(i interface{}) string {
			return shortCaller(fmt.Sprint(i))
		},
		PartsOrder: []string{
			zerolog.TimestampFieldName,
			zerolog.LevelFieldName,
			zerolog.CallerFieldName,
			zerolog.MessageFieldName,
		},
	}

	return zerolog.New(writer).Level(lvl).With().Timestamp().Caller().Logger(), nil
}

// shortCaller trims "dir/dir/file.go:12" down to "file.go:12"
func shortCaller(caller string) string {
	file, line, ok := strings.Cut(caller, ":")
	if !ok {
		return caller
	}
	if _, err := strconv.Atoi(line); err != nil {
		return caller
	}
	if i := strings.LastIndex(file, "/"); i >= 0 {
		file = file[i+1:]
	}
	return file + ":" + line
}
