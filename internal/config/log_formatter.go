package config

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	colorRed         = 31
	colorGreen       = 32
	colorYellow      = 33
	colorBlue        = 36
	colorGray        = 37
	colorLightGreen  = 92
	colorLightYellow = 93
	colorCyan        = 96
)

// LogFormatter renders entries as colored key=value lines with sorted fields.
type LogFormatter struct {
	NoColor bool
}

func (f *LogFormatter) Format(entry *log.Entry) ([]byte, error) {
	var b strings.Builder

	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	f.pair(&b, "level", level, levelColor(entry.Level))
	f.pair(&b, "ts", entry.Time.Format("2006-01-02 15:04:05.000"), colorLightYellow)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s := fieldValue(entry.Data[k])
		if s == "" {
			continue
		}
		valueColor := colorCyan
		if _, err := strconv.ParseFloat(s, 64); err == nil {
			valueColor = colorGreen
		} else if strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
			valueColor = colorLightYellow
		}
		f.pair(&b, k, s, valueColor)
	}
	f.pair(&b, "msg", strconv.Quote(entry.Message), colorLightGreen)

	out := strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(b.String())
	return []byte(out + "\n"), nil
}

func (f *LogFormatter) pair(b *strings.Builder, key, value string, valueColor int) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
	if f.NoColor {
		fmt.Fprintf(b, "%s=%s", key, value)
		return
	}
	fmt.Fprintf(b, "\x1b[%dm%s\x1b[0m=\x1b[%dm%s\x1b[0m", colorCyan, key, valueColor, value)
}

func fieldValue(val any) string {
	if err, ok := val.(error); ok {
		val = err.Error()
	}
	m, err := json.Marshal(val)
	if err != nil {
		return fmt.Sprint(val)
	}
	return string(m)
}

func levelColor(level log.Level) int {
	switch level {
	case log.DebugLevel, log.TraceLevel:
		return colorGray
	case log.WarnLevel:
		return colorYellow
	case log.ErrorLevel, log.FatalLevel, log.PanicLevel:
		return colorRed
	default:
		return colorBlue
	}
}
