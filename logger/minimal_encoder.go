package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

// Everforest-ish palette; the console is for humans, the log file keeps full JSON.
const (
	colorReset  = "\x1b[0m"
	colorBold   = "\x1b[1m"
	colorTime   = "\x1b[38;5;107m"
	colorName   = "\x1b[38;5;208m"
	colorFg     = "\x1b[38;5;223m"
	colorID     = "\x1b[38;5;109m"
	colorNumber = "\x1b[38;5;108m"
	colorWarn   = "\x1b[38;5;179m"
	colorWarnBg = "\x1b[48;5;58m"
	colorErr    = "\x1b[38;5;167m"
	colorErrBg  = "\x1b[48;5;52m"
)

var bufferPool = buffer.NewPool()

// minimalEncoder renders "13:04:35  pulse  Worker pool drained  3 workers  a.vcf:120"
type minimalEncoder struct {
	zapcore.Encoder // field accumulation for With(); rendering is ours
}

func newMinimalEncoder() *minimalEncoder {
	return &minimalEncoder{Encoder: zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())}
}

func (enc *minimalEncoder) Clone() zapcore.Encoder {
	return &minimalEncoder{Encoder: enc.Encoder.Clone()}
}

func (enc *minimalEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	final := bufferPool.Get()

	final.AppendString(colorTime)
	final.AppendString(ent.Time.Format("15:04:05"))
	final.AppendString(colorReset)

	if lvl := levelString(ent.Level); lvl != "" {
		final.AppendString("  ")
		final.AppendString(lvl)
	}

	if ent.LoggerName != "" {
		final.AppendString("  ")
		final.AppendString(colorName)
		final.AppendString(ent.LoggerName)
		final.AppendString(colorReset)
	}

	final.AppendString("  ")
	final.AppendString(colorFg)
	final.AppendString(ent.Message)
	final.AppendString(colorReset)

	if summary := summarizeFields(fields); summary != "" {
		final.AppendString("  ")
		final.AppendString(summary)
	}

	final.AppendString("\n")
	if ent.Stack != "" && ent.Level >= zapcore.ErrorLevel {
		final.AppendString(ent.Stack)
		final.AppendString("\n")
	}
	return final, nil
}

func levelString(level zapcore.Level) string {
	switch level {
	case zapcore.DebugLevel, zapcore.InfoLevel:
		return ""
	case zapcore.WarnLevel:
		return colorBold + colorWarnBg + colorWarn + "WARN" + colorReset
	default:
		return colorBold + colorErrBg + colorErr + level.CapitalString() + colorReset
	}
}

func fieldValue(field zapcore.Field) string {
	switch field.Type {
	case zapcore.StringType:
		return field.String
	case zapcore.Int64Type, zapcore.Int32Type, zapcore.Int16Type, zapcore.Int8Type,
		zapcore.Uint64Type, zapcore.Uint32Type, zapcore.Uint16Type, zapcore.Uint8Type:
		return fmt.Sprintf("%d", field.Integer)
	case zapcore.BoolType:
		return fmt.Sprintf("%t", field.Integer == 1)
	case zapcore.ErrorType:
		if err, ok := field.Interface.(error); ok {
			return err.Error()
		}
	}
	if field.Interface != nil {
		return fmt.Sprintf("%v", field.Interface)
	}
	return ""
}

// summarizeFields keeps the console line short: identifiers, provenance and
// a few counters. Everything else is only in the log file.
func summarizeFields(fields []zapcore.Field) string {
	var parts []string
	var file, line string

	for _, field := range fields {
		val := fieldValue(field)
		if val == "" {
			continue
		}
		switch field.Key {
		case FieldSymbol:
			parts = append([]string{val}, parts...)
		case FieldFile:
			file = val
		case FieldLine:
			line = val
		case FieldVRSID, FieldRunID, FieldExpression:
			parts = append(parts, colorID+val+colorReset)
		case FieldPID:
			parts = append(parts, "pid "+colorNumber+val+colorReset)
		case FieldWorkers, FieldCount, FieldErrors, FieldDispatched, FieldCompleted:
			parts = append(parts, colorNumber+val+colorReset+" "+field.Key)
		case FieldDurationMS:
			parts = append(parts, colorNumber+val+colorReset+"ms")
		case FieldError:
			parts = append(parts, colorErr+val+colorReset)
		}
	}

	if file != "" {
		loc := file
		if line != "" {
			loc += ":" + line
		}
		parts = append(parts, colorFg+loc+colorReset)
	}
	return strings.Join(parts, "  ")
}
