package compiler

import (
	"strconv"
	"strings"
)

// functionTemplate renders a function call's already-emitted argument SQL
// fragments into the final expression. The dispatch table is closed and
// case-insensitive by function name; an unregistered name falls back to
// defaultFunctionTemplate (§4.7.1: forward-compatible, no error).
type functionTemplate func(args []string) string

var functionTemplates = map[string]functionTemplate{
	"SUM": func(args []string) string {
		return strings.Join(args, " + ")
	},
	"IF": func(args []string) string {
		if len(args) != 3 {
			return defaultFunctionTemplate(args)
		}
		return "CASE WHEN " + args[0] + " THEN " + args[1] + " ELSE " + args[2] + " END"
	},
	"AVG": func(args []string) string {
		if len(args) == 0 {
			return "0"
		}
		return "(" + strings.Join(args, " + ") + ") / " + strconv.Itoa(len(args))
	},
	"COUNT": func(args []string) string {
		return strconv.Itoa(len(args))
	},
	"MIN": func(args []string) string { return nestedCall("LEAST", args) },
	"MAX": func(args []string) string { return nestedCall("GREATEST", args) },
	"AND": func(args []string) string { return joinLogical(args, "AND") },
	"OR":  func(args []string) string { return joinLogical(args, "OR") },
	"NOT": func(args []string) string {
		if len(args) != 1 {
			return defaultFunctionTemplate(args)
		}
		return "NOT (" + args[0] + ")"
	},
}

// defaultFunctionTemplate joins the argument SQL as `arg1, arg2, …`. For any
// function name not in the table above, emitFunction wraps that list as
// `name(arg1, arg2, …)`; IF and NOT with the wrong argument count return the
// bare list.
func defaultFunctionTemplate(args []string) string {
	return strings.Join(args, ", ")
}

func joinLogical(args []string, op string) string {
	wrapped := make([]string, len(args))
	for i, a := range args {
		wrapped[i] = "(" + a + ")"
	}
	return strings.Join(wrapped, " "+op+" ")
}

func nestedCall(fn string, args []string) string {
	return fn + "(" + strings.Join(args, ", ") + ")"
}
