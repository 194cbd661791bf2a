// Package flagx separates the configuration flags shared by every command
// from the flags owned by a single subcommand.
package flagx

import (
	"flag"
	"io"
	"strings"
)

// SplitArgs partitions args into the allowed flags (with their values) and
// everything else, preserving order in both slices.
//
// Supported formats:
//  1. Flag and value as separate arguments:  -c conf.json
//  2. Flag and value combined with '=':      --config=conf.json
//
// A value is taken from the next argument only if it does not look like a flag.
func SplitArgs(args []string, allowedFlags []string) (matched, rest []string) {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	matched = make([]string, 0, len(args))
	rest = make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-") && strings.Contains(arg, "=") {
			name := strings.SplitN(arg, "=", 2)[0]
			if _, ok := allowed[name]; ok {
				matched = append(matched, arg)
			} else {
				rest = append(rest, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; ok {
			matched = append(matched, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				matched = append(matched, args[i+1])
				i++
			}
			continue
		}
		rest = append(rest, arg)
	}

	return matched, rest
}

// FilterArgs returns only the allowed flags and their values.
func FilterArgs(args []string, allowedFlags []string) []string {
	matched, _ := SplitArgs(args, allowedFlags)
	return matched
}

// ConfigFile extracts the config file path given via -c or -config.
// An empty string means no file was requested.
func ConfigFile(args []string) string {
	var path string

	fs := flag.NewFlagSet("config-file", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&path, "config", "", "path to config file")
	fs.StringVar(&path, "c", "", "path to config file (short)")
	_ = fs.Parse(FilterArgs(args, []string{"-c", "-config", "--config"}))

	return path
}
