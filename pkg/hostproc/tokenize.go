package hostproc

import (
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// Tokenize normalizes a command argument into an argument vector.
// It accepts nil (empty vector), a single string (split with shell-lexing
// rules, quoting honored) or a pre-tokenized []string. Anything else is
// rejected with an InvalidArgumentError.
func Tokenize(command any) ([]string, error) {
	switch v := command.(type) {
	case nil:
		return nil, nil
	case string:
		parts, err := shellwords.Parse(v)
		if err != nil {
			return nil, &InvalidArgumentError{Value: v}
		}
		return trimEach(parts), nil
	case []string:
		return trimEach(v), nil
	default:
		return nil, &InvalidArgumentError{Value: command}
	}
}

func trimEach(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = strings.TrimSpace(a)
	}
	return out
}
