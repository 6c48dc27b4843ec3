package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// refPattern matches $$ and ${NAME}, ${NAME:-default}, ${NAME:?message}.
var refPattern = regexp.MustCompile(`\$\$|\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:[-?])([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config file body.
//
//	${NAME}            value, or "" when unset
//	${NAME:-default}   value, or default when unset or empty
//	${NAME:?message}   value, or an error naming NAME when unset or empty
//	$$                 a literal $
//
// A bare $ is left alone so secrets containing one survive. An unset
// ${NAME} is not an error; Validate reports the empty field it leaves.
func ExpandEnv(input string) (string, error) {
	var (
		b       strings.Builder
		missing []error
		last    int
	)
	for _, m := range refPattern.FindAllStringSubmatchIndex(input, -1) {
		b.WriteString(input[last:m[0]])
		last = m[1]

		if m[2] < 0 {
			b.WriteByte('$')
			continue
		}
		name := input[m[2]:m[3]]
		value := os.Getenv(name)
		if value != "" || m[4] < 0 {
			b.WriteString(value)
			continue
		}

		arg := input[m[6]:m[7]]
		if input[m[4]:m[5]] == ":-" {
			b.WriteString(arg)
			continue
		}
		if arg == "" {
			arg = "required but not set"
		}
		missing = append(missing, fmt.Errorf("${%s}: %s", name, arg))
	}
	b.WriteString(input[last:])

	if len(missing) > 0 {
		return "", errors.Join(missing...)
	}
	return b.String(), nil
}
