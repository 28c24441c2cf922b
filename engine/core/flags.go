package core

import "golang.org/x/exp/constraints"

// HasFlag reports whether every bit of flag is set in flags.
func HasFlag[T constraints.Integer](flags, flag T) bool {
	return flags&flag == flag
}
