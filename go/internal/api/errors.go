package api

import "fmt"

func errUnknownBrackets(name string) error {
	return fmt.Errorf("unknown age brackets %q", name)
}

func errBadPageSize(raw string) error {
	return fmt.Errorf("invalid page_size %q", raw)
}
