package main

import (
	"fmt"
	"strconv"
)

func parseSeq(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence number %q: %w", s, err)
	}
	return n, nil
}
