package configuration

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

var sizeRe = regexp.MustCompile(`^([1-9]\d*)([kmgKMG]?i?)([bB])$`)

var sizeOrders = map[string]int64{
	"":   1,
	"k":  1000,
	"m":  1000 * 1000,
	"g":  1000 * 1000 * 1000,
	"ki": 1 << 10,
	"mi": 1 << 20,
	"gi": 1 << 30,
}

// ParseSizeString parses sizes like 512B, 64KiB or 8Mb into a byte count.
// A lower case b counts bits, rounded up to whole bytes.
func ParseSizeString(s string) (int64, error) {
	if s == "" || s == "0" {
		return 0, nil
	}

	parts := sizeRe.FindStringSubmatch(strings.TrimSpace(s))
	if parts == nil {
		return 0, errors.New("invalid size")
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, err
	}
	mult, ok := sizeOrders[strings.ToLower(parts[2])]
	if !ok {
		return 0, errors.New("invalid size unit")
	}

	n *= mult
	if parts[3] == "b" {
		n = (n + 7) / 8
	}
	return n, nil
}
