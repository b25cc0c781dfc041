package utils

// Shop-code helpers.  A slot is displayed as blockLetter+shopNumber, e.g.
// "B52".  An older deployment also persisted a composite identifier
// "marketId-marketName-B52"; that format is parse-only here and nothing new
// is written in it.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadShopCode is returned when a shop code cannot be decomposed into a
// block letter and a shop number.
var ErrBadShopCode = errors.New("malformed shop code")

// ErrBadCompositeID is returned when a legacy composite identifier does not
// contain the expected dash-separated parts.
var ErrBadCompositeID = errors.New("malformed composite shop identifier")

// BuildShopCode derives the display code for a slot, e.g. ("B", 52) -> "B52".
func BuildShopCode(blockLetter string, shopNumber int) string {
	return fmt.Sprintf("%s%d", strings.ToUpper(strings.TrimSpace(blockLetter)), shopNumber)
}

// ParseShopCode splits a display code like "B52" into its block letter and
// shop number.  The letter part may be more than one character as long as it
// is all ASCII letters; the remainder must be a positive integer.
func ParseShopCode(code string) (blockLetter string, shopNumber int, err error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	i := 0
	for i < len(code) && code[i] >= 'A' && code[i] <= 'Z' {
		i++
	}
	if i == 0 || i == len(code) {
		return "", 0, ErrBadShopCode
	}
	n, convErr := strconv.Atoi(code[i:])
	if convErr != nil || n <= 0 {
		return "", 0, ErrBadShopCode
	}
	return code[:i], n, nil
}

// CompositeShopID is the decomposed form of the legacy
// "marketId-marketName-blockShopCode" identifier.
type CompositeShopID struct {
	MarketID      string
	MarketName    string
	BlockShopCode string
}

// ParseCompositeShopID splits a legacy composite identifier at the first and
// last dash, so a market name containing dashes survives the round trip.
// Market names that begin or end with a dash are still ambiguous in this
// format; that is a property of the legacy encoding, not of this parser.
func ParseCompositeShopID(s string) (CompositeShopID, error) {
	first := strings.Index(s, "-")
	last := strings.LastIndex(s, "-")
	if first < 0 || last <= first {
		return CompositeShopID{}, ErrBadCompositeID
	}
	id := CompositeShopID{
		MarketID:      s[:first],
		MarketName:    s[first+1 : last],
		BlockShopCode: s[last+1:],
	}
	if id.MarketID == "" || id.BlockShopCode == "" {
		return CompositeShopID{}, ErrBadCompositeID
	}
	return id, nil
}
