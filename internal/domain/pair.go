package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Pair identifies a currency pair as BASE_QUOTE, e.g. EUR_USD.
type Pair string

var pairRe = regexp.MustCompile(`^[A-Z]{3}_[A-Z]{3}$`)

// ParsePair normalizes p to upper case and checks the BASE_QUOTE format.
func ParsePair(p string) (Pair, error) {
	norm := strings.ToUpper(strings.TrimSpace(p))
	if !pairRe.MatchString(norm) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPair, p)
	}
	if norm[:3] == norm[4:] {
		return "", fmt.Errorf("%w: base and quote must differ", ErrInvalidPair)
	}
	return Pair(norm), nil
}

func (p Pair) Base() string  { return string(p)[:3] }
func (p Pair) Quote() string { return string(p)[4:] }

// Currencies is a set of supported currency codes. An empty set allows any code.
type Currencies map[string]struct{}

func NewCurrencies(codes ...string) Currencies {
	set := make(Currencies, len(codes))
	for _, c := range codes {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	return set
}

func (c Currencies) Check(p Pair) error {
	if len(c) == 0 {
		return nil
	}
	if _, ok := c[p.Base()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPair, p.Base())
	}
	if _, ok := c[p.Quote()]; !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedPair, p.Quote())
	}
	return nil
}
