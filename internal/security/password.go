package security

import (
	"crypto/rand"
	"errors"
	"math/big"
	"unicode"
	"unicode/utf8"
)

// MinPasswordLength is the shortest password ValidatePassword accepts.
const MinPasswordLength = 8

// ErrWeakPassword is returned by ValidatePassword when a rule is not met.
var ErrWeakPassword = errors.New("password must be at least 8 characters and contain upper-case, lower-case, digit and symbol")

const (
	lowerChars  = "abcdefghijkmnopqrstuvwxyz"
	upperChars  = "ABCDEFGHJKLMNPQRSTUVWXYZ"
	digitChars  = "23456789"
	symbolChars = "!#$%&*+-.=?@_"
)

// ValidatePassword enforces the password policy: minimum length in characters
// and at least one upper-case letter, lower-case letter, digit and symbol.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return ErrWeakPassword
	}
	return nil
}

// GeneratePassword returns a random password of length n that satisfies
// ValidatePassword. n below MinPasswordLength is raised to it.
func GeneratePassword(n int) (string, error) {
	if n < MinPasswordLength {
		n = MinPasswordLength
	}
	all := lowerChars + upperChars + digitChars + symbolChars
	out := make([]byte, 0, n)
	for _, set := range []string{lowerChars, upperChars, digitChars, symbolChars} {
		c, err := randomChar(set)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	for len(out) < n {
		c, err := randomChar(all)
		if err != nil {
			return "", err
		}
		out = append(out, c)
	}
	// Fisher-Yates so the guaranteed classes are not always in front.
	for i := len(out) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		out[i], out[j] = out[j], out[i]
	}
	return string(out), nil
}

func randomChar(set string) (byte, error) {
	i, err := randomIndex(len(set))
	if err != nil {
		return 0, err
	}
	return set[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
