package soundboard

import (
	"fmt"
	"strings"
	"unicode"
)

// MaxNameLength bounds sound names after sanitization.
const MaxNameLength = 100

// InvalidNameError reports why a candidate sound name was rejected.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid sound name %q: %s", e.Name, e.Reason)
}

// Names become filenames, so anything path-hostile is stripped.
const invalidChars = `/\:*?"<>|`

// Windows device names cannot be files on every platform the sound
// directory may be mounted from, so they are rejected outright.
var reservedNames = map[string]struct{}{
	"con": {}, "prn": {}, "aux": {}, "nul": {},
	"com1": {}, "com2": {}, "com3": {}, "com4": {}, "com5": {},
	"com6": {}, "com7": {}, "com8": {}, "com9": {},
	"lpt1": {}, "lpt2": {}, "lpt3": {}, "lpt4": {}, "lpt5": {},
	"lpt6": {}, "lpt7": {}, "lpt8": {}, "lpt9": {},
}

// ValidateName checks a candidate sound name and returns the sanitized form
// to store: path separators, shell-hostile characters and control runes are
// stripped, surrounding whitespace and dots are trimmed. Names that cannot
// be corrected meaningfully (empty after sanitizing, too long, reserved
// device names) fail with InvalidNameError.
func ValidateName(name string) (string, error) {
	sanitized := strings.Map(func(r rune) rune {
		if strings.ContainsRune(invalidChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	sanitized = strings.Trim(sanitized, " .")

	if sanitized == "" {
		return "", &InvalidNameError{Name: name, Reason: "name is empty"}
	}
	if len(sanitized) > MaxNameLength {
		return "", &InvalidNameError{
			Name:   name,
			Reason: fmt.Sprintf("name is longer than %d characters", MaxNameLength),
		}
	}
	base, _, _ := strings.Cut(sanitized, ".")
	if _, ok := reservedNames[strings.ToLower(base)]; ok {
		return "", &InvalidNameError{Name: name, Reason: fmt.Sprintf("%q is a reserved name", sanitized)}
	}
	return sanitized, nil
}
