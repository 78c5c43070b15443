package validator

import (
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"
)

var RgxPhoneNumber = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

func NotBlank(value string) bool {
	return strings.TrimSpace(value) != ""
}

func MinRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) >= n
}

func MaxRunes(value string, n int) bool {
	return utf8.RuneCountInString(value) <= n
}

func IsEmail(value string) bool {
	_, err := mail.ParseAddress(value)
	return err == nil
}

func Matches(value string, rx *regexp.Regexp) bool {
	return rx.MatchString(value)
}

func In(value string, safelist ...string) bool {
	for _, sv := range safelist {
		if value == sv {
			return true
		}
	}
	return false
}
