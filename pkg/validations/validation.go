// All global custom validations in Stockpile are defined here.
// These validations are allowed to be used anywhere in the application.

package validations

import (
	"regexp"
	"sync"

	"github.com/asaskevich/govalidator"
)

// Channel names become part of room names, so separators and whitespace are not allowed.
var channelName = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

var once sync.Once

// RegisterCustomValidations adds the custom tags into ext-package govalidator.
// Safe to call more than once; tags are registered only the first time.
func RegisterCustomValidations() {
	once.Do(func() {
		// This global validation doesn't allow whitespace in input.
		govalidator.TagMap["nospace"] = govalidator.Validator(func(str string) bool {
			return !govalidator.HasWhitespace(str)
		})
		// Notification channel names, joined as notify:<channel> rooms.
		govalidator.TagMap["channelname"] = govalidator.Validator(func(str string) bool {
			return channelName.MatchString(str)
		})
	})
}

// IsChannelName reports whether str is usable as a notification channel name.
func IsChannelName(str string) bool {
	return channelName.MatchString(str)
}
