// Package validate holds the pure predicates that gate every event and
// setting before it reaches the store.
//
// Functions return nil when the input is acceptable and a
// fault.CodeValidation error describing the first problem otherwise.
package validate

import (
	"regexp"
	"slices"
	"unicode/utf8"

	"github.com/roach88/beacon/internal/fault"
)

// Limits shared with the collector's ingestion rules.
const (
	MaxEventPartLength   = 64
	MaxDesignParts       = 5
	MaxShortString       = 32
	MaxUserIDLength      = 64
	MaxErrorMessage      = 8192
	MaxDimensionValues   = 20
	MaxResourceValues    = 20
	MaxCustomFields      = 50
	MaxCustomFieldKey    = 64
	MaxCustomFieldString = 256
	MaxClientTs          = 99999999999
	GameKeyLength        = 32
	GameSecretLength     = 40
)

var (
	eventPartRe      = regexp.MustCompile(`^[A-Za-z0-9\s\-_.()!?]{1,64}$`)
	currencyRe       = regexp.MustCompile(`^[A-Z]{3}$`)
	resourceCurrency = regexp.MustCompile(`^[A-Za-z]+$`)
	keyRe            = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	customFieldKeyRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,64}$`)
)

// Severities accepted on error events.
var Severities = []string{"debug", "info", "warning", "error", "critical"}

// ConnectionTypes accepted in annotations.
var ConnectionTypes = []string{"wwan", "wifi", "lan", "offline"}

// EventPart checks one identifier segment such as an item id.
func EventPart(field, v string) error {
	if !eventPartRe.MatchString(v) {
		return fault.Validation(field, "%q must be 1-%d characters of [A-Za-z0-9 -_.()!?]", v, MaxEventPartLength)
	}
	return nil
}

// Currency checks an ISO 4217 style code.
func Currency(v string) error {
	if !currencyRe.MatchString(v) {
		return fault.Validation("currency", "%q is not 3 uppercase letters", v)
	}
	return nil
}

// ShortString checks an optional string of at most 32 runes.
func ShortString(field, v string, allowEmpty bool) error {
	n := utf8.RuneCountInString(v)
	if n == 0 && !allowEmpty {
		return fault.Validation(field, "must not be empty")
	}
	if n > MaxShortString {
		return fault.Validation(field, "longer than %d characters", MaxShortString)
	}
	return nil
}

// Build checks the host build string.
func Build(v string) error {
	return ShortString("build", v, false)
}

// UserID checks a host supplied user identifier.
func UserID(v string) error {
	if n := utf8.RuneCountInString(v); n == 0 || n > MaxUserIDLength {
		return fault.Validation("user_id", "must be 1-%d characters", MaxUserIDLength)
	}
	return nil
}

// Keys checks the game key and secret shapes.
func Keys(gameKey, secret string) error {
	if len(gameKey) != GameKeyLength || !keyRe.MatchString(gameKey) {
		return fault.Validation("game_key", "must be %d alphanumeric characters", GameKeyLength)
	}
	if len(secret) != GameSecretLength || !keyRe.MatchString(secret) {
		return fault.Validation("game_secret", "must be %d alphanumeric characters", GameSecretLength)
	}
	return nil
}

// ClientTs checks that a timestamp in seconds is plausible.
func ClientTs(ts int64) error {
	if ts <= 0 || ts >= MaxClientTs {
		return fault.Validation("client_ts", "%d out of range", ts)
	}
	return nil
}

// ConnectionType checks an annotation connection type.
func ConnectionType(v string) error {
	if !slices.Contains(ConnectionTypes, v) {
		return fault.Validation("connection_type", "%q is not one of %v", v, ConnectionTypes)
	}
	return nil
}

// CustomDimensions checks one slot's list of allowed values.
func CustomDimensions(values []string) error {
	if len(values) > MaxDimensionValues {
		return fault.Validation("custom_dimensions", "more than %d values", MaxDimensionValues)
	}
	for _, v := range values {
		if err := ShortString("custom_dimensions", v, false); err != nil {
			return err
		}
	}
	return nil
}

// Dimension checks a value for a slot. Empty clears the slot and is
// always valid.
func Dimension(value string, allowed []string) error {
	if value == "" || slices.Contains(allowed, value) {
		return nil
	}
	return fault.Validation("custom_dimension", "%q is not in the configured values", value)
}

// ResourceCurrencies checks the configured resource currency list.
func ResourceCurrencies(values []string) error {
	if len(values) == 0 || len(values) > MaxResourceValues {
		return fault.Validation("resource_currencies", "must list 1-%d values", MaxResourceValues)
	}
	for _, v := range values {
		if !resourceCurrency.MatchString(v) {
			return fault.Validation("resource_currencies", "%q must be letters only", v)
		}
	}
	return nil
}

// ResourceItemTypes checks the configured resource item type list.
func ResourceItemTypes(values []string) error {
	if len(values) == 0 || len(values) > MaxResourceValues {
		return fault.Validation("resource_item_types", "must list 1-%d values", MaxResourceValues)
	}
	for _, v := range values {
		if err := EventPart("resource_item_types", v); err != nil {
			return err
		}
	}
	return nil
}
