package logging

// Secret is a credential that must never appear in logs or rendered config.
// It stringifies as a mask; call Reveal at the single point of use.
type Secret string

const mask = "[REDACTED]"

// String implements fmt.Stringer with the mask.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return mask
}

// MarshalText masks the secret in any text serialization.
func (s Secret) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Reveal returns the raw value.
func (s Secret) Reveal() string {
	return string(s)
}

// IsSet reports whether a value is present.
func (s Secret) IsSet() bool {
	return s != ""
}
