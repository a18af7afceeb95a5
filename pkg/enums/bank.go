package enums

import "fmt"

// Bank identifies the virtual-account bank for a bank transfer charge.
type Bank string

const (
	BankBCA Bank = "bca"
	BankBNI Bank = "bni"
	BankBRI Bank = "bri"
)

var validBanks = []Bank{
	BankBCA,
	BankBNI,
	BankBRI,
}

// String implements fmt.Stringer.
func (b Bank) String() string {
	return string(b)
}

// IsValid reports whether the value is a known Bank.
func (b Bank) IsValid() bool {
	for _, candidate := range validBanks {
		if candidate == b {
			return true
		}
	}
	return false
}

// ParseBank converts raw input into a Bank.
func ParseBank(value string) (Bank, error) {
	for _, candidate := range validBanks {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bank %q", value)
}
