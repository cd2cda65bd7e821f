package booking

import "github.com/lithammer/shortuuid/v3"

const codeLength = 10

// NewSaleCode returns a short booking code derived from a random UUID.
// The default shortuuid alphabet has no 0/O or 1/I/l, so codes read back
// unambiguously over the phone.
func NewSaleCode() string {
	return shortuuid.New()[:codeLength]
}
