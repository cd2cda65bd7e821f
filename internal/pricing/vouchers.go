package pricing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

type voucher struct {
	percent bool
	value   int64
}

// VoucherTable is a static DiscountCalculator configured from a string
// like "WELCOME10:10%,FLAT500:500": percentage vouchers end in '%', the
// others are a flat amount in cents.  Codes are case-insensitive.
type VoucherTable struct {
	codes map[string]voucher
}

// ParseVoucherTable parses the VOUCHERS format.  An empty string yields an
// empty table that rejects every code.
func ParseVoucherTable(raw string) (*VoucherTable, error) {
	t := &VoucherTable{codes: map[string]voucher{}}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		code, val, ok := strings.Cut(part, ":")
		code = strings.ToUpper(strings.TrimSpace(code))
		val = strings.TrimSpace(val)
		if !ok || code == "" {
			return nil, fmt.Errorf("voucher %q: want CODE:VALUE", part)
		}
		v := voucher{percent: strings.HasSuffix(val, "%")}
		n, err := strconv.ParseInt(strings.TrimSuffix(val, "%"), 10, 64)
		if err != nil || n <= 0 || (v.percent && n > 100) {
			return nil, fmt.Errorf("voucher %q: bad value %q", code, val)
		}
		v.value = n
		t.codes[code] = v
	}
	return t, nil
}

func (t *VoucherTable) VoucherDiscount(_ context.Context, code string, subtotalCents int64) (int64, error) {
	v, ok := t.codes[strings.ToUpper(strings.TrimSpace(code))]
	if !ok {
		return 0, fmt.Errorf("voucher %q: %w", code, apperr.ErrInvalidVoucher)
	}
	if v.percent {
		return subtotalCents * v.value / 100, nil
	}
	return min(v.value, subtotalCents), nil
}
