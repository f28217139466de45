// Package idutil implements the opaque-binary-ID codecs used for order
// IDs and charge tokens.
package idutil

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/metalalive/ecommerce-go/internal/apperr"
)

// OrderIDLen is the fixed 16-octet width an order ID is persisted in,
// right-aligned with leading zero padding.
const OrderIDLen = 16

// MaxOrderIDHexNibbles bounds the hex encoding's input length to 32 nibbles.
const MaxOrderIDHexNibbles = OrderIDLen * 2

// DecodeOrderID parses a lower- or upper-case hex string of at most 32
// nibbles into a 16-octet, left-zero-padded order ID.
func DecodeOrderID(hexStr string) ([OrderIDLen]byte, error) {
	var out [OrderIDLen]byte
	if len(hexStr) == 0 || len(hexStr) > MaxOrderIDHexNibbles {
		return out, apperr.New(apperr.InvalidInput, "order id hex length out of range")
	}
	padded := hexStr
	if len(padded)%2 != 0 {
		padded = "0" + padded
	}
	raw, err := hex.DecodeString(padded)
	if err != nil {
		return out, apperr.Wrap(apperr.InvalidInput, "order id is not valid hex", err)
	}
	if len(raw) > OrderIDLen {
		return out, apperr.New(apperr.InvalidInput, "order id exceeds 16 octets")
	}
	copy(out[OrderIDLen-len(raw):], raw)
	return out, nil
}

// EncodeOrderID renders the 16-octet ID back to lower-case hex of only
// its significant octets, stripping the leading-zero padding: the
// inverse of DecodeOrderID, with leading zero octets dropped rather than
// rendered as "00" pairs.
func EncodeOrderID(id [OrderIDLen]byte) string {
	i := 0
	for i < OrderIDLen && id[i] == 0 {
		i++
	}
	if i == OrderIDLen {
		return "0"
	}
	return hex.EncodeToString(id[i:])
}

// ChargeToken concatenates a u32 owner with a UTC-microsecond create
// time, rendered as lower-case hex. (owner, create_time) is the charge's
// natural key; the token is deterministic so a retried CreateCharge for
// the same (owner, create_time) produces the same token.
func ChargeToken(owner uint32, createTime time.Time) string {
	var buf [12]byte
	binary.BigEndian.PutUint32(buf[0:4], owner)
	binary.BigEndian.PutUint64(buf[4:12], uint64(createTime.UTC().UnixMicro()))
	return hex.EncodeToString(buf[:])
}

// DecodeChargeToken is the inverse of ChargeToken, used by RefreshChargeStatus
// and CaptureCharge to recover (owner, create_time) from the opaque token.
func DecodeChargeToken(token string) (owner uint32, createTime time.Time, err error) {
	raw, derr := hex.DecodeString(token)
	if derr != nil || len(raw) != 12 {
		return 0, time.Time{}, apperr.New(apperr.InvalidInput, "malformed charge token")
	}
	owner = binary.BigEndian.Uint32(raw[0:4])
	micros := int64(binary.BigEndian.Uint64(raw[4:12]))
	createTime = time.UnixMicro(micros).UTC()
	return owner, createTime, nil
}
