package normalization

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"

	"token-backfill/internal/domain"
)

// ErrMalformedRecord is returned when the upstream API delivers a transfer
// that cannot be converted. It is a network-class error.
var ErrMalformedRecord = fmt.Errorf("%w: malformed transfer record", domain.ErrNetwork)

// failedStatusCode is the only receipt status that maps to StatusFailed.
const failedStatusCode = "0"

// ConvertTransfer maps one raw API record onto the canonical transaction
// of the given token. It performs no I/O.
func ConvertTransfer(token domain.TokenConfig, raw domain.RawTransfer) (*domain.Transaction, error) {
	hash, err := parseHash(raw.Hash)
	if err != nil {
		return nil, malformed(raw.Hash, "hash", err)
	}

	block, err := parseUint(raw.BlockNumber, 64)
	if err != nil {
		return nil, malformed(hash, "blockNumber", err)
	}

	var txIndex uint64
	if strings.TrimSpace(raw.TransactionIndex) != "" {
		txIndex, err = parseUint(raw.TransactionIndex, 32)
		if err != nil {
			return nil, malformed(hash, "transactionIndex", err)
		}
	}

	from, err := parseAddress(raw.From)
	if err != nil {
		return nil, malformed(hash, "from", err)
	}
	to, err := parseAddress(raw.To)
	if err != nil {
		return nil, malformed(hash, "to", err)
	}

	value, err := parseAmount(raw.Value)
	if err != nil {
		return nil, malformed(hash, "value", err)
	}

	decimals := uint64(token.Decimals)
	if strings.TrimSpace(raw.TokenDecimals) != "" {
		decimals, err = parseUint(raw.TokenDecimals, 8)
		if err != nil {
			return nil, malformed(hash, "tokenDecimal", err)
		}
	}

	gasUsed, err := parseOptionalAmount(raw.GasUsed)
	if err != nil {
		return nil, malformed(hash, "gasUsed", err)
	}
	gasPrice, err := parseOptionalAmount(raw.GasPrice)
	if err != nil {
		return nil, malformed(hash, "gasPrice", err)
	}

	ts, err := parseUint(raw.TimeStamp, 63)
	if err != nil {
		return nil, malformed(hash, "timeStamp", err)
	}

	return &domain.Transaction{
		Hash:             hash,
		BlockNumber:      block,
		TransactionIndex: uint32(txIndex),
		FromAddress:      from,
		ToAddress:        to,
		Value:            value,
		TokenAddress:     strings.ToLower(token.ContractAddress),
		TokenSymbol:      token.Symbol,
		TokenDecimals:    uint8(decimals),
		GasUsed:          gasUsed,
		GasPrice:         gasPrice,
		Timestamp:        time.Unix(int64(ts), 0).UTC(),
		Status:           NormalizeStatus(raw.StatusCode),
	}, nil
}

// ConvertTransfers converts a page 1:1, preserving order. The first
// malformed record fails the whole page.
func ConvertTransfers(token domain.TokenConfig, raws []domain.RawTransfer) ([]*domain.Transaction, error) {
	out := make([]*domain.Transaction, 0, len(raws))
	for i := range raws {
		tx, err := ConvertTransfer(token, raws[i])
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// NormalizeStatus maps a receipt status code onto TxStatus. Token transfer
// events are only emitted by successful transactions, so an absent code
// means success.
func NormalizeStatus(code string) domain.TxStatus {
	if strings.TrimSpace(code) == failedStatusCode {
		return domain.StatusFailed
	}
	return domain.StatusSuccess
}

func malformed(hash, field string, err error) error {
	return fmt.Errorf("%w: tx %q field %s: %v", ErrMalformedRecord, hash, field, err)
}

func parseHash(s string) (string, error) {
	s = strings.TrimSpace(s)
	b, err := hexutil.Decode(s)
	if err != nil {
		return "", err
	}
	if len(b) != common.HashLength {
		return "", fmt.Errorf("want %d bytes, got %d", common.HashLength, len(b))
	}
	return strings.ToLower(s), nil
}

func parseAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("invalid address %q", s)
	}
	return strings.ToLower(common.HexToAddress(s).Hex()), nil
}

// parseUint accepts base-10 or 0x-prefixed hex.
func parseUint(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if hasHexPrefix(s) {
		return strconv.ParseUint(s[2:], 16, bits)
	}
	return strconv.ParseUint(s, 10, bits)
}

// maxAmountDigits is the number of decimal digits of the largest uint256.
const maxAmountDigits = 78

// parseAmount accepts base-10, 0x hex or exponent notation ("1e18") and
// returns the canonical base-10 integer string. Fractions, negatives and
// values outside uint256 are rejected.
func parseAmount(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty amount")
	}

	if hasHexPrefix(s) {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok || n.Sign() < 0 {
			return "", fmt.Errorf("invalid hex amount %q", s)
		}
		return checkUint256(n, s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", err
	}
	if d.IsZero() {
		return "0", nil
	}
	if d.IsNegative() {
		return "", fmt.Errorf("negative amount %q", s)
	}

	// Bound the exponent before anything rescales the coefficient.
	exp := d.Exponent()
	if exp >= maxAmountDigits {
		return "", fmt.Errorf("amount %q exceeds uint256", s)
	}
	if exp < 0 && int(-int64(exp)) > len(d.Coefficient().String()) {
		return "", fmt.Errorf("fractional amount %q", s)
	}
	if !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("fractional amount %q", s)
	}
	return checkUint256(d.BigInt(), s)
}

func checkUint256(n *big.Int, raw string) (string, error) {
	if n.BitLen() > 256 {
		return "", fmt.Errorf("amount %q exceeds uint256", raw)
	}
	return n.String(), nil
}

func parseOptionalAmount(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "0", nil
	}
	return parseAmount(s)
}

func hasHexPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
