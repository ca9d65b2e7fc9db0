package ledger

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidAccount = errors.New("invalid account address")

// Account identifies a ledger-resident entity: workchain id + 256-bit address hash.
type Account struct {
	Workchain int32       `json:"workchain"`
	Address   common.Hash `json:"address"`
}

func NewAccount(workchain int32, addressHex string) (Account, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(addressHex, "0x"))
	if err != nil || len(raw) != common.HashLength {
		return Account{}, fmt.Errorf("%w: bad address hash %q", ErrInvalidAccount, addressHex)
	}
	return Account{Workchain: workchain, Address: common.BytesToHash(raw)}, nil
}

// ParseAccount parses the raw "<workchain>:<64 hex chars>" form.
func ParseAccount(s string) (Account, error) {
	wc, addr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Account{}, fmt.Errorf("%w: %q has no workchain separator", ErrInvalidAccount, s)
	}
	workchain, err := strconv.ParseInt(wc, 10, 32)
	if err != nil {
		return Account{}, fmt.Errorf("%w: bad workchain %q", ErrInvalidAccount, wc)
	}
	return NewAccount(int32(workchain), addr)
}

// Hex is the lowercase address hash without prefix, as stored in the database.
func (a Account) Hex() string {
	return hex.EncodeToString(a.Address[:])
}

func (a Account) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, a.Hex())
}

func (a Account) IsZero() bool {
	return a == Account{}
}

func (a Account) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Account) UnmarshalText(text []byte) error {
	parsed, err := ParseAccount(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
