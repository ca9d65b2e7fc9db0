package ledger

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAddressHex = "83dfd552e63729b472fcbcc8c45ebcc6691702558b68ec7527e1ba403a0f31a8"

func TestParseAccount(t *testing.T) {
	account, err := ParseAccount("0:" + testAddressHex)
	require.NoError(t, err)
	assert.Equal(t, int32(0), account.Workchain)
	assert.Equal(t, testAddressHex, account.Hex())
	assert.Equal(t, "0:"+testAddressHex, account.String())

	master, err := ParseAccount("-1:" + testAddressHex)
	require.NoError(t, err)
	assert.Equal(t, int32(-1), master.Workchain)
	assert.NotEqual(t, account, master)
}

func TestParseAccount_Invalid(t *testing.T) {
	for _, input := range []string{
		"",
		testAddressHex,
		"x:" + testAddressHex,
		"0:abcd",
		"0:" + testAddressHex[:62] + "zz",
	} {
		_, err := ParseAccount(input)
		assert.ErrorIs(t, err, ErrInvalidAccount, input)
	}
}

func TestAccount_JSON(t *testing.T) {
	account, err := ParseAccount("0:" + testAddressHex)
	require.NoError(t, err)

	raw, err := json.Marshal(map[string]Account{"account": account})
	require.NoError(t, err)
	assert.JSONEq(t, `{"account":"0:`+testAddressHex+`"}`, string(raw))

	var decoded map[string]Account
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, account, decoded["account"])
}
