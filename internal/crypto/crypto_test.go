package crypto_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/autobot/internal/crypto"
)

// Well-known development key (hardhat account #0).
const (
	devKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	devAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func payload() crypto.OrderPayload {
	return crypto.OrderPayload{
		Salt:        "1234",
		Maker:       devAddress,
		Signer:      devAddress,
		Taker:       "0x0000000000000000000000000000000000000000",
		TokenID:     "71321045679252212594626385532706912750332728571942532289631379312455583992563",
		MakerAmount: "2400000000",
		TakerAmount: "6000000000",
		Expiration:  "0",
		Nonce:       "0",
		FeeRateBps:  "0",
	}
}

func TestSignerAddress(t *testing.T) {
	s, err := crypto.NewSigner("0x"+devKey, 137)
	require.NoError(t, err)
	assert.Equal(t, devAddress, s.Address().Hex())

	_, err = crypto.NewSigner("zz", 137)
	assert.Error(t, err)
}

func TestSignOrderRecovers(t *testing.T) {
	s, err := crypto.NewSigner(devKey, 137)
	require.NoError(t, err)

	sig, err := s.SignOrder(payload())
	require.NoError(t, err)
	assert.Len(t, sig, 132)

	addr, err := s.RecoverOrderSigner(payload(), sig)
	require.NoError(t, err)
	assert.Equal(t, devAddress, addr.Hex())

	// deterministic for identical input
	again, err := s.SignOrder(payload())
	require.NoError(t, err)
	assert.Equal(t, sig, again)
}

func TestSignOrderIsBoundToExchange(t *testing.T) {
	ctf, err := crypto.NewSigner(devKey, 137)
	require.NoError(t, err)
	negRisk, err := crypto.NewSigner(devKey, 137, crypto.WithExchange(crypto.NegRiskCTFExchange))
	require.NoError(t, err)

	a, err := ctf.SignOrder(payload())
	require.NoError(t, err)
	b, err := negRisk.SignOrder(payload())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	// a neg-risk signature does not verify under the CTF domain
	addr, err := ctf.RecoverOrderSigner(payload(), b)
	require.NoError(t, err)
	assert.NotEqual(t, devAddress, addr.Hex())
}

func TestSignOrderRejectsBadNumbers(t *testing.T) {
	s, err := crypto.NewSigner(devKey, 137)
	require.NoError(t, err)

	p := payload()
	p.MakerAmount = "2.4"
	_, err = s.SignOrder(p)
	assert.ErrorContains(t, err, "makerAmount")
}

func TestSignAuthMessage(t *testing.T) {
	s, err := crypto.NewSigner(devKey, 137)
	require.NoError(t, err)

	a, err := s.SignAuthMessage(devAddress, 1700000000, 0)
	require.NoError(t, err)
	b, err := s.SignAuthMessage(devAddress, 1700000001, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Regexp(t, "^0x[0-9a-f]{128}(1b|1c)$", a)
}

func TestL2HeadersAt(t *testing.T) {
	secret := base64.URLEncoding.EncodeToString([]byte("super-secret"))
	h := &crypto.HMACAuth{Key: "k", Secret: secret, Passphrase: "p"}

	got := h.L2HeadersAt(devAddress, "POST", "/order", `{"a":1}`, 1700000000)

	mac := hmac.New(sha256.New, []byte("super-secret"))
	mac.Write([]byte(`1700000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, got["POLY_SIGNATURE"])
	assert.Equal(t, "1700000000", got["POLY_TIMESTAMP"])
	assert.Equal(t, "k", got["POLY_API_KEY"])
	assert.Equal(t, "p", got["POLY_PASSPHRASE"])
	assert.Equal(t, devAddress, got["POLY_ADDRESS"])
	assert.NotContains(t, h.String(), "super")
}

func TestEncryptedKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.json")
	require.NoError(t, crypto.SaveEncryptedKey(path, "0x"+devKey, "hunter2"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	key, err := crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, Password: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, devKey, key)

	_, err = crypto.LoadKey(crypto.KeyConfig{EncryptedKeyPath: path, Password: "wrong"})
	assert.ErrorContains(t, err, "wrong password")
}

func TestLoadKeySources(t *testing.T) {
	key, err := crypto.LoadKey(crypto.KeyConfig{PrivateKey: "0x" + devKey, EncryptedKeyPath: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, devKey, key)

	_, err = crypto.LoadKey(crypto.KeyConfig{PrivateKey: "abcd"})
	assert.ErrorContains(t, err, "32-byte")

	_, err = crypto.LoadKey(crypto.KeyConfig{})
	assert.ErrorIs(t, err, crypto.ErrNoKey)

	_, err = crypto.EncryptKey(devKey, "")
	assert.Error(t, err)
}
