package recovery

import (
	"strconv"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/crypt/signing"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrSecretCleared = utils.Error("recovery secret is no longer available")

	contactSalt = "invisible_wallet_contact_salt"
)

// contactKeyInfo binds a derived key to the contact identity and trust level
func contactKeyInfo(c Contact) []byte {
	return []byte(c.ID + "_" + c.FirstName + "_" + strconv.FormatFloat(c.TrustLevel, 'g', -1, 64))
}

// secretBytes returns a copy of the deployment secret; callers zero it
func (m *Manager) secretBytes() ([]byte, error) {
	secret, err := m.secret.GetBytes()
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, ErrSecretCleared
	}
	return secret, nil
}

func (m *Manager) contactCipher(c Contact) (secure.AES256GCM, error) {
	secret, err := m.secretBytes()
	if err != nil {
		return nil, err
	}
	defer utils.Zero(secret)

	key, err := secure.DeriveKey(secret, []byte(contactSalt), contactKeyInfo(c))
	if err != nil {
		return nil, err
	}
	defer utils.Zero(key)
	return secure.NewAES256GCM(key)
}

// codeDigest returns the keyed digest stored in place of a verification code
func (m *Manager) codeDigest(ownerID, contactID, code string) (string, error) {
	secret, err := m.secretBytes()
	if err != nil {
		return "", err
	}
	defer utils.Zero(secret)
	return signing.HexHMACSHA256(secret, []byte(ownerID+"\n"+contactID+"\n"+code)), nil
}
