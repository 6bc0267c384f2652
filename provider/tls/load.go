package tls

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/utils"
	"go.step.sm/crypto/pemutil"
)

const (
	ErrCertNotFound    = utils.Error("could not load certificate file")
	ErrInvalidPEM      = utils.Error("could not parse PEM certificate")
	ErrKeyNotFound     = utils.Error("could not load private key file")
	ErrKeyError        = utils.Error("failed to decode private key")
	ErrCredentialError = utils.Error("failed to load tls key password")
	ErrMissingPassword = utils.Error("missing password for encrypted private key")
	ErrDecryptError    = utils.Error("private key decryption error")
	ErrInvalidCert     = utils.Error("failed to load cert/key pair")

	pemEncryptedKey = "ENCRYPTED PRIVATE KEY"
	pemPKCS8Key     = "PRIVATE KEY"
)

func logger() *log.Logger {
	return log.NewWithComponent("tls", "loader")
}

// LoadTLSCertPool builds a certificate pool from PEM files
func LoadTLSCertPool(certFiles []string) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, certFile := range certFiles {
		cert, err := os.ReadFile(certFile)
		if err != nil {
			logger().Error(err, "failed to read CA file", log.KV{"file": certFile})
			return nil, ErrCertNotFound
		}
		if !pool.AppendCertsFromPEM(cert) {
			logger().Error(ErrInvalidPEM, "no certificates found in CA file", log.KV{"file": certFile})
			return nil, ErrInvalidPEM
		}
	}
	return pool, nil
}

// LoadTLSCertificate loads a client certificate into config. Keys stored as
// encrypted PKCS#8 are decrypted with the password read from pwdSrc; the
// password and the decrypted key are zeroed after use
func LoadTLSCertificate(config *tls.Config, certFile, keyFile string, pwdSrc secure.CredentialConfig) error {
	certBytes, err := os.ReadFile(certFile)
	if err != nil {
		logger().Error(err, "failed to read certificate file", log.KV{"file": certFile})
		return ErrCertNotFound
	}

	keyBytes, err := os.ReadFile(keyFile)
	if err != nil {
		logger().Error(err, "failed to read key file", log.KV{"file": keyFile})
		return ErrKeyNotFound
	}

	keyPEMBlock, _ := pem.Decode(keyBytes)
	if keyPEMBlock == nil {
		logger().Error(ErrKeyError, "no PEM data found in key file", log.KV{"file": keyFile})
		return ErrKeyError
	}

	if keyPEMBlock.Type == pemEncryptedKey {
		keyBytes, err = decryptKey(keyPEMBlock, keyFile, pwdSrc)
		if err != nil {
			return err
		}
		defer utils.Zero(keyBytes)
	}

	cert, err := tls.X509KeyPair(certBytes, keyBytes)
	if err != nil {
		logger().Error(err, "failed to load cert/key pair", log.KV{"file": certFile})
		return ErrInvalidCert
	}
	config.Certificates = []tls.Certificate{cert}
	return nil
}

// decryptKey returns the decrypted key re-encoded as an unencrypted PKCS#8 PEM block
func decryptKey(block *pem.Block, keyFile string, pwdSrc secure.CredentialConfig) ([]byte, error) {
	credential, err := secure.NewCredentialFromConfig(pwdSrc, true)
	if err != nil {
		logger().Error(err, "failed to load key password", log.KV{"file": keyFile})
		return nil, ErrCredentialError
	}
	password, err := credential.GetBytes()
	credential.Clear()
	if err != nil {
		logger().Error(err, "failed to load key password", log.KV{"file": keyFile})
		return nil, ErrCredentialError
	}
	defer utils.Zero(password)
	if len(password) == 0 {
		logger().Error(ErrMissingPassword, "encrypted private key without password", log.KV{"file": keyFile})
		return nil, ErrMissingPassword
	}

	der, err := pemutil.DecryptPKCS8PrivateKey(block.Bytes, password)
	if err != nil {
		logger().Error(err, "failed to decrypt PKCS#8 private key", log.KV{"file": keyFile})
		return nil, ErrDecryptError
	}
	defer utils.Zero(der)
	if _, err = x509.ParsePKCS8PrivateKey(der); err != nil {
		logger().Error(err, "failed to parse decrypted PKCS#8 private key", log.KV{"file": keyFile})
		return nil, ErrDecryptError
	}
	return pem.EncodeToMemory(&pem.Block{Type: pemPKCS8Key, Bytes: der}), nil
}
