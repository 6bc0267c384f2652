/*
 TLS Client Provider

  Adapted from https://github.com/influxdata/telegraf/tree/master/plugins/common/tls
  All changes are made available under the original MIT License:

	The MIT License (MIT)

	Copyright (c) 2015-2020 InfluxData Inc.

	Permission is hereby granted, free of charge, to any person obtaining a copy
	of this software and associated documentation files (the "Software"), to deal
	in the Software without restriction, including without limitation the rights
	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
	copies of the Software, and to permit persons to whom the Software is
	furnished to do so, subject to the following conditions:

	The above copyright notice and this permission notice shall be included in all
	copies or substantial portions of the Software.

	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
	SOFTWARE.
*/

// Package tls builds client tls.Config values for the outbound redis and nats connections
package tls

import (
	"crypto/tls"

	"github.com/oddbit-project/walletguard/crypt/secure"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	ErrInvalidTlsVersion = utils.Error("invalid TLS version")
	ErrMissingKeyPair    = utils.Error("tlsCert and tlsKey must be set together")

	TLSMinVersionDefault = tls.VersionTLS12
)

var tlsVersionMap = map[string]uint16{
	"TLS12": tls.VersionTLS12,
	"TLS13": tls.VersionTLS13,
}

// KeyCredential is the password source for an encrypted client key
type KeyCredential struct {
	KeyPassword       string `json:"tlsKeyPassword"`
	KeyPasswordEnvVar string `json:"tlsKeyPasswordEnvVar"`
	KeyPasswordFile   string `json:"tlsKeyPasswordFile"`
}

func (k KeyCredential) credentialConfig() secure.CredentialConfig {
	return secure.CredentialConfig{
		Password:       k.KeyPassword,
		PasswordEnvVar: k.KeyPasswordEnvVar,
		PasswordFile:   k.KeyPasswordFile,
	}
}

// ClientConfig represents the configuration for a tls client connection
type ClientConfig struct {
	TLSEnable     bool   `json:"tlsEnable"`
	TLSCA         string `json:"tlsCa"`
	TLSCert       string `json:"tlsCert"`
	TLSKey        string `json:"tlsKey"`
	KeyCredential        // TLS key password
	TLSServerName string `json:"tlsServerName"`
	TLSMinVersion string `json:"tlsMinVersion"`

	TLSInsecureSkipVerify bool `json:"tlsInsecureSkipVerify"`
}

// Validate checks the tls options; a disabled config is always valid
func (c *ClientConfig) Validate() error {
	if !c.TLSEnable {
		return nil
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return ErrMissingKeyPair
	}
	if c.TLSMinVersion != "" {
		if _, ok := tlsVersionMap[c.TLSMinVersion]; !ok {
			return ErrInvalidTlsVersion
		}
	}
	return nil
}

// TLSConfig returns a tls.Config{} struct from the ClientConfig; nil if tls is disabled
func (c *ClientConfig) TLSConfig() (*tls.Config, error) {
	if !c.TLSEnable {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:         TLSMinVersionDefault,
		ServerName:         c.TLSServerName,
		InsecureSkipVerify: c.TLSInsecureSkipVerify,
	}
	if c.TLSMinVersion != "" {
		tlsConfig.MinVersion = tlsVersionMap[c.TLSMinVersion]
	}

	var err error
	if c.TLSCA != "" {
		tlsConfig.RootCAs, err = LoadTLSCertPool([]string{c.TLSCA})
		if err != nil {
			return nil, err
		}
	}

	if c.TLSCert != "" {
		err = LoadTLSCertificate(tlsConfig, c.TLSCert, c.TLSKey, c.credentialConfig())
		if err != nil {
			return nil, err
		}
	}
	return tlsConfig, nil
}
