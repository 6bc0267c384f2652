package httpserver

import "github.com/oddbit-project/walletguard/utils"

const (
	ServerDefaultReadTimeout  = 30
	ServerDefaultWriteTimeout = 30
	ServerDefaultPort         = 5000
	ServerDefaultName         = "http"

	ErrNilConfig   = utils.Error("Config is nil")
	ErrInvalidPort = utils.Error("server port must be between 1 and 65535")
)
