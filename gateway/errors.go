package gateway

import "errors"

var (
	// ErrWalletUnavailable reports that no wallet key source is configured
	// or the configured key file does not exist. Read operations keep
	// working; only write operations need a wallet.
	ErrWalletUnavailable = errors.New("wallet unavailable")

	// ErrUserRejected reports that the wallet refused to authorize the
	// connection, which for a keystore-backed wallet means the key could
	// not be decrypted with the configured passphrase.
	ErrUserRejected = errors.New("wallet authorization rejected")

	// ErrNotConnected reports a write operation attempted without a
	// connected wallet session.
	ErrNotConnected = errors.New("wallet not connected")
)
