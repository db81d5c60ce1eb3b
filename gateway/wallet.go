package gateway

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fsnotify/fsnotify"

	"github.com/oscarprdev/nft-market-sync/config"
	"github.com/oscarprdev/nft-market-sync/logging"
)

// WalletProvider supplies signing accounts to the gateway. RequestAccounts
// performs the authorization step; Accounts answers without prompting.
type WalletProvider interface {
	// RequestAccounts unlocks the wallet and returns its accounts.
	// Fails ErrWalletUnavailable when no key source exists and
	// ErrUserRejected when authorization is refused.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts returns the currently authorized accounts, empty when the
	// wallet is locked.
	Accounts() []common.Address

	// Signer returns transact options bound to the unlocked account.
	// Fails ErrNotConnected while locked.
	Signer(chainID *big.Int) (*bind.TransactOpts, error)

	// WatchForChanges returns a channel that signals when the key source
	// may have changed, so sessions can be re-established.
	WatchForChanges(ctx context.Context) <-chan struct{}

	Close() error
}

var _ WalletProvider = (*KeystoreWallet)(nil)

// KeystoreWallet implements WalletProvider over an encrypted geth
// keystore file plus a passphrase file. The keystore file is watched
// with fsnotify so key rotation re-authorizes without a restart.
type KeystoreWallet struct {
	logger         logging.Logger
	keystoreFile   string
	passphraseFile string
	watcher        *fsnotify.Watcher
	changeCh       chan struct{}

	mu      sync.Mutex
	key     *ecdsa.PrivateKey
	address common.Address
	closed  bool
}

// NewKeystoreWallet creates an unlocked-on-demand wallet. A missing
// keystore file is not an error here; it surfaces as
// ErrWalletUnavailable from RequestAccounts, so a service configured
// without a wallet still starts for read-only use.
func NewKeystoreWallet(logger logging.Logger, cfg config.WalletConfig) (*KeystoreWallet, error) {
	w := &KeystoreWallet{
		logger:         logging.ForComponent(logger, logging.ComponentWallet),
		keystoreFile:   cfg.KeystoreFile,
		passphraseFile: cfg.PassphraseFile,
		changeCh:       make(chan struct{}, 1),
	}

	if cfg.HotReloadEnabled && cfg.KeystoreFile != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating key watcher: %w", err)
		}
		// Watch the directory: editors and rotation tooling replace the
		// file, which drops a watch set on the file itself.
		if err := watcher.Add(filepath.Dir(cfg.KeystoreFile)); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("watching key directory: %w", err)
		}
		w.watcher = watcher
	}

	return w, nil
}

// RequestAccounts unlocks the keystore and returns the wallet account.
func (w *KeystoreWallet) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if w.keystoreFile == "" {
		return nil, fmt.Errorf("%w: no keystore configured", ErrWalletUnavailable)
	}

	keyJSON, err := os.ReadFile(w.keystoreFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: keystore file %s not found", ErrWalletUnavailable, w.keystoreFile)
		}
		return nil, fmt.Errorf("%w: reading keystore: %v", ErrWalletUnavailable, err)
	}

	passphrase, err := w.readPassphrase()
	if err != nil {
		return nil, err
	}

	key, err := keystore.DecryptKey(keyJSON, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
	}

	w.mu.Lock()
	w.key = key.PrivateKey
	w.address = key.Address
	w.mu.Unlock()

	w.logger.Info().
		Str(logging.FieldAccount, key.Address.Hex()).
		Msg("wallet unlocked")

	return []common.Address{key.Address}, nil
}

func (w *KeystoreWallet) readPassphrase() (string, error) {
	if w.passphraseFile == "" {
		return "", nil
	}
	data, err := os.ReadFile(w.passphraseFile)
	if err != nil {
		return "", fmt.Errorf("%w: reading passphrase file: %v", ErrWalletUnavailable, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Accounts returns the unlocked account, empty while locked.
func (w *KeystoreWallet) Accounts() []common.Address {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.key == nil {
		return nil
	}
	return []common.Address{w.address}
}

// Signer returns transact options for the unlocked key.
func (w *KeystoreWallet) Signer(chainID *big.Int) (*bind.TransactOpts, error) {
	w.mu.Lock()
	key := w.key
	w.mu.Unlock()

	if key == nil {
		return nil, ErrNotConnected
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("building transactor: %w", err)
	}
	return opts, nil
}

// Lock drops the decrypted key. The next RequestAccounts re-authorizes.
func (w *KeystoreWallet) Lock() {
	w.mu.Lock()
	w.key = nil
	w.address = common.Address{}
	w.mu.Unlock()
}

// WatchForChanges signals when the keystore file is created, rewritten,
// or removed. Returns a never-firing channel when hot reload is off.
func (w *KeystoreWallet) WatchForChanges(ctx context.Context) <-chan struct{} {
	if w.watcher == nil {
		return w.changeCh
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if event.Name != w.keystoreFile {
					continue
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
					continue
				}
				w.logger.Info().
					Str("file", event.Name).
					Str(logging.FieldOperation, event.Op.String()).
					Msg("keystore file changed")

				w.mu.Lock()
				if !w.closed {
					select {
					case w.changeCh <- struct{}{}:
					default:
					}
				}
				w.mu.Unlock()
			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn().Err(err).Msg("key watcher error")
			}
		}
	}()

	return w.changeCh
}

// Close shuts down the watcher and drops the key material.
func (w *KeystoreWallet) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.key = nil

	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
