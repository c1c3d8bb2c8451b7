package house

import "context"

// Tx é a fronteira transacional do caixa. LockHouse é o lock global do caixa
// (toda checagem de saldo passa por ele); LockWallet trava a carteira do dono.
// Ordem de locks: caixa antes de carteira.
type Tx interface {
	LockHouse(ctx context.Context) (*Ledger, error)
	SaveHouse(ctx context.Context, l *Ledger) error
	LockWallet(ctx context.Context, owner string) (*Wallet, error)
	// OpenWallet trava a carteira, criando-a com saldo zero se não existir
	OpenWallet(ctx context.Context, owner string) (*Wallet, error)
	// SaveWallet grava uma carteira obtida por LockWallet/OpenWallet
	SaveWallet(ctx context.Context, w *Wallet) error
	AppendEntry(ctx context.Context, e Entry) error
}

// Store persiste o caixa, as carteiras e o diário
type Store interface {
	WithinHouseTx(ctx context.Context, fn func(Tx) error) error
	House(ctx context.Context) (Ledger, error)
	Wallet(ctx context.Context, owner string) (Wallet, error)
	Entries(ctx context.Context, account string, limit int) ([]Entry, error)
}
