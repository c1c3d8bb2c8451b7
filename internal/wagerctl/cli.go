// Package wagerctl implementa os comandos do CLI de operador e jogador sobre
// as APIs HTTP (direto nos serviços ou via api-gateway).
package wagerctl

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/alecthomas/kong"

	"github.com/radieske/coinflip-bet-platform-poc/internal/apiclient"
)

// Globals são as flags comuns a todos os comandos
type Globals struct {
	WagerURL string        `name:"wager-url" env:"WAGER_URL" default:"http://localhost:8080/api/wager" help:"Base URL of the wager API"`
	HouseURL string        `name:"house-url" env:"HOUSE_URL" default:"http://localhost:8080/api/house" help:"Base URL of the house API"`
	Caller   string        `short:"c" env:"WAGERCTL_CALLER" help:"Caller address sent as X-Caller"`
	Timeout  time.Duration `default:"5s" help:"Request timeout"`

	Out io.Writer `kong:"-"`
}

func (g *Globals) wagers() *apiclient.Client {
	c := apiclient.New(g.WagerURL, g.Caller)
	c.HTTP.Timeout = g.Timeout
	return c
}

func (g *Globals) funds() *apiclient.Client {
	c := apiclient.New(g.HouseURL, g.Caller)
	c.HTTP.Timeout = g.Timeout
	return c
}

func (g *Globals) requestCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.Timeout)
}

func (g *Globals) print(v any) error {
	enc := json.NewEncoder(g.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CLI é a árvore de comandos do wagerctl
type CLI struct {
	Globals

	Place  PlaceCmd  `cmd:"" help:"Place a coinflip wager"`
	Get    GetCmd    `cmd:"" help:"Show a wager"`
	List   ListCmd   `cmd:"" help:"List wagers of an owner"`
	Cancel CancelCmd `cmd:"" help:"Cancel a pending wager after the timeout"`
	Fee    FeeCmd    `cmd:"" help:"Show the current oracle fee"`

	House        HouseCmd        `cmd:"" help:"Show the house balance"`
	DepositHouse DepositHouseCmd `cmd:"deposit-house" help:"Deposit operator funds into the house (operator)"`
	WithdrawFees WithdrawFeesCmd `cmd:"withdraw-fees" help:"Withdraw accumulated fees (operator)"`
	Wallet       WalletCmd       `cmd:"" help:"Show a player wallet"`
	Deposit      DepositCmd      `cmd:"" help:"Deposit into a player wallet"`
	Withdraw     WithdrawCmd     `cmd:"" help:"Withdraw from the caller's wallet"`
	Freeze       FreezeCmd       `cmd:"" help:"Freeze or unfreeze a wallet (operator)"`
	Ledger       LedgerCmd       `cmd:"" help:"Show ledger entries of an account"`
}

// Options são as opções do parser kong compartilhadas entre o main e os testes
func Options() []kong.Option {
	return []kong.Option{
		kong.Name("wagerctl"),
		kong.Description("Coinflip wager platform command line"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	}
}
