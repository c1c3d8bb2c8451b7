package wagerctl

import "errors"

type HouseCmd struct{}

func (c *HouseCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	h, err := g.wagers().House(ctx)
	if err != nil {
		return err
	}
	return g.print(h)
}

type DepositHouseCmd struct {
	Amount string `arg:""`
}

func (c *DepositHouseCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	h, err := g.funds().DepositHouse(ctx, c.Amount)
	if err != nil {
		return err
	}
	return g.print(h)
}

type WithdrawFeesCmd struct {
	Amount string `arg:""`
}

func (c *WithdrawFeesCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	h, err := g.funds().WithdrawFees(ctx, c.Amount)
	if err != nil {
		return err
	}
	return g.print(h)
}

type WalletCmd struct {
	Owner string `arg:"" optional:"" help:"Owner address (defaults to the caller)"`
}

func (c *WalletCmd) Run(g *Globals) error {
	owner := c.Owner
	if owner == "" {
		owner = g.Caller
	}
	if owner == "" {
		return errors.New("wallet requires an owner or --caller")
	}
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.funds().Wallet(ctx, owner)
	if err != nil {
		return err
	}
	return g.print(w)
}

type DepositCmd struct {
	Amount string `arg:""`
	Owner  string `help:"Wallet owner (defaults to the caller)"`
}

func (c *DepositCmd) Run(g *Globals) error {
	owner := c.Owner
	if owner == "" {
		owner = g.Caller
	}
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.funds().DepositWallet(ctx, owner, c.Amount)
	if err != nil {
		return err
	}
	return g.print(w)
}

type WithdrawCmd struct {
	Amount string `arg:""`
}

func (c *WithdrawCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.funds().WithdrawWallet(ctx, c.Amount)
	if err != nil {
		return err
	}
	return g.print(w)
}

type FreezeCmd struct {
	Owner    string `arg:""`
	Unfreeze bool   `help:"Remove the freeze instead of applying it"`
}

func (c *FreezeCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.funds().FreezeWallet(ctx, c.Owner, !c.Unfreeze)
	if err != nil {
		return err
	}
	return g.print(w)
}

type LedgerCmd struct {
	Account string `arg:"" help:"Owner address or \"house\""`
	Limit   int    `default:"20"`
}

func (c *LedgerCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	l, err := g.funds().Ledger(ctx, c.Account, c.Limit)
	if err != nil {
		return err
	}
	return g.print(l)
}
