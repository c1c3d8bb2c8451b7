package wagerctl

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/radieske/coinflip-bet-platform-poc/internal/wager-service/dto"
)

type PlaceCmd struct {
	Stake      string `arg:"" help:"Stake amount"`
	Choice     string `arg:"" enum:"heads,tails" help:"heads or tails"`
	UserRandom string `name:"user-random" help:"32-byte hex seed (random when omitted)"`
	OracleFee  string `name:"oracle-fee" help:"Oracle fee to pay (current fee when omitted)"`
}

func (c *PlaceCmd) Run(g *Globals) error {
	if g.Caller == "" {
		return errors.New("place requires --caller")
	}
	ctx, cancel := g.requestCtx()
	defer cancel()
	api := g.wagers()

	fee := c.OracleFee
	if fee == "" {
		f, err := api.OracleFee(ctx)
		if err != nil {
			return fmt.Errorf("oracle fee: %w", err)
		}
		fee = f.Fee.String()
	}
	seed := c.UserRandom
	if seed == "" {
		var b [common.HashLength]byte
		if _, err := rand.Read(b[:]); err != nil {
			return err
		}
		seed = common.Hash(b).Hex()
	}

	w, err := api.PlaceWager(ctx, dto.PlaceWagerRequest{
		Stake:      c.Stake,
		Choice:     c.Choice,
		UserRandom: seed,
		OracleFee:  fee,
	})
	if err != nil {
		return err
	}
	return g.print(w)
}

type GetCmd struct {
	ID int64 `arg:"" help:"Wager id"`
}

func (c *GetCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.wagers().GetWager(ctx, c.ID)
	if err != nil {
		return err
	}
	return g.print(w)
}

type ListCmd struct {
	Owner string `arg:"" optional:"" help:"Owner address (defaults to the caller)"`
}

func (c *ListCmd) Run(g *Globals) error {
	owner := c.Owner
	if owner == "" {
		owner = g.Caller
	}
	if owner == "" {
		return errors.New("list requires an owner or --caller")
	}
	ctx, cancel := g.requestCtx()
	defer cancel()
	out, err := g.wagers().ListWagers(ctx, owner)
	if err != nil {
		return err
	}
	return g.print(out)
}

type CancelCmd struct {
	ID int64 `arg:"" help:"Wager id"`
}

func (c *CancelCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	w, err := g.wagers().CancelWager(ctx, c.ID)
	if err != nil {
		return err
	}
	return g.print(w)
}

type FeeCmd struct{}

func (c *FeeCmd) Run(g *Globals) error {
	ctx, cancel := g.requestCtx()
	defer cancel()
	f, err := g.wagers().OracleFee(ctx)
	if err != nil {
		return err
	}
	return g.print(f)
}
