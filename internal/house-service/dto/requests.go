package dto

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// AmountRequest é o corpo de depósitos e saques (caixa e carteira)
type AmountRequest struct {
	Amount string `json:"amount" validate:"required,numeric"`
}

func (a *AmountRequest) Validate() error { return validate.Struct(a) }

// DepositWalletRequest credita a carteira de qualquer dono (on-ramp)
type DepositWalletRequest struct {
	Owner  string `json:"owner" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required,numeric"`
}

func (d *DepositWalletRequest) Validate() error { return validate.Struct(d) }

// FreezeRequest aplica ou remove o bloqueio de compliance
type FreezeRequest struct {
	Owner  string `json:"owner" validate:"required,eth_addr"`
	Frozen bool   `json:"frozen"`
}

func (f *FreezeRequest) Validate() error { return validate.Struct(f) }
