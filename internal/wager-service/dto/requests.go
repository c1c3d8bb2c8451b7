package dto

import "github.com/go-playground/validator/v10"

var validate = validator.New()

// PlaceWagerRequest é o corpo de POST /wagers. O dono vem do header X-Caller.
type PlaceWagerRequest struct {
	Stake      string `json:"stake" validate:"required,numeric"`
	Choice     string `json:"choice" validate:"required,oneof=HEADS TAILS heads tails"`
	UserRandom string `json:"user_random" validate:"required,startswith=0x,len=66,hexadecimal"` // 0x + 32 bytes
	OracleFee  string `json:"oracle_fee" validate:"required,numeric"`
}

func (p *PlaceWagerRequest) Validate() error {
	return validate.Struct(p)
}

// RevelationRequest é o corpo de POST /resolve (callback push ou worker pull)
type RevelationRequest struct {
	Handle         string `json:"handle" validate:"required"`
	ProviderRandom string `json:"provider_random" validate:"required,startswith=0x,len=66,hexadecimal"`
}

func (r *RevelationRequest) Validate() error {
	return validate.Struct(r)
}
