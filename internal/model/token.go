package model

import "math/big"

// Token captures immutable ERC20 metadata.
type Token struct {
	ID          string   `json:"id"`
	Symbol      string   `json:"symbol"`
	Name        string   `json:"name"`
	Decimals    uint8    `json:"decimals"`
	TotalSupply *big.Int `json:"total_supply,omitempty"`
}
