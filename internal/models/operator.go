package models

import (
	"time"
)

// Operator performs administrative actions on balances
type Operator struct {
	ID   string
	Name string
}

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}
