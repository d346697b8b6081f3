package model

import (
	"time"
)

type Client struct {
	Base
	Name      string    `db:"name" json:"name"`
	Phone     string    `db:"phone" json:"phone"`
	Notes     string    `db:"notes" json:"notes"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type ClientRequest struct {
	Name  string `json:"name" binding:"required,max=200"`
	Phone string `json:"phone" binding:"max=50"`
	Notes string `json:"notes" binding:"max=2000"`
}
