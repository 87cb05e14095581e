// Package repo holds what the gorm repositories embed.
package repo

import (
	"context"

	"gorm.io/gorm"
)

const dialectSQLite = "sqlite"

// Base carries the connection a repository queries through. It is a value
// type: WithTx returns a copy bound to the transaction.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB scopes the connection to ctx. A nil ctx returns the raw handle.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

func (b Base) WithTx(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{conn: tx}
}

// Dialect names the driver behind the connection, or "" if there is none.
func (b Base) Dialect() string {
	if b.conn == nil || b.conn.Dialector == nil {
		return ""
	}
	return b.conn.Dialector.Name()
}

// IsSQLite gates the queries whose JSON syntax differs from postgres.
func (b Base) IsSQLite() bool {
	return b.Dialect() == dialectSQLite
}

// First runs q and returns the first row as a *T. gorm.ErrRecordNotFound
// passes through untouched.
func First[T any](q *gorm.DB) (*T, error) {
	var out T
	if err := q.First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}
