package db

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

func asMySQLError(err error, target **mysql.MySQLError) bool {
	return errors.As(err, target)
}
