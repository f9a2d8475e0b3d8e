package storage

import (
	"database/sql"
	"testing"
)

// MySQLForTest exposes the shared test database to the external test package.
func MySQLForTest(t *testing.T) *sql.DB {
	return getMySQLDB(t)
}
