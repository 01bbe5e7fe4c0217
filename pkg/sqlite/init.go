package sqlite

import (
	"database/sql"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

// DriverName is a go-sqlite3 driver whose connections have sqlite-vec loaded.
const DriverName = "sqlite3_vec"

func init() {
	// Registers sqlite-vec as an auto extension for every new connection.
	sqlite_vec.Auto()

	sql.Register(DriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			_, err := conn.Exec("PRAGMA foreign_keys = ON", nil)
			return err
		},
	})
}

// SerializeVector converts a float32 slice to the little-endian BLOB layout
// sqlite-vec reads.
func SerializeVector(vec []float32) ([]byte, error) {
	return sqlite_vec.SerializeFloat32(vec)
}
