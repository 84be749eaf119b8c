package database

import "github.com/jackc/pgx/v5/pgxpool"

// Exposed to the external conformance test, which cannot import storetest
// from inside package database.
func SharedStore() *PostgresStore { return testStore }

func SharedPool() *pgxpool.Pool { return testStore.pool }
