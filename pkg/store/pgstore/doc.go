// Package pgstore implements the vault storage interfaces on PostgreSQL
// using a pgx connection pool.
//
// Secrets keeps entries in the otp_entries table; UpdateAll runs as one
// transaction so a key rotation is never half applied. Preferences keeps
// key/value rows in the preferences table and announces every change with
// NOTIFY, which Watch consumes with LISTEN.
//
// The schema is embedded and applied with goose:
//
//	pool, err := pgstore.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//	v := vault.New(pgstore.NewSecrets(pool), pgstore.NewPreferences(pool, log))
package pgstore
