// Package config loads otpvault settings from the environment.
//
// Values come from environment variables, optionally seeded from .env files
// through godotenv, and are parsed into tagged structs with caarlos0/env.
// Each configuration type is parsed once per process and cached.
//
//	var cfg config.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	if err := cfg.Validate(); err != nil {
//		return err
//	}
//
// Application settings use the OTPVAULT_ prefix (OTPVAULT_CLOCK_SERVER,
// OTPVAULT_VAULT_KDF_ITERATIONS, OTPVAULT_STORAGE_SECRETS and so on).
// Database settings keep their conventional names: PG_CONN_URL,
// MONGODB_URL and REDIS_URL.
package config
