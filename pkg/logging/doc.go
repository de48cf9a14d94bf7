// Package logging provides subsystem-tagged structured logging built on log/slog.
//
// Every record carries a "subsystem" attribute (for example "OAuth", "Pool" or
// "TokenStore") so output from the credential subsystem can be filtered
// without parsing messages.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
//	logging.Info("Pool", "Built session for owner=%s mode=%s", logging.TruncateID(owner), mode)
//	logging.Error("OAuth", err, "Token refresh failed")
//
// Security-relevant events (token stored, token deleted, revocation) go through
// Audit, which emits key/value pairs with a SECURITY_AUDIT prefix:
//
//	logging.Audit("OAuth token stored", "event", "token_stored", "owner", logging.TruncateID(owner))
//
// Token values must never be passed to any of these functions.
package logging
