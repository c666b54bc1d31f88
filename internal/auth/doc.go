// Package auth is the identity collaborator of the counter relay.
//
// It stores dashboard users (unique username, Argon2id password hash and an
// optional RFID badge UID), issues HS256 session tokens, and resolves a
// presented token to a stable user ID for the HTTP API and the viewer
// WebSocket handshake.
//
// Usage:
//
//	users := auth.NewUserRepository(db)
//	svc := auth.NewService(users, cfg.Security.JWT.Secret, cfg.Security.JWT.SessionTTLDuration())
//
//	token, user, err := svc.Login(ctx, "alice", "hunter22")
//	userID, err := svc.VerifyIdentity(ctx, token)
//
// Passwords and badge UIDs are never logged.
package auth
