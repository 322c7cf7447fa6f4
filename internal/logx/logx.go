package logx

import (
	"github.com/miguelbarbosa0221/automatizacao-plantao-sub000/schema"
	"pkt.systems/pslog"
)

// WithUser annotates the logger with the user id if present.
func WithUser(log pslog.Logger, userID schema.UserID) pslog.Logger {
	if log == nil || userID == "" {
		return log
	}
	return log.With("user", userID)
}

// WithUserOrg annotates the logger with user and organization identifiers.
func WithUserOrg(log pslog.Logger, userID schema.UserID, orgID schema.OrgID) pslog.Logger {
	return WithOrg(WithUser(log, userID), orgID)
}

// WithOrg annotates the logger with an organization id when available.
func WithOrg(log pslog.Logger, orgID schema.OrgID) pslog.Logger {
	if log == nil || orgID == "" {
		return log
	}
	return log.With("org", orgID)
}

// WithPath annotates the logger with a store path when available.
func WithPath(log pslog.Logger, path string) pslog.Logger {
	if log == nil || path == "" {
		return log
	}
	return log.With("path", path)
}
