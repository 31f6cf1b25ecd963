// Package api serves the orchestrator over HTTP.
//
// Reads (GET) are open. Every POST route requires the shared API key as
// "Authorization: Bearer <key>"; a rejected request never reaches the
// service. Errors carry a code and map to a status:
//
//	NOT_FOUND          404
//	ILLEGAL_TRANSITION 409
//	OWNERSHIP_MISMATCH 403
//	INVALID_INPUT      400
//	UNAUTHORIZED       401
//	RATE_LIMITED       429
//
// Error bodies look like {"ok":false,"error":"...","code":"NOT_FOUND"}.
package api
