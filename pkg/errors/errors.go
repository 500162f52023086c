package errors

import "errors"

func (d Definition) Error() string {
	return d.Message
}

// Definition carries a business error code plus its default message.
type Definition struct {
	Code    string
	Message string
}

// Location acquisition errors.
var (
	PermissionDenied     = Definition{Code: "PERMISSION_DENIED", Message: "Positioning permission withheld"}
	LocationUnavailable  = Definition{Code: "LOCATION_UNAVAILABLE", Message: "Location unavailable"}
	LocationTimeout      = Definition{Code: "LOCATION_TIMEOUT", Message: "Location acquisition timed out"}
	AccuracyInsufficient = Definition{Code: "ACCURACY_INSUFFICIENT", Message: "Fix accuracy insufficient"}
)

// Shift lifecycle errors.
var (
	ShiftNotFound          = Definition{Code: "SHIFT_NOT_FOUND", Message: "Shift not found"}
	ShiftNotAssigned       = Definition{Code: "SHIFT_NOT_ASSIGNED", Message: "Shift has no guard assigned"}
	OwnershipMismatch      = Definition{Code: "OWNERSHIP_MISMATCH", Message: "Actor does not own this shift"}
	InvalidStateTransition = Definition{Code: "INVALID_STATE_TRANSITION", Message: "Invalid shift state transition"}
	BreakAlreadyOpen       = Definition{Code: "BREAK_ALREADY_OPEN", Message: "Shift already has an open break"}
	BreakNotFound          = Definition{Code: "BREAK_NOT_FOUND", Message: "Break not found or already closed"}
	AdminRequired          = Definition{Code: "ADMIN_REQUIRED", Message: "Operation requires admin role"}
)

// Scheduling errors.
var (
	ConflictDetected    = Definition{Code: "CONFLICT_DETECTED", Message: "Shift conflicts with an existing assignment"}
	InvalidShiftWindow  = Definition{Code: "INVALID_SHIFT_WINDOW", Message: "Scheduled end must be after scheduled start"}
	InvalidLocation     = Definition{Code: "INVALID_LOCATION", Message: "Latitude/longitude out of range"}
	ZoneInvalid         = Definition{Code: "ZONE_INVALID", Message: "Geofence zone radius must be positive"}
	UnknownQueuedAction = Definition{Code: "UNKNOWN_QUEUED_ACTION", Message: "Unknown queued action type"}
)

// Offline sync errors.
var (
	SyncFailure   = Definition{Code: "SYNC_FAILURE", Message: "Sync attempt failed"}
	SyncExhausted = Definition{Code: "SYNC_EXHAUSTED", Message: "Sync retries exhausted, action dropped"}
)

// Auth errors.
var (
	Unauthorized    = Definition{Code: "UNAUTHORIZED", Message: "Unauthorized"}
	InvalidGuard    = Definition{Code: "INVALID_GUARD_ID", Message: "Invalid guard ID format"}
	TooManyRequests = Definition{Code: "TOO_MANY_REQUESTS", Message: "Too many requests, slow down"}
)

// Lookup resolves a code back to its Definition.
var Lookup = map[string]Definition{
	PermissionDenied.Code:       PermissionDenied,
	LocationUnavailable.Code:    LocationUnavailable,
	LocationTimeout.Code:        LocationTimeout,
	AccuracyInsufficient.Code:   AccuracyInsufficient,
	ShiftNotFound.Code:          ShiftNotFound,
	ShiftNotAssigned.Code:       ShiftNotAssigned,
	OwnershipMismatch.Code:      OwnershipMismatch,
	InvalidStateTransition.Code: InvalidStateTransition,
	BreakAlreadyOpen.Code:       BreakAlreadyOpen,
	BreakNotFound.Code:          BreakNotFound,
	AdminRequired.Code:          AdminRequired,
	ConflictDetected.Code:       ConflictDetected,
	InvalidShiftWindow.Code:     InvalidShiftWindow,
	InvalidLocation.Code:        InvalidLocation,
	ZoneInvalid.Code:            ZoneInvalid,
	UnknownQueuedAction.Code:    UnknownQueuedAction,
	SyncFailure.Code:            SyncFailure,
	SyncExhausted.Code:          SyncExhausted,
	Unauthorized.Code:           Unauthorized,
	InvalidGuard.Code:           InvalidGuard,
	TooManyRequests.Code:        TooManyRequests,
}

// Get returns the Definition for code, or a generic one when unknown.
func Get(code string) Definition {
	if def, ok := Lookup[code]; ok {
		return def
	}
	return Definition{Code: code, Message: "Unexpected error"}
}

// Infra sentinels.
var (
	ErrTokenGeneratorNotInitialized = errors.New("token generator not initialized")
	ErrUnexpectedSigningMethod      = errors.New("unexpected signing method")
	ErrInvalidToken                 = errors.New("invalid token")
	ErrInvalidTokenClaims           = errors.New("invalid token claims")
	ErrInvalidTokenType             = errors.New("invalid token type")
	ErrUserIDNotFound               = errors.New("user id not found in claims")
)

// SkipMessageError tells a consumer to ack without processing.
type SkipMessageError struct {
	Reason string
}

func (e *SkipMessageError) Error() string {
	return "message skipped: " + e.Reason
}

// IsSkip reports whether err is a SkipMessageError.
func IsSkip(err error) bool {
	var skip *SkipMessageError
	return errors.As(err, &skip)
}
