package dto

// LockRequest body para POST /api/lock.
type LockRequest struct {
	Reason      string      `json:"reason"`
	LockType    string      `json:"lock_type"`
	Differences *AmountsDTO `json:"differences,omitempty"`
}

// UnlockRequest body opcional para DELETE /api/lock.
type UnlockRequest struct {
	Reason string `json:"reason"`
}

// ForceLogoutRequest body para POST /api/admin/sessions/:id/logout.
type ForceLogoutRequest struct {
	Reason string `json:"reason"`
}
