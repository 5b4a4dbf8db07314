package ecobee

import "codeberg.org/mutker/thermopoll/internal/errors"

const (
	// Authorization errors: operator intervention required
	ErrAuthorizeFailed  = errors.ErrorCode("ecobee_authorize_failed")
	ErrAuthAbandoned    = errors.ErrorCode("ecobee_authorization_abandoned")
	ErrTokenExchange    = errors.ErrorCode("ecobee_token_exchange_failed")
	ErrRefreshDenied    = errors.ErrorCode("ecobee_token_refresh_denied")
	ErrTokenLoadFailed  = errors.ErrorCode("ecobee_token_load_failed")
	ErrTokenSaveFailed  = errors.ErrorCode("ecobee_token_save_failed")
	ErrTokenCorrupt     = errors.ErrorCode("ecobee_token_corrupt")
	ErrTokenParseFailed = errors.ErrorCode("ecobee_token_parse_failed")

	// Upstream errors: recoverable, the entity is skipped for the tick
	ErrUpstreamStatus = errors.ErrorCode("ecobee_upstream_status")
	ErrFetchFailed    = errors.ErrorCode("ecobee_fetch_failed")

	// Parse errors: the smallest possible unit is skipped
	ErrMissingThermostat = errors.ErrorCode("ecobee_thermostat_missing")
	ErrResponseDecode    = errors.ErrorCode("ecobee_response_decode_failed")
)

// AuthCodes are the error codes that mean the token can no longer be used to
// fetch and re-running interactive authorization is required.
func IsAuthError(err error) bool {
	switch errors.CodeOf(err) {
	case ErrAuthorizeFailed, ErrAuthAbandoned, ErrTokenExchange, ErrRefreshDenied:
		return true
	default:
		return false
	}
}
