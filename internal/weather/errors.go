package weather

import "codeberg.org/mutker/thermopoll/internal/errors"

const (
	ErrUpstreamStatus = errors.ErrorCode("weather_upstream_status")
	ErrFetchFailed    = errors.ErrorCode("weather_fetch_failed")
	ErrResponseDecode = errors.ErrorCode("weather_response_decode_failed")
)
