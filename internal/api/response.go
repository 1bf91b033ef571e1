package api

import "github.com/Checker-Finance/fxo-desk/pkg/model"

// ErrorResponse carries the error and, for rejected transitions, the
// session as it stands after the rejection.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Session *model.SessionSnapshot `json:"session,omitempty"`
}

// PairsResponse lists tradable pairs and the form defaults.
type PairsResponse struct {
	Pairs          []model.Pair     `json:"pairs"`
	DefaultRequest model.RFQRequest `json:"default_request"`
}

// SpotResponse lists the latest observation per pair.
type SpotResponse struct {
	Spots []model.SpotObservation `json:"spots"`
}
