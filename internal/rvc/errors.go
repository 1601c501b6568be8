package rvc

import "errors"

// Domain errors for the RV-C protocol package.
var (
	// ErrUnknownDGN is returned by the decoder when a DGN has no entry in the
	// Spec Registry. Unknown DGNs are routine on a shared bus.
	ErrUnknownDGN = errors.New("rvc: unknown DGN")

	// ErrInvalidDGN is returned when a DGN string is not a 17-bit hex number.
	ErrInvalidDGN = errors.New("rvc: invalid DGN")

	// ErrInvalidCANID is returned when an arbitration identifier cannot be parsed.
	ErrInvalidCANID = errors.New("rvc: invalid CAN identifier")

	// ErrInvalidPayload is returned when a payload is not a sequence of hex byte pairs.
	ErrInvalidPayload = errors.New("rvc: invalid payload")

	// ErrMalformedLine is returned when a capture line has too few fields.
	ErrMalformedLine = errors.New("rvc: malformed capture line")

	// ErrInvalidSpec is returned when the Spec Registry source fails validation.
	ErrInvalidSpec = errors.New("rvc: invalid spec registry")

	// ErrInvalidUnit is returned for an unrecognised unit tag.
	ErrInvalidUnit = errors.New("rvc: invalid unit")
)
