package entities

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrVerificationFailed = errors.New("webhook verification failed")
	ErrDuplicateDelivery  = errors.New("duplicate delivery")
	ErrUnknownChannel     = errors.New("unknown channel type")
	ErrUnidentified       = errors.New("payload carries no channel identifier")
	ErrPermanentSend      = errors.New("permanent send failure")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
)
