package service

import "errors"

var (
	// ErrDownloadNotFound is returned when a cart operation names an unknown download
	ErrDownloadNotFound = errors.New("download not found")
	// ErrDownloadUnavailable is returned for downloads that are not published
	ErrDownloadUnavailable = errors.New("download is not available for purchase")
	// ErrInvalidPriceID is returned when a price id is outside the download's tiers
	ErrInvalidPriceID = errors.New("invalid price id")
	// ErrInvalidAmount is returned for fee amounts that do not parse
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrReceiptNotFound is returned when a purchase key does not belong to the visitor
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrUnknownGateway is returned when dispatching to an unregistered gateway
	ErrUnknownGateway = errors.New("unknown gateway")
)
