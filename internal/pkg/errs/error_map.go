/*
Package errs provides custom error types and application-level error code constants.

This file defines the map from error codes to the CustomError struct, used to
standardize error construction everywhere in the application.
*/
package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:     {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Session and Action Guard Errors
	ErrUsernameEmpty:    {Code: ErrUsernameEmpty, Message: "Please enter a name before joining."},
	ErrUsernameTaken:    {Code: ErrUsernameTaken, Message: "Username taken"},
	ErrAlreadyConnected: {Code: ErrAlreadyConnected, Message: "You are already connected."},
	ErrNotConnected:     {Code: ErrNotConnected, Message: "Not connected. Join the chat first."},
	ErrEmptyMessage:     {Code: ErrEmptyMessage, Message: "Cannot send an empty message."},
	ErrNoPeerSelected:   {Code: ErrNoPeerSelected, Message: "Select a user to message first."},
	ErrUnknownPeer:      {Code: ErrUnknownPeer, Message: "That user is not in the roster."},
	ErrPeerOffline:      {Code: ErrPeerOffline, Message: "That user is offline."},

	// 3xxx: Transport Errors
	ErrChannelClosed: {Code: ErrChannelClosed, Message: "Connection is not open."},
	ErrJoinTimeout:   {Code: ErrJoinTimeout, Message: "The server did not answer the join request in time."},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}
