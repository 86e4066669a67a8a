package domain

import "errors"

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExists          = errors.New("room already exists")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionExists       = errors.New("session already exists")
	ErrSessionNotLive      = errors.New("session not live")
	ErrNotHost             = errors.New("caller is not the session host")
	ErrChannelNotFound     = errors.New("channel not found")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrAlreadyStreaming    = errors.New("stream already running")
	ErrUnsupportedPlatform = errors.New("unsupported streaming platform")
	ErrSecretNotFound      = errors.New("secret not found")
)
