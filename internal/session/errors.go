package session

import "errors"

var (
	// ErrPasswordRequired means the room is protected and no password was
	// supplied. Not an authentication failure: the caller should prompt
	// for credentials and retry.
	ErrPasswordRequired = errors.New("room password required")

	// ErrBadPassword means the supplied password was rejected.
	ErrBadPassword = errors.New("room password rejected")

	// ErrNotInRoom means the operation needs an active room session.
	ErrNotInRoom = errors.New("not in a room")

	// ErrAlreadyJoined means a session is already active; leave first.
	ErrAlreadyJoined = errors.New("already in a room")

	// ErrNoRemoteFile means no peer has announced a shared file yet.
	ErrNoRemoteFile = errors.New("no remote file announced")
)
