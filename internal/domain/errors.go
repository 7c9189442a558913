package domain

import "errors"

// Domain errors.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNoSuchItem       = errors.New("no such item")
	ErrTimeIntersection = errors.New("time intersects with another item")
	ErrStorageWrite     = errors.New("failed to persist state")
	ErrStorageCorrupt   = errors.New("persisted state is corrupt")
	ErrInvalidKind      = errors.New("invalid item kind")
	ErrInvalidStatus    = errors.New("invalid status")
	ErrEmptyName        = errors.New("name cannot be empty")
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoItemsInFile    = errors.New("no items found in file")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnknownBackend   = errors.New("unknown store backend")
	ErrConfigExists     = errors.New("config file already exists")
)
