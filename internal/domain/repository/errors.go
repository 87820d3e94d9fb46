package repository

import "errors"

var ErrInvalidCursor = errors.New("invalid cursor")
var ErrNotFound = errors.New("not found")
var ErrCursorRegression = errors.New("cursor would move backwards")
var ErrInvalidIdentifier = errors.New("invalid sql identifier")
var ErrInvalidFilter = errors.New("invalid filter")
