package storage

import (
	cherrors "github.com/evalgo-chronicle/chronicle/errors"
)

func errValidation(msg, path string) error {
	return cherrors.WithPath(cherrors.Validation, path, msg)
}

func errNotFound(path string) error {
	return cherrors.WithPath(cherrors.NotFound, path, "no such blob")
}

func errConflict(path, msg string) error {
	return cherrors.WithPath(cherrors.Conflict, path, msg)
}

func errReadOnly() error {
	return cherrors.New(cherrors.ReadOnly, "backend is read-only")
}

func errNetwork(msg string) error {
	return cherrors.New(cherrors.Network, msg)
}

func errPermissionDenied(path string) error {
	return cherrors.WithPath(cherrors.PermissionDenied, path, "access denied")
}
