package settings

import "errors"

var (
	// ErrUnknownLanguage is returned for locales the speech engine does not support.
	ErrUnknownLanguage = errors.New("settings: unknown language")

	// ErrUnknownFacing is returned for camera names other than back/front.
	ErrUnknownFacing = errors.New("settings: unknown camera facing")
)
