package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data joins a route prefix and its payload parts with ':'.
func Data(prefix string, parts ...string) (string, error) {
	s := strings.Join(append([]string{strings.TrimSpace(prefix)}, parts...), ":")
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}
