// Package tgui renders Telegram HTML messages and inline keyboards.
//
// Text added through Builder is escaped for ParseMode="HTML"; values of type H
// are already safe.
package tgui
