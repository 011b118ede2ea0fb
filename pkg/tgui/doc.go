// Package tgui holds small helpers for composing Telegram HTML messages:
// escaping, inline tags and rune-safe truncation.
package tgui
