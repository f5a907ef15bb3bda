/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/Seednode/mindmeld/session"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon())
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

// userFacing translates an engine error into a wire code plus a message fit
// to show a player. Every action error crosses this boundary; nothing from
// the engine reaches a client raw.
func userFacing(err error) (code, message string) {
	switch {
	case errors.Is(err, session.ErrNotAuthenticated):
		return "not_authenticated", "Still setting up your player identity. Please try again in a moment."
	case errors.Is(err, session.ErrValidation):
		return "validation", validationDetail(err)
	case errors.Is(err, session.ErrNotFound):
		return "not_found", "Game not found. Check the ID and try again."
	case errors.Is(err, session.ErrGameFull):
		return "game_full", "This game is already full."
	default:
		return "store", "Could not reach the game. Please try again."
	}
}

// validationDetail pulls the human-readable tail out of a wrapped
// validation error ("invalid input: player name required").
func validationDetail(err error) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 {
		msg = msg[i+2:]
	}
	if msg == "" {
		return "Invalid input."
	}
	return strings.ToUpper(msg[:1]) + msg[1:] + "."
}
