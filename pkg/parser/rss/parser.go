// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package rss

import (
	"strings"
	"unicode/utf8"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
	"github.com/DazB/TFM-Delta-Utility-App/pkg/parser"
)

// Entry pairs a lower-case trigger substring with the command it raises.
type Entry struct {
	Trigger string
	Command command.Command
}

// Vocabulary is the fixed, ordered trigger table. Order matters: triggers
// overlap ("loadplaylist 1 grid" vs "loadplaylist 1 1") and the first match
// wins.
var Vocabulary = []Entry{
	{Trigger: "tcstart 1", Command: command.Play},
	{Trigger: "play 1", Command: command.Play},
	{Trigger: "pause 1", Command: command.Stop},
	{Trigger: "stop 1", Command: command.Stop},
	{Trigger: "loadplaylist 1 grid", Command: command.DisplayGrid},
	{Trigger: "loadplaylist 1 1", Command: command.CueShow},
}

var _ parser.Parser = (*Parser)(nil)

// Parser matches payloads against Vocabulary.
type Parser struct{}

// New returns an RSS parser.
func New() *Parser {
	return &Parser{}
}

// Parse returns the command of the first vocabulary entry contained in the
// case-normalized payload.
func (p *Parser) Parse(payload []byte) (command.Command, error) {
	if len(payload) == 0 {
		return command.None, nil
	}
	if !utf8.Valid(payload) {
		return command.None, parser.ErrInvalidEncoding
	}

	text := strings.ToLower(string(payload))
	for _, e := range Vocabulary {
		if strings.Contains(text, e.Trigger) {
			return e.Command, nil
		}
	}

	return command.None, nil
}
