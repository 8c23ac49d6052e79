// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package handler

import (
	"context"
	"errors"

	"github.com/DazB/TFM-Delta-Utility-App/pkg/command"
)

// Chain fans every event out to hs in order. All handlers are called even
// if one fails; the returned error joins every failure.
func Chain(hs ...Handler) Handler {
	return chain(hs)
}

type chain []Handler

func (c chain) OnConnect(ctx context.Context, hctx *Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnConnect(ctx, hctx))
	}
	return errors.Join(errs...)
}

func (c chain) OnCommand(ctx context.Context, hctx *Context, cmd command.Command) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnCommand(ctx, hctx, cmd))
	}
	return errors.Join(errs...)
}

func (c chain) OnDisconnect(ctx context.Context, hctx *Context) error {
	var errs []error
	for _, h := range c {
		errs = append(errs, h.OnDisconnect(ctx, hctx))
	}
	return errors.Join(errs...)
}
