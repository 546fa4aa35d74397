package router

import (
	"context"
	"strings"

	"github.com/nextlevelbuilder/hamdam/internal/bus"
	"github.com/nextlevelbuilder/hamdam/internal/persona"
	"github.com/nextlevelbuilder/hamdam/pkg/protocol"
)

// parseCommand extracts "start" from "/start" or "/start@hamdam_bot args".
func parseCommand(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := strings.Fields(text[1:])
	if len(cmd) == 0 {
		return "", false
	}
	name, _, _ := strings.Cut(cmd[0], "@")
	return strings.ToLower(name), name != ""
}

// handleCommand reports false for unknown commands, which then go through the pipeline.
func (r *Router) handleCommand(ctx context.Context, msg bus.InboundMessage, cmd string) (Result, bool) {
	switch cmd {
	case "start":
		r.emit(msg, protocol.EventNewUser, "/start")
		r.sendPlainLogged(ctx, msg, r.cfg.Greeting)
		return Result{Tier: TierCommand, Reply: r.cfg.Greeting}, true

	case "memory":
		reply := persona.EmptyMemoryReply
		if r.deps.Memories != nil {
			reply = r.deps.Memories.Random()
		}
		r.sendReply(ctx, msg, reply)
		r.emit(msg, protocol.EventTriggeredResponse, "/memory")
		return Result{Tier: TierCommand, Reply: reply}, true
	}
	return Result{}, false
}

func (r *Router) sendPlainLogged(ctx context.Context, msg bus.InboundMessage, text string) {
	if err := r.sendPlain(ctx, msg, text); err != nil {
		r.logSendFailure(msg, err)
	}
}
