// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// history.go - Browse the conversation archive.
//
// Command: history [subcommand]
// Short:   List, show, search and delete saved conversations
// Aliases: hist
//
// Subcommands:
//   list [--limit N]         List recent conversations (default)
//   show ID [--json|--md]    Print a conversation
//   search TEXT [--limit N]  Find conversations containing TEXT
//   delete ID                Delete a conversation
//
// IDs may be abbreviated to any unique prefix, with or without "conv_".
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/ui/render"
	"github.com/jeranaias/rigchat/internal/ui/styles"
)

// defaultHistoryLimit is how many conversations list and search show.
const defaultHistoryLimit = 20

const historyUsage = "rigchat history [list|show ID|search TEXT|delete ID]"

// ErrStorageDisabled is returned when the archive is turned off in config.
var ErrStorageDisabled = errors.New("conversation archive is disabled (storage.enabled = false)")

// HistoryListData is the --json payload of `history list` and `history search`.
type HistoryListData struct {
	Conversations []model.ConversationMeta `json:"conversations"`
	Count         int                      `json:"count"`
}

// HandleHistory handles the "history" command.
func HandleHistory(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	return runHistory(context.Background(), store, args)
}

// openStore opens the archive configured in cfg.
func openStore(cfg *config.Config) (*storage.Store, error) {
	if !cfg.Storage.Enabled {
		return nil, ErrStorageDisabled
	}
	path, err := cfg.StoragePath()
	if err != nil {
		return nil, err
	}
	return storage.Open(path)
}

func runHistory(ctx context.Context, store *storage.Store, args Args) error {
	p := NewArgParser(args.Raw, "json", "md", "markdown")
	jsonMode := args.JSON || p.BoolFlag("json")
	limit := p.FlagIntOrDefault("limit", defaultHistoryLimit)

	switch sub := p.Subcommand(); sub {
	case "", "list", "ls":
		metas, err := store.List(ctx, limit)
		if err != nil {
			return err
		}
		return printMetas("history list", metas, jsonMode)

	case "search", "find":
		query := JoinPositionalArgs(p, 1)
		if query == "" {
			return ErrMissingArgument("TEXT", "rigchat history search TEXT")
		}
		metas, err := store.Search(ctx, query, limit)
		if err != nil {
			return err
		}
		return printMetas("history search", metas, jsonMode)

	case "show", "view", "export":
		ref := p.Positional(1)
		if ref == "" {
			return ErrMissingArgument("ID", "rigchat history show ID [--json|--md]")
		}
		conv, err := loadByRef(ctx, store, ref)
		if err != nil {
			return err
		}
		return showConversation(conv, jsonMode, p.BoolFlag("md", "markdown"))

	case "delete", "rm":
		ref := p.Positional(1)
		if ref == "" {
			return ErrMissingArgument("ID", "rigchat history delete ID")
		}
		id, err := store.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		if err := store.Delete(ctx, id); err != nil {
			return err
		}
		if jsonMode {
			return NewJSONResponse("history delete", map[string]string{"deleted": id}).Print()
		}
		fmt.Fprintln(stdout, styles.RenderSuccess("Deleted "+id))
		return nil

	default:
		return ErrUnknownSubcommand("history", sub, historyUsage)
	}
}

func loadByRef(ctx context.Context, store *storage.Store, ref string) (*model.Conversation, error) {
	id, err := store.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, id)
}

func printMetas(command string, metas []model.ConversationMeta, jsonMode bool) error {
	if jsonMode {
		if metas == nil {
			metas = []model.ConversationMeta{}
		}
		return NewJSONResponse(command, HistoryListData{Conversations: metas, Count: len(metas)}).Print()
	}
	fmt.Fprint(stdout, storage.FormatList(metas))
	if len(metas) == 0 {
		fmt.Fprintln(stdout)
	}
	return nil
}

// showConversation prints conv as JSON, raw markdown, or rendered markdown
// on a terminal.
func showConversation(conv *model.Conversation, jsonMode, rawMarkdown bool) error {
	if jsonMode {
		data, err := storage.ExportJSON(conv)
		if err != nil {
			return err
		}
		if IsStdoutTTY() {
			fmt.Fprintln(stdout, render.HighlightJSON(string(data)))
		} else {
			fmt.Fprintln(stdout, string(data))
		}
		return nil
	}

	doc := storage.ExportMarkdown(conv)
	if rawMarkdown || !IsStdoutTTY() {
		fmt.Fprint(stdout, doc)
		return nil
	}
	md := render.NewMarkdown("auto", wrapWidth(0))
	fmt.Fprintln(stdout, md.Render(doc))
	return nil
}
