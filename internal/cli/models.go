// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - List the models installed on the inference server.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/util"
)

// modelsTimeout bounds the model listing request.
const modelsTimeout = 10 * time.Second

// ModelsData is the --json payload of `rigchat models`.
type ModelsData struct {
	BaseURL string             `json:"base_url"`
	Current string             `json:"current"`
	Models  []ollama.ModelInfo `json:"models"`
}

// HandleModels handles the "models" command.
func HandleModels(args Args) error {
	cfg, err := loadConfig(args)
	if err != nil {
		return err
	}
	client := newClient(cfg.API.BaseURL)

	ctx, cancel := context.WithTimeout(context.Background(), modelsTimeout)
	defer cancel()
	return listModels(ctx, client, cfg.API.Model, args.JSON)
}

func listModels(ctx context.Context, client *ollama.Client, current string, jsonMode bool) error {
	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("cannot list models at %s: %w", client.BaseURL(), err)
	}

	if jsonMode {
		return NewJSONResponse("models", ModelsData{
			BaseURL: client.BaseURL(),
			Current: current,
			Models:  models,
		}).Print()
	}

	if len(models) == 0 {
		fmt.Fprintln(stdout, DimStyle.Render("No models installed. Pull one with: ollama pull "+ollama.DefaultModel))
		return nil
	}

	fmt.Fprintf(stdout, "%s %s\n\n", TitleStyle.Render("Models on"), client.BaseURL())
	fmt.Fprintf(stdout, "  %s  %s  %s  %s\n",
		DimStyle.Render(util.PadRight("NAME", 32)),
		DimStyle.Render(util.PadRight("SIZE", 9)),
		DimStyle.Render(util.PadRight("PARAMS", 8)),
		DimStyle.Render("QUANT"))
	for _, m := range models {
		marker := "  "
		if m.Name == current {
			marker = PromptStyle.Render("* ")
		}
		fmt.Fprintf(stdout, "%s%s  %s  %s  %s\n",
			marker,
			ValueStyle.Render(util.PadRight(util.TruncateWidth(m.Name, 32), 32)),
			util.PadRight(fmt.Sprintf("%.1f GB", m.SizeGB()), 9),
			util.PadRight(m.ParameterSize, 8),
			m.Quantization)
	}
	return nil
}
