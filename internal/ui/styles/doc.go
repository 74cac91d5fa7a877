// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the rigchat TUI and CLI.

All colors use Lip Gloss AdaptiveColor for automatic light/dark terminal
detection. The ui.theme setting can force either background.

# Color System (colors.go)

  - Purple - Assistant messages, streaming state
  - Cyan - Brand color, user prompt, model name
  - Emerald - Completed exchanges, statistics
  - Amber - Cancelled exchanges, warnings
  - Rose - Errors

# Theme System (theme.go)

	theme := styles.NewTheme(cfg.UI.Theme)
	footer := theme.StateStyle(ctrl.State()).Render(ctrl.State().String())

# Status Indicators

Every colored state also carries an ASCII marker ([OK], [X], [!], [*]) so it
reads correctly without color.
*/
package styles
