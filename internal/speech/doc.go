// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package speech provides voice input for prompts.
//
// A Recognizer produces interim and final transcript events. The core chat
// packages never see it; AutoSubmitter sits between a Recognizer and the
// controller and submits a transcript once the speaker has been quiet for a
// while.
//
//	rec := speech.NewCommandRecognizer(cfg.Speech.Command)
//	if err := rec.Start(ctx); err != nil {
//		return err
//	}
//	defer rec.Stop()
//
//	sub := &speech.AutoSubmitter{
//		Silence: 3 * time.Second,
//		Submit:  func(text string) { ctrl.Send(ctx, text) },
//	}
//	return sub.Run(ctx, rec.Events())
package speech
