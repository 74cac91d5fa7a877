// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package speech

import (
	"context"
	"strings"
	"time"
)

// DefaultSilence is how long recognition must stay quiet after a final
// result before the transcript is submitted.
const DefaultSilence = 3 * time.Second

// AutoSubmitter turns recognition events into prompt submissions.
//
// Final results accumulate into a transcript. Each new final result restarts
// the silence window; when the window elapses the trimmed transcript is passed
// to Submit and accumulation starts over. Interim results are only reported
// through OnUpdate.
type AutoSubmitter struct {
	// Silence is the quiet period before submitting. Zero means DefaultSilence.
	Silence time.Duration

	// Submit receives each completed transcript. Required.
	Submit func(text string)

	// OnUpdate, if set, is called with the accumulated transcript and the
	// latest interim text whenever either changes.
	OnUpdate func(transcript, interim string)
}

// Run consumes events until the channel closes, ctx is done, or an error
// event arrives. A transcript still pending when the channel closes is
// submitted; one pending at an error or cancellation is dropped.
func (a *AutoSubmitter) Run(ctx context.Context, events <-chan Event) error {
	silence := a.Silence
	if silence <= 0 {
		silence = DefaultSilence
	}

	var (
		transcript strings.Builder
		interim    string
	)

	timer := time.NewTimer(silence)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	update := func() {
		if a.OnUpdate != nil {
			a.OnUpdate(transcript.String(), interim)
		}
	}

	submit := func() {
		text := strings.TrimSpace(transcript.String())
		transcript.Reset()
		interim = ""
		update()
		if text != "" {
			a.Submit(text)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				timer.Stop()
				submit()
				return nil
			}
			if ev.Err != nil {
				return ev.Err
			}

			if !ev.Final {
				interim = ev.Text
				update()
				continue
			}

			text := strings.TrimSpace(ev.Text)
			if text == "" {
				continue
			}
			if transcript.Len() > 0 {
				transcript.WriteByte(' ')
			}
			transcript.WriteString(text)
			interim = ""
			update()

			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(silence)

		case <-timer.C:
			submit()
		}
	}
}
