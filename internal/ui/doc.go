// Package ui implements the terminal moderation console using bubbletea's Elm architecture.
//
// The console walks an administrator through one room:
//  1. [QueueView] : Browse queued tracks, including reviews in progress
//  2. [ReviewView] : Inspect a claimed track and approve or reject it
//  3. [ConfirmView] : Confirm a rejection
//  4. [PlaylistView] : Browse the approved playlist
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving results from the
// [Backend] as [Msg] values. The queue refreshes on a timer so decisions made elsewhere show up.
//
// Keyboard navigation uses vim-style bindings (j/k, enter, esc, y/n, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
