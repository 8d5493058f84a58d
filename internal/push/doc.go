// Package push delivers reservation notifications to user devices.
//
// The scheduler uses it for expiry reminders and cancellation notices.
// All delivery is fire-and-forget from the caller's point of view.
package push
