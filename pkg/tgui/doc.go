// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (area:action:payload)
//   - HTML text helpers safe for ParseMode="HTML"
package tgui
