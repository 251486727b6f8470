// Package dispatch delivers TSPL documents to the host print subsystem.
//
// A Dispatcher owns one job at a time per call: it persists the payload via
// the spool store, walks the platform's strategy chain until one strategy
// succeeds, and always releases the document afterwards.
//
// Strategies:
//   - lpr: POSIX spooler submission in raw mode; success iff exit status 0
//   - powershell: Windows Get-Printer lookup then Out-Printer, run with
//     $ErrorActionPreference='Stop'; success iff clean exit
//   - copy: Windows "copy /b" to \\localhost\<printer>; success requires a
//     clean exit AND command output reporting one file copied
//   - winspool: Windows RAW job through the spooler API (opt-in)
//
// Chains are keyed by platform tag and chosen once at startup:
//   - posix:   [lpr]
//   - windows: [powershell, copy]
//
// Error handling:
//   - Persist failure → returned error, no strategy attempted
//   - Strategy failure → *StrategyError recorded, next strategy tried
//   - Strategy panic → recovered and recorded as a *StrategyError
//   - All strategies failed → Outcome.Err is a *DispatchError whose message
//     concatenates every attempt as "[name:detail]"
//
// External processes run through Runner. ExecRunner caps captured output at
// 64KB and, when a timeout is configured, interrupts the process, waits a
// grace period, then kills it.
package dispatch
