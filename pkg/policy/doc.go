// Package policy decides, per frame, whether the proxy forwards,
// rewrites or rejects a bot's request.
//
// Evaluation is pure CPU work over (frame category, participant
// budget, rule set, clock): no I/O, no suspension. Rules run in a
// fixed order: command-category bans, then the call-count ceiling,
// then the APM ceiling, then the elapsed-time ceiling. A rejection
// synthesizes an engine-shaped denial frame for the offending bot.
package policy
