// Package chanx connects [concurrent.Channel] and [concurrent.Multiplexer]
// with native Go channels and with each other.
//
//   - [Feed] and [Stream]: copy a native channel into a Channel, or expose
//     a Channel as a native receive channel for use in select statements.
//   - [SendBatch] and [RecvBatch]: send or receive several values, one at a
//     time, stopping early on cancellation or drain. SendBatch works on
//     bounded channels, where [concurrent.Channel.SendAll] does not.
//   - [Merge]: fan-in that forwards several Channels into one.
//   - [Pump]: forwards a Channel into a Multiplexer (fan-out).
//   - [Subscribe]: a Multiplexer subscription as a native receive channel,
//     released when its context ends.
//   - [Buffer]: collects values into batches by size or timeout.
//   - [Map] and [Filter]: pipeline stages between two Channels.
//   - [Discard]: empties a Channel nobody reads anymore.
//
// All functions that spawn goroutines tie them to a [context.Context],
// ensuring they terminate when the context is canceled.
package chanx
