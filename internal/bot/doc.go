// Package bot routes incoming chat commands to their handlers.
//
// Commands: /start and /stop manage the sender's subscription, /broadcast
// (admin) fans a text or photo out to every recipient, /stats (admin) and
// /help report state. Photo broadcasts are photos whose caption starts with
// /broadcast.
//
// Every update is handled to completion before the next one; a broadcast
// runs inside the handler call.
package bot
