// Package coordinator owns which agent is currently speaking in a
// conversation. It mediates a clean stop of the active response stream,
// optionally injects a hand-off message, starts a new run bound to the
// target agent with carried-over generation settings, and relays the new
// run's stream events into the conversation's message sequence.
//
// One Coordinator instance is the single logical owner of one conversation;
// the Manager hands out per-conversation instances. Collaborators (message
// store, run controller, stream subscriber) are consumed through narrow
// interfaces declared here.
package coordinator
