// Package conversation provides high-level conversation lifecycle services.
//
// # Overview
//
// The conversation package sits between the chat pipeline and the store,
// owning the conversation status machine and the per-conversation
// serialization that the rest of the system relies on.
//
// # Status machine
//
// A conversation moves through three states:
//
//	automated -> pending -> human
//	automated ----------> human
//
// "automated" conversations are answered by the bot. "pending" means a
// handoff was requested but no agent has been assigned yet; automated
// replies stop. "human" is terminal for automation: an agent owns the
// conversation and the assignment never changes afterward.
//
// MarkPending and AssignAgent enforce the graph and return
// ErrInvalidTransition on anything else. Marking an already-pending
// conversation pending is a no-op rather than an error, so repeated
// handoff triggers are harmless.
//
// # Serialization
//
// All status transitions and pipeline writes for one conversation happen
// under a keyed mutex (see Lock). Find-or-create for widget connects is
// serialized per customer id the same way, so a reconnect storm cannot
// create duplicate active conversations.
package conversation
