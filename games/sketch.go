package games

// Participants join a shared room, one participant draws while the others
// watch a synchronized canvas and chat to guess the secret word
// Rooms are identified by a short random token baked into a shareable link
// All rooms ride a single websocket endpoint; every message carries its own
// room tag (plus an optional channel tag), and receivers drop anything
// outside their active scope

// Canvas model:
// The server never stores drawings; each client keeps its own arena of
// shapes and repairs divergence by applying full snapshots from peers
// Every locally drawn stroke goes out twice: once as a cheap incremental
// operation, once as a full snapshot for anyone whose stream is out of sync

// Turn flow:
// - Once a room has two players, the relay offers three words to whoever
//   holds the turn pointer
// - Picking a word removes it from the room's pool for good; the other
//   players only learn that a pick happened
// - The pointer then advances to the next player, wrapping around

// Implementation details:
// - Undo is a local stack of snapshots; undoing re-broadcasts the restored
//   state, so everyone converges on the undoer's version
// - Chat messages are deduplicated client-side, which lets senders echo
//   their own messages optimistically
