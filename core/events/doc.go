// Package events defines the typed session observer contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - status.*
//   - message.*
//   - transcript.*
//   - response.*
//   - session.*
//
// status events
//
//   - StatusChanged (status.changed): user-visible connection status update
//     with a short display text.
//
// message events
//
//   - MessageReceived (message.received): a finished chat-style message with
//     sender and message type, emitted at most once per response.
//
// transcript events
//
//   - UserTranscript (transcript.user): final transcription of one user
//     utterance.
//   - AssistantTranscript (transcript.assistant): one streamed transcript
//     delta of the assistant response, in arrival order.
//
// response events
//
//   - ResponseStarted (response.started): assistant response generation
//     started; consumers typically show a typing indicator.
//   - ResponseInterrupted (response.interrupted): the active response was
//     cancelled by a barge-in.
//
// session events
//
//   - SessionError (session.error): an error surfaced to the user; the
//     session may or may not survive it.
package events
