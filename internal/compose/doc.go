// Package compose renders the reply text for a resolved rule.
//
// Static rules pick one template at random and substitute placeholders. AI rules substitute
// placeholders into a prompt and hand it to a TextGenerator under a bounded timeout; any
// failure yields domain.ErrNoReply so the caller treats the comment as unanswered.
package compose
