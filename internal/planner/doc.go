// Package planner turns a free-text scheduling command into a GeneratedSchedule.
//
// Flow:
//
//	raw text -> ParseCommand -> NormalizeTimeframe -> BuildPrompt
//	         -> Inferer.Complete (network, retry) -> ValidateReply
//	         -> GeneratedSchedule (or Fallback on shape failures)
//
// Every value produced here is request-scoped; nothing is shared between
// concurrent Pipeline.Run calls except the injected collaborators.
package planner
